package dispatch

import (
	"strings"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
)

const minPhoneDigits = 10

// EligibleGuests filters a guest roster down to sendable recipients: the
// guest must have opted in and the phone must normalize to at least 10
// digits. Input order is preserved; duplicates are not removed here.
func EligibleGuests(candidates []domain.GuestCandidate) []domain.Recipient {
	recipients := make([]domain.Recipient, 0, len(candidates))

	for _, c := range candidates {
		if !c.WantsInfo {
			continue
		}

		digits := NormalizePhone(c.Phone)
		if len(digits) < minPhoneDigits {
			continue
		}

		recipients = append(recipients, domain.Recipient{
			Name:    c.Name,
			Address: digits,
		})
	}

	return recipients
}

// SelectedGroups keeps the groups the user checked. Beyond a non-empty group
// identifier there is no format validation for group addresses.
func SelectedGroups(candidates []domain.GroupCandidate) []domain.Recipient {
	recipients := make([]domain.Recipient, 0, len(candidates))

	for _, c := range candidates {
		if !c.Selected || c.GroupID == "" {
			continue
		}

		recipients = append(recipients, domain.Recipient{
			Name:    c.Name,
			Address: c.GroupID,
		})
	}

	return recipients
}

// NormalizePhone strips everything that is not a digit.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DuplicateAddresses returns the addresses that appear more than once, in
// first-occurrence order. The dispatcher sends to duplicates as-is; callers
// use this to warn the operator.
func DuplicateAddresses(recipients []domain.Recipient) []string {
	seen := make(map[string]int, len(recipients))
	var dups []string

	for _, r := range recipients {
		seen[r.Address]++
		if seen[r.Address] == 2 {
			dups = append(dups, r.Address)
		}
	}

	return dups
}
