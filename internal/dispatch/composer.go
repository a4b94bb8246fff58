package dispatch

import (
	"regexp"
	"strings"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
)

// Placeholder names are word characters between braces, so tokens like
// {link2} resolve instead of leaking into the sent text.
var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z0-9_]+\}`)

// Composer resolves the message body for each recipient: it rotates through
// the template pool by recipient position and substitutes every placeholder.
// A placeholder with no value resolves to an empty string, so no token ever
// leaks into the sent text.
type Composer struct {
	pool []string
	vars map[string]string
}

// NewComposer builds a composer over a non-empty template pool and the
// session-scoped substitution values (company, period, link, notes, ...).
func NewComposer(pool []string, sessionVars map[string]string) *Composer {
	vars := make(map[string]string, len(sessionVars))
	for k, v := range sessionVars {
		vars[k] = v
	}

	return &Composer{
		pool: pool,
		vars: vars,
	}
}

// Compose returns the resolved text for the recipient at the given dispatch
// position. With N pool variants and >= N recipients no two adjacent sends
// reuse the same variant (unless the pool has a single entry).
func (c *Composer) Compose(index int, recipient domain.Recipient) string {
	if len(c.pool) == 0 {
		return ""
	}

	template := c.pool[index%len(c.pool)]

	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		key := strings.Trim(token, "{}")
		if key == "name" {
			return recipient.Name
		}
		return c.vars[key]
	})
}

// PoolSize reports how many template variants the composer rotates through.
func (c *Composer) PoolSize() int {
	return len(c.pool)
}
