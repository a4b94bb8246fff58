package dispatch

import (
	"math"
	"sync"
	"time"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
)

// Session is the run-time state of one bulk-send operation. The dispatcher
// is its only writer; HTTP handlers and the progress observer read it
// through Snapshot(). The recipient list is fixed at creation and the
// current index only moves forward.
type Session struct {
	mu         sync.RWMutex
	runID      string
	recipients []domain.Recipient
	statuses   []domain.RecipientStatus
	current    int
	sent       int
	errors     int
	waiting    bool
	waitLeft   time.Duration
	phase      domain.RunStatus
}

func NewSession(runID string, recipients []domain.Recipient) *Session {
	statuses := make([]domain.RecipientStatus, len(recipients))
	for i := range statuses {
		statuses[i] = domain.StatusPending
	}

	return &Session{
		runID:      runID,
		recipients: recipients,
		statuses:   statuses,
		phase:      domain.RunRunning,
	}
}

// NewResumedSession rebuilds a session from the durable recipient log of an
// interrupted run. Recipients already marked sent keep that status (the
// dispatcher skips them); everything else starts over as pending. The prior
// successes are counted into the tally so the final summary covers the whole
// run, not just the continuation.
func NewResumedSession(runID string, recipients []domain.Recipient, statuses []domain.RecipientStatus) *Session {
	s := NewSession(runID, recipients)
	for i, status := range statuses {
		if i >= len(s.statuses) {
			break
		}
		if status == domain.StatusSent {
			s.statuses[i] = domain.StatusSent
			s.sent++
		}
	}
	return s
}

// StatusAt reads one recipient's current status.
func (s *Session) StatusAt(i int) domain.RecipientStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[i]
}

func (s *Session) RunID() string {
	return s.runID
}

func (s *Session) Recipients() []domain.Recipient {
	return s.recipients
}

func (s *Session) Phase() domain.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) Tally() domain.Tally {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Tally{Sent: s.sent, Errors: s.errors}
}

// Snapshot copies the current state for observers. Percent is completed
// recipients over total.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]domain.RecipientStatus, len(s.statuses))
	copy(statuses, s.statuses)

	percent := 0.0
	if len(s.recipients) > 0 {
		percent = float64(s.sent+s.errors) / float64(len(s.recipients)) * 100
	}

	return domain.Snapshot{
		RunID:           s.runID,
		Phase:           s.phase,
		Total:           len(s.recipients),
		Current:         s.current,
		Percent:         percent,
		Waiting:         s.waiting,
		WaitSecondsLeft: int(math.Ceil(s.waitLeft.Seconds())),
		Statuses:        statuses,
		Tally:           domain.Tally{Sent: s.sent, Errors: s.errors},
	}
}

func (s *Session) markSending(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = i
	s.statuses[i] = domain.StatusSending
}

func (s *Session) markSent(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[i] = domain.StatusSent
	s.sent++
}

func (s *Session) markError(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[i] = domain.StatusError
	s.errors++
}

func (s *Session) setWaiting(left time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = true
	s.waitLeft = left
}

func (s *Session) clearWaiting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = false
	s.waitLeft = 0
}

func (s *Session) finish(cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = false
	s.waitLeft = 0
	if cancelled {
		s.phase = domain.RunCancelled
	} else {
		s.phase = domain.RunCompleted
	}
}
