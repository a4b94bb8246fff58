package domain

import "time"

// RecipientStatus is the per-recipient state inside one dispatch run.
// Sent and error are terminal; a recipient never moves back to pending.
type RecipientStatus string

const (
	StatusPending RecipientStatus = "pending"
	StatusSending RecipientStatus = "sending"
	StatusSent    RecipientStatus = "sent"
	StatusError   RecipientStatus = "error"
)

// RunStatus is the lifecycle state of a whole dispatch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
)

type DispatchKind string

const (
	KindGuests DispatchKind = "guests"
	KindGroups DispatchKind = "groups"
)

// GuestCandidate is a raw guest-roster entry before eligibility filtering.
type GuestCandidate struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	WantsInfo bool   `json:"wantsInfo"`
}

// GroupCandidate is a WhatsApp group entry as presented in a selection UI.
type GroupCandidate struct {
	Name     string `json:"name"`
	GroupID  string `json:"groupId"`
	Selected bool   `json:"selected"`
}

// Recipient is one eligible target inside a dispatch run. Immutable for the
// duration of the run.
type Recipient struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type DispatchRun struct {
	ID          string       `db:"id" json:"id"`
	CompanyID   string       `db:"company_id" json:"companyId"`
	Kind        DispatchKind `db:"kind" json:"kind"`
	Instance    string       `db:"instance" json:"instance"`
	Status      RunStatus    `db:"status" json:"status"`
	Total       int          `db:"total" json:"total"`
	SentCount   int          `db:"sent_count" json:"sentCount"`
	ErrorCount  int          `db:"error_count" json:"errorCount"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updatedAt"`
	CompletedAt *time.Time   `db:"completed_at" json:"completedAt,omitempty"`
}

type RunRecipient struct {
	ID          int64           `db:"id" json:"id"`
	RunID       string          `db:"run_id" json:"runId"`
	Position    int             `db:"position" json:"position"`
	Name        string          `db:"name" json:"name"`
	Address     string          `db:"address" json:"address"`
	Status      RecipientStatus `db:"status" json:"status"`
	MessageID   *string         `db:"message_id" json:"messageId,omitempty"`
	ErrorDetail *string         `db:"error_detail" json:"errorDetail,omitempty"`
	AttemptedAt *time.Time      `db:"attempted_at" json:"attemptedAt,omitempty"`
}

// Tally is the final (or partial, when cancelled) outcome count of a run.
type Tally struct {
	Sent   int `json:"sent"`
	Errors int `json:"errors"`
}

// Snapshot is a point-in-time view of a dispatch session, safe to hand to
// HTTP handlers and the progress cache while the loop keeps running.
type Snapshot struct {
	RunID           string            `json:"runId"`
	Phase           RunStatus         `json:"phase"`
	Total           int               `json:"total"`
	Current         int               `json:"current"`
	Percent         float64           `json:"percent"`
	Waiting         bool              `json:"waiting"`
	WaitSecondsLeft int               `json:"waitSecondsLeft"`
	Statuses        []RecipientStatus `json:"statuses"`
	Tally           Tally             `json:"tally"`
}

// Outcome is the durable record of one attempted send, written after every
// terminal recipient transition.
type Outcome struct {
	RunID       string
	Position    int
	Status      RecipientStatus
	MessageID   string
	ErrorDetail string
	AttemptedAt time.Time
}

type GatewaySendRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type GatewaySendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type GatewayStateResponse struct {
	Instance string `json:"instance"`
	State    string `json:"state"`
}
