package domain

import "time"

// OutcomeStatus is the result of dispatching one event.
type OutcomeStatus string

const (
	OutcomeApplied        OutcomeStatus = "applied"
	OutcomeAlreadyApplied OutcomeStatus = "already_applied"
	OutcomeRejected       OutcomeStatus = "rejected"
)

// Outcome reports what the dispatcher did with an event.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// ProjectPatch is the delta a handler wants applied to the project aggregate.
// Deltas rather than absolute values keep the patch meaningful when the
// apply is retried against a fresh snapshot.
type ProjectPatch struct {
	// CompletionDelayDays shifts estimated_completion_date forward.
	CompletionDelayDays int `json:"completion_delay_days,omitempty"`

	// VarianceDeltaDays increases schedule_variance_days. Never negative:
	// variance is monotonically non-decreasing outside explicit corrections.
	VarianceDeltaDays int `json:"variance_delta_days,omitempty"`

	// HealthScore and StatusColor are set together when the handler
	// recomputed the composite score.
	HealthScore *float64    `json:"health_score,omitempty"`
	StatusColor StatusColor `json:"status_color,omitempty"`
}

// Empty reports whether the patch changes anything.
func (p *ProjectPatch) Empty() bool {
	return p == nil || (p.CompletionDelayDays == 0 && p.VarianceDeltaDays == 0 && p.HealthScore == nil)
}

// InvoicePatch is the delta a handler wants applied to one invoice.
type InvoicePatch struct {
	InvoiceID string `json:"invoice_id"`

	// DueDateShiftDays shifts the invoice due date forward.
	DueDateShiftDays int `json:"due_date_shift_days,omitempty"`

	// MarkOverdueSurfaced records that the overdue condition was notified,
	// so the next sweep does not re-surface it.
	MarkOverdueSurfaced bool `json:"mark_overdue_surfaced,omitempty"`
}

// BroadcastMessage is a real-time message published to the tenant topic
// after a cascade effect commits.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	ProjectID string      `json:"project_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// CascadeEffect is the atomic bundle one handler invocation produces for one
// event: aggregate patches, notification drafts, the ledger actions, and
// post-commit broadcasts. Everything except Broadcasts commits in a single
// transaction; nothing is ever partially applied.
type CascadeEffect struct {
	Event          *DomainEvent        `json:"event"`
	ProjectPatch   *ProjectPatch       `json:"project_patch,omitempty"`
	InvoicePatches []InvoicePatch      `json:"invoice_patches,omitempty"`
	DelayClaim     *DelayClaim         `json:"delay_claim,omitempty"`
	Notifications  []NotificationDraft `json:"notifications,omitempty"`
	Broadcasts     []BroadcastMessage  `json:"broadcasts,omitempty"`

	// Actions is the human-readable list of what this cascade did,
	// recorded verbatim in the ledger entry.
	Actions []string `json:"actions"`
}

// LedgerEntry is one append-only audit record per successfully applied event.
type LedgerEntry struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	EventType    EventType `json:"event_type"`
	TenantID     string    `json:"tenant_id"`
	ProjectID    string    `json:"project_id"`
	Source       string    `json:"source"`
	Payload      []byte    `json:"payload"`
	ActionsTaken []string  `json:"actions_taken"`
	CreatedAt    time.Time `json:"created_at"`
}
