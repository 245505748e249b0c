package domain

import "time"

// NotificationPriority orders notifications for recipients.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Channel is a delivery channel for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// NotificationStatus is the delivery lifecycle state.
// created pending → delivery attempted → sent, or failed after retry
// exhaustion (parked, never retried automatically).
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Role names the project roles notifications address. Resolving roles to
// concrete users is the storage layer's concern.
type Role string

const (
	RoleProjectManager Role = "project_manager"
	RoleSuperintendent Role = "superintendent"
	RoleOperations     Role = "operations"
	RoleSafetyOfficer  Role = "safety_officer"
)

// NotificationDraft is what a cascade handler emits: a notification before it
// has an id or delivery state. The repository persists it as pending inside
// the same transaction as the rest of the cascade effect.
type NotificationDraft struct {
	Type       string               `json:"type"`
	Priority   NotificationPriority `json:"priority"`
	Recipients []Role               `json:"recipients"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Channels   []Channel            `json:"channels"`
}

// Notification is a persisted notification record. Only the delivery
// subsystem mutates it after creation.
type Notification struct {
	ID         string               `json:"id"`
	TenantID   string               `json:"tenant_id"`
	ProjectID  string               `json:"project_id"`
	EventID    string               `json:"event_id"`
	Type       string               `json:"type"`
	Priority   NotificationPriority `json:"priority"`
	Recipients []Role               `json:"recipients"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Channels   []Channel            `json:"channels"`
	Status     NotificationStatus   `json:"status"`
	Attempts   int                  `json:"attempts"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// HasChannel reports whether the notification targets the given channel.
func (n *Notification) HasChannel(c Channel) bool {
	for _, ch := range n.Channels {
		if ch == c {
			return true
		}
	}
	return false
}
