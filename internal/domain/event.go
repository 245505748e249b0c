package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType defines the type of domain event the cascade recognizes.
type EventType string

const (
	EventWeatherDelay      EventType = "WEATHER_DELAY"
	EventDefectFound       EventType = "DEFECT_FOUND"
	EventInvoiceOverdue    EventType = "INVOICE_OVERDUE"
	EventSafetyIncident    EventType = "SAFETY_INCIDENT"
	EventSubmittalApproved EventType = "SUBMITTAL_APPROVED"
)

// DomainEvent is an immutable record of a recognized business occurrence.
// It is created once by the event source adapter and never mutated.
type DomainEvent struct {
	EventID      string    `json:"event_id"`
	Type         EventType `json:"type"`
	TenantID     string    `json:"tenant_id"`
	ProjectID    string    `json:"project_id"`
	SourceEntity string    `json:"source_entity"`
	SourceID     string    `json:"source_id"`
	Payload      []byte    `json:"payload"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Validate checks the structural completeness of an event before dispatch.
// SAFETY_INCIDENT events may arrive without a project link; every other type
// must name a project.
func (e *DomainEvent) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("event is nil")
	case e.EventID == "":
		return fmt.Errorf("event id is required")
	case e.Type == "":
		return fmt.Errorf("event type is required")
	case e.TenantID == "":
		return fmt.Errorf("tenant id is required")
	case e.ProjectID == "" && e.Type != EventSafetyIncident:
		return fmt.Errorf("project id is required for %s", e.Type)
	case len(e.Payload) == 0:
		return fmt.Errorf("payload is required")
	default:
		return nil
	}
}

// OverdueEventID builds the deterministic idempotency key for a sweep-detected
// overdue invoice. Keying on (invoice_id, due_date) means repeated sweeps of
// the same overdue state dedup, while a shifted due date that lapses again
// produces a fresh event.
func OverdueEventID(invoiceID string, dueDate time.Time) string {
	return fmt.Sprintf("invoice-overdue:%s:%s", invoiceID, dueDate.UTC().Format("2006-01-02"))
}

// DefectSeverity classifies a punch-list defect.
type DefectSeverity string

const (
	DefectSeverityCritical DefectSeverity = "critical"
	DefectSeverityHigh     DefectSeverity = "high"
	DefectSeverityMedium   DefectSeverity = "medium"
	DefectSeverityLow      DefectSeverity = "low"
)

// WeatherDelayPayload is the payload for WEATHER_DELAY events.
type WeatherDelayPayload struct {
	LogID            string `json:"log_id"`
	DelayDays        int    `json:"delay_days"`
	WeatherCondition string `json:"weather_condition"`
	Description      string `json:"description,omitempty"`
}

// ToJSON converts payload to JSON bytes.
func (p WeatherDelayPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// DefectPayload is the payload for DEFECT_FOUND events.
type DefectPayload struct {
	PunchItemID string         `json:"punch_item_id"`
	Severity    DefectSeverity `json:"severity"`
	Title       string         `json:"title"`
	Location    string         `json:"location,omitempty"`
}

// ToJSON converts payload to JSON bytes.
func (p DefectPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// InvoiceOverduePayload is the payload for INVOICE_OVERDUE events.
type InvoiceOverduePayload struct {
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	AmountDue     float64   `json:"amount_due"`
	DueDate       time.Time `json:"due_date"`
}

// ToJSON converts payload to JSON bytes.
func (p InvoiceOverduePayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// SafetyIncidentPayload is the payload for SAFETY_INCIDENT events.
type SafetyIncidentPayload struct {
	IncidentID     string `json:"incident_id"`
	Severity       string `json:"severity"`
	OSHARecordable bool   `json:"osha_recordable"`
	Description    string `json:"description,omitempty"`
}

// ToJSON converts payload to JSON bytes.
func (p SafetyIncidentPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// SubmittalApprovedPayload is the payload for SUBMITTAL_APPROVED events.
type SubmittalApprovedPayload struct {
	SubmittalID string `json:"submittal_id"`
	Title       string `json:"title"`
	SpecSection string `json:"spec_section,omitempty"`
	PriorStatus string `json:"prior_status"`
}

// ToJSON converts payload to JSON bytes.
func (p SubmittalApprovedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}
