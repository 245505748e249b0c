package cascade

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitepulse.io/sitepulse/internal/domain"
)

// ChangeRecord is one committed write from the storage layer's change feed:
// entity, operation, and before/after snapshots with tenant context.
type ChangeRecord struct {
	// ChangeID is the feed's unique id for this committed write. Reused as
	// the event id so feed redelivery dedups downstream.
	ChangeID   string          `json:"change_id"`
	Entity     string          `json:"entity"`
	Op         string          `json:"op"` // insert | update | delete
	TenantID   string          `json:"tenant_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Adapter normalizes committed writes into canonical domain events. It never
// mutates business state; recognized changes become exactly one event,
// everything else becomes nothing. Appending the event to the outbox in the
// source transaction is the repository's job.
type Adapter struct{}

// NewAdapter creates an Adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Recognize maps a change record to zero or one canonical domain event.
// A nil event with nil error means the change matched no recognized pattern.
func (a *Adapter) Recognize(change ChangeRecord) (*domain.DomainEvent, error) {
	if change.TenantID == "" {
		return nil, fmt.Errorf("change record is missing tenant id")
	}

	switch change.Entity {
	case "daily_logs":
		return a.recognizeDailyLog(change)
	case "punch_items":
		return a.recognizePunchItem(change)
	case "invoices":
		return a.recognizeInvoice(change)
	case "safety_incidents":
		return a.recognizeSafetyIncident(change)
	case "submittals":
		return a.recognizeSubmittal(change)
	default:
		return nil, nil
	}
}

type dailyLogRow struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	DelayFlag        bool   `json:"delay_flag"`
	DelayCause       string `json:"delay_cause"`
	DelayDays        int    `json:"delay_days"`
	WeatherCondition string `json:"weather_condition"`
	Notes            string `json:"notes"`
}

func (a *Adapter) recognizeDailyLog(change ChangeRecord) (*domain.DomainEvent, error) {
	if change.Op != "insert" {
		return nil, nil
	}
	var row dailyLogRow
	if err := json.Unmarshal(change.After, &row); err != nil {
		return nil, fmt.Errorf("decode daily_logs row: %w", err)
	}
	if !row.DelayFlag || !strings.EqualFold(row.DelayCause, "weather") {
		return nil, nil
	}

	payload, err := domain.WeatherDelayPayload{
		LogID:            row.ID,
		DelayDays:        row.DelayDays,
		WeatherCondition: row.WeatherCondition,
		Description:      row.Notes,
	}.ToJSON()
	if err != nil {
		return nil, err
	}
	return a.event(change, domain.EventWeatherDelay, row.ProjectID, row.ID, payload), nil
}

type punchItemRow struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Location  string `json:"location"`
}

func (a *Adapter) recognizePunchItem(change ChangeRecord) (*domain.DomainEvent, error) {
	if change.Op != "insert" {
		return nil, nil
	}
	var row punchItemRow
	if err := json.Unmarshal(change.After, &row); err != nil {
		return nil, fmt.Errorf("decode punch_items row: %w", err)
	}
	if !strings.EqualFold(row.Status, "open") {
		return nil, nil
	}

	payload, err := domain.DefectPayload{
		PunchItemID: row.ID,
		Severity:    domain.DefectSeverity(strings.ToLower(row.Severity)),
		Title:       row.Title,
		Location:    row.Location,
	}.ToJSON()
	if err != nil {
		return nil, err
	}
	return a.event(change, domain.EventDefectFound, row.ProjectID, row.ID, payload), nil
}

type invoiceRow struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Number    string    `json:"number"`
	Status    string    `json:"status"`
	AmountDue float64   `json:"amount_due"`
	DueDate   time.Time `json:"due_date"`
}

func (a *Adapter) recognizeInvoice(change ChangeRecord) (*domain.DomainEvent, error) {
	if change.Op != "update" {
		return nil, nil
	}
	var row invoiceRow
	if err := json.Unmarshal(change.After, &row); err != nil {
		return nil, fmt.Errorf("decode invoices row: %w", err)
	}
	if !strings.EqualFold(row.Status, string(domain.InvoiceStatusSubmitted)) ||
		!row.DueDate.Before(change.OccurredAt) {
		return nil, nil
	}

	payload, err := domain.InvoiceOverduePayload{
		InvoiceID:     row.ID,
		InvoiceNumber: row.Number,
		AmountDue:     row.AmountDue,
		DueDate:       row.DueDate,
	}.ToJSON()
	if err != nil {
		return nil, err
	}

	// Deterministic key: write-triggered detection and the periodic sweep
	// must converge on the same idempotency key.
	event := a.event(change, domain.EventInvoiceOverdue, row.ProjectID, row.ID, payload)
	event.EventID = domain.OverdueEventID(row.ID, row.DueDate)
	return event, nil
}

type safetyIncidentRow struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	Severity       string `json:"severity"`
	OSHARecordable bool   `json:"osha_recordable"`
	Description    string `json:"description"`
}

func (a *Adapter) recognizeSafetyIncident(change ChangeRecord) (*domain.DomainEvent, error) {
	if change.Op != "insert" {
		return nil, nil
	}
	var row safetyIncidentRow
	if err := json.Unmarshal(change.After, &row); err != nil {
		return nil, fmt.Errorf("decode safety_incidents row: %w", err)
	}

	payload, err := domain.SafetyIncidentPayload{
		IncidentID:     row.ID,
		Severity:       row.Severity,
		OSHARecordable: row.OSHARecordable,
		Description:    row.Description,
	}.ToJSON()
	if err != nil {
		return nil, err
	}
	return a.event(change, domain.EventSafetyIncident, row.ProjectID, row.ID, payload), nil
}

type submittalRow struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Status      string `json:"status"`
	Title       string `json:"title"`
	SpecSection string `json:"spec_section"`
}

func (a *Adapter) recognizeSubmittal(change ChangeRecord) (*domain.DomainEvent, error) {
	if change.Op != "update" {
		return nil, nil
	}
	var after submittalRow
	if err := json.Unmarshal(change.After, &after); err != nil {
		return nil, fmt.Errorf("decode submittals row: %w", err)
	}
	if !strings.EqualFold(after.Status, "approved") {
		return nil, nil
	}

	var before submittalRow
	if len(change.Before) > 0 {
		if err := json.Unmarshal(change.Before, &before); err != nil {
			return nil, fmt.Errorf("decode submittals prior row: %w", err)
		}
	}
	// approved → approved is a redundant write, not a transition.
	if strings.EqualFold(before.Status, "approved") {
		return nil, nil
	}

	payload, err := domain.SubmittalApprovedPayload{
		SubmittalID: after.ID,
		Title:       after.Title,
		SpecSection: after.SpecSection,
		PriorStatus: strings.ToLower(before.Status),
	}.ToJSON()
	if err != nil {
		return nil, err
	}
	return a.event(change, domain.EventSubmittalApproved, after.ProjectID, after.ID, payload), nil
}

func (a *Adapter) event(change ChangeRecord, typ domain.EventType, projectID, sourceID string, payload []byte) *domain.DomainEvent {
	id := change.ChangeID
	if id == "" {
		id = uuid.NewString()
	}
	occurred := change.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return &domain.DomainEvent{
		EventID:      id,
		Type:         typ,
		TenantID:     change.TenantID,
		ProjectID:    projectID,
		SourceEntity: change.Entity,
		SourceID:     sourceID,
		Payload:      payload,
		OccurredAt:   occurred,
	}
}
