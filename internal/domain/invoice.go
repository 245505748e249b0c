package domain

import "time"

// InvoiceStatus is the billing lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSubmitted InvoiceStatus = "submitted"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusVoid      InvoiceStatus = "void"
)

// Invoice is a billing record attached to a project. The cascade shifts due
// dates of open invoices on weather delays and surfaces overdue ones.
type Invoice struct {
	ID              string        `json:"id"`
	ProjectID       string        `json:"project_id"`
	TenantID        string        `json:"tenant_id"`
	Number          string        `json:"number"`
	Status          InvoiceStatus `json:"status"`
	AmountDue       float64       `json:"amount_due"`
	DueDate         time.Time     `json:"due_date"`
	OverdueSurfaced bool          `json:"overdue_surfaced"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Open reports whether the invoice participates in schedule shifts.
// Only draft and submitted invoices move with the project schedule.
func (i Invoice) Open() bool {
	return i.Status == InvoiceStatusDraft || i.Status == InvoiceStatusSubmitted
}

// OverdueAt reports whether a submitted invoice is past due at the given time.
func (i Invoice) OverdueAt(now time.Time) bool {
	return i.Status == InvoiceStatusSubmitted && i.DueDate.Before(now)
}
