package cascade

import (
	"context"
	"encoding/json"
	"fmt"

	"sitepulse.io/sitepulse/internal/domain"
)

// InvoiceOverdueHandler surfaces a submitted invoice whose due date has
// passed. It is fed both by invoice-update events and by the periodic sweep;
// both paths share the dispatcher's idempotency on the deterministic
// (invoice_id, due_date) event key, so repeated sweeps never re-notify.
type InvoiceOverdueHandler struct{}

// NewInvoiceOverdueHandler creates the handler.
func NewInvoiceOverdueHandler() *InvoiceOverdueHandler {
	return &InvoiceOverdueHandler{}
}

// Type implements Handler.
func (h *InvoiceOverdueHandler) Type() domain.EventType { return domain.EventInvoiceOverdue }

// Handle implements Handler.
func (h *InvoiceOverdueHandler) Handle(ctx context.Context, event *domain.DomainEvent, snap *domain.ProjectSnapshot) (*domain.CascadeEffect, error) {
	var payload domain.InvoiceOverduePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, validationErr(fmt.Sprintf("invoice overdue payload: %v", err))
	}
	if payload.InvoiceID == "" {
		return nil, validationErr("invoice_id is required")
	}

	// No aggregate patch beyond marking the invoice surfaced.
	return &domain.CascadeEffect{
		Event: event,
		InvoicePatches: []domain.InvoicePatch{{
			InvoiceID:           payload.InvoiceID,
			MarkOverdueSurfaced: true,
		}},
		Notifications: []domain.NotificationDraft{{
			Type:       string(domain.EventInvoiceOverdue),
			Priority:   domain.PriorityHigh,
			Recipients: []domain.Role{domain.RoleProjectManager},
			Title:      fmt.Sprintf("Invoice %s is overdue", payload.InvoiceNumber),
			Message: fmt.Sprintf("Invoice %s for %.2f was due %s and is still unpaid.",
				payload.InvoiceNumber, payload.AmountDue, payload.DueDate.Format("2006-01-02")),
			Channels: channelsFor(domain.PriorityHigh),
		}},
		Broadcasts: []domain.BroadcastMessage{
			broadcastFor(event, "project.invoice_overdue", map[string]interface{}{
				"invoice_id": payload.InvoiceID,
				"amount_due": payload.AmountDue,
				"due_date":   payload.DueDate,
			}),
		},
		Actions: []string{
			fmt.Sprintf("invoice %s surfaced as overdue", payload.InvoiceID),
			"project manager notified at high priority",
		},
	}, nil
}
