package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// DefaultSweepBatchSize bounds one sweep cycle.
const DefaultSweepBatchSize = 500

// SweepStore is the persistence surface the invoice sweep needs.
type SweepStore interface {
	// OverdueInvoices returns submitted invoices past due at asOf that have
	// not been surfaced yet.
	OverdueInvoices(ctx context.Context, asOf time.Time, limit int) ([]domain.Invoice, error)

	// AppendEvent appends an event to the outbox; appending an existing
	// event id is a no-op.
	AppendEvent(ctx context.Context, event *domain.DomainEvent) error
}

// InvoiceSweepArgs is the periodic backstop for overdue invoices the change
// feed missed (an invoice can become overdue by time passing, with no write).
type InvoiceSweepArgs struct{}

// Kind returns the job kind identifier for the invoice sweep.
func (InvoiceSweepArgs) Kind() string { return "invoice_sweep" }

// InsertOpts keeps at most one sweep queued per hour.
func (InvoiceSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// InvoiceSweepWorker synthesizes InvoiceOverdue events for overdue submitted
// invoices. Event ids are deterministic on (invoice_id, due_date), so a
// repeated sweep, or a sweep racing the change feed, converges on the same
// event and the dedup guard keeps the cascade single-shot.
type InvoiceSweepWorker struct {
	river.WorkerDefaults[InvoiceSweepArgs]
	store     SweepStore
	batchSize int
	now       func() time.Time
}

// NewInvoiceSweepWorker creates a sweep worker. Non-positive batch size
// falls back to the default.
func NewInvoiceSweepWorker(store SweepStore, batchSize int) *InvoiceSweepWorker {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &InvoiceSweepWorker{store: store, batchSize: batchSize, now: time.Now}
}

// Work scans for overdue invoices and feeds them through the outbox.
func (w *InvoiceSweepWorker) Work(ctx context.Context, _ *river.Job[InvoiceSweepArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("invoice sweep worker is not initialized")
	}

	asOf := w.now().UTC()
	invoices, err := w.store.OverdueInvoices(ctx, asOf, w.batchSize)
	if err != nil {
		return fmt.Errorf("scan overdue invoices: %w", err)
	}

	var appended int
	for _, inv := range invoices {
		payload, err := domain.InvoiceOverduePayload{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			AmountDue:     inv.AmountDue,
			DueDate:       inv.DueDate,
		}.ToJSON()
		if err != nil {
			return fmt.Errorf("encode overdue payload for invoice %s: %w", inv.ID, err)
		}

		event := &domain.DomainEvent{
			EventID:      domain.OverdueEventID(inv.ID, inv.DueDate),
			Type:         domain.EventInvoiceOverdue,
			TenantID:     inv.TenantID,
			ProjectID:    inv.ProjectID,
			SourceEntity: "invoices",
			SourceID:     inv.ID,
			Payload:      payload,
			OccurredAt:   asOf,
		}
		if err := w.store.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append overdue event for invoice %s: %w", inv.ID, err)
		}
		appended++
	}

	if appended > 0 {
		logger.Info("invoice sweep completed",
			zap.Int("overdue_invoices", appended),
			zap.String("as_of", asOf.Format(time.RFC3339)),
		)
	}
	return nil
}
