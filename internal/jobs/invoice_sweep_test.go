package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/domain"
)

type fakeSweepStore struct {
	invoices []domain.Invoice
	appended []*domain.DomainEvent
}

func (s *fakeSweepStore) OverdueInvoices(ctx context.Context, asOf time.Time, limit int) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for _, inv := range s.invoices {
		if len(out) >= limit {
			break
		}
		if inv.OverdueAt(asOf) && !inv.OverdueSurfaced {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *fakeSweepStore) AppendEvent(ctx context.Context, event *domain.DomainEvent) error {
	for _, existing := range s.appended {
		if existing.EventID == event.EventID {
			return nil
		}
	}
	s.appended = append(s.appended, event)
	return nil
}

func TestInvoiceSweepArgsKind(t *testing.T) {
	t.Parallel()

	if got := (InvoiceSweepArgs{}).Kind(); got != "invoice_sweep" {
		t.Fatalf("Kind() = %q, want %q", got, "invoice_sweep")
	}
}

func TestInvoiceSweepArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (InvoiceSweepArgs{}).InsertOpts()
	if opts.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
	}
	if opts.UniqueOpts.ByPeriod != time.Hour {
		t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, time.Hour)
	}
	if !opts.UniqueOpts.ByQueue || !opts.UniqueOpts.ByArgs {
		t.Fatal("UniqueOpts must be scoped by queue and args")
	}
}

func TestInvoiceSweepWorkerWork_AppendsDeterministicEvents(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	store := &fakeSweepStore{invoices: []domain.Invoice{
		{ID: "inv-1", TenantID: "tenant-1", ProjectID: "proj-1", Number: "INV-1",
			Status: domain.InvoiceStatusSubmitted, AmountDue: 100, DueDate: due},
		{ID: "inv-paid", TenantID: "tenant-1", ProjectID: "proj-1", Number: "INV-2",
			Status: domain.InvoiceStatusPaid, DueDate: due},
		{ID: "inv-future", TenantID: "tenant-1", ProjectID: "proj-1", Number: "INV-3",
			Status: domain.InvoiceStatusSubmitted, DueDate: now.AddDate(0, 1, 0)},
	}}

	w := NewInvoiceSweepWorker(store, 0)
	w.now = func() time.Time { return now }

	if err := w.Work(context.Background(), &river.Job[InvoiceSweepArgs]{}); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if len(store.appended) != 1 {
		t.Fatalf("appended %d events, want 1", len(store.appended))
	}

	event := store.appended[0]
	if want := domain.OverdueEventID("inv-1", due); event.EventID != want {
		t.Fatalf("EventID = %q, want %q", event.EventID, want)
	}
	if event.Type != domain.EventInvoiceOverdue {
		t.Fatalf("Type = %q, want %q", event.Type, domain.EventInvoiceOverdue)
	}

	// A repeated sweep converges on the same event id.
	if err := w.Work(context.Background(), &river.Job[InvoiceSweepArgs]{}); err != nil {
		t.Fatalf("second Work() error = %v", err)
	}
	if len(store.appended) != 1 {
		t.Fatalf("appended %d events after re-sweep, want 1", len(store.appended))
	}
}

func TestInvoiceSweepWorkerWork_Uninitialized(t *testing.T) {
	t.Parallel()

	var w *InvoiceSweepWorker
	err := w.Work(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("Work() error = %v, want contains %q", err, "not initialized")
	}
}

func TestNewInvoiceSweepWorkerBatchSizeDefault(t *testing.T) {
	t.Parallel()

	w := NewInvoiceSweepWorker(&fakeSweepStore{}, -1)
	if w.batchSize != DefaultSweepBatchSize {
		t.Fatalf("batchSize = %d, want %d", w.batchSize, DefaultSweepBatchSize)
	}
}
