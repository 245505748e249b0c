// Package memory provides a mutex-guarded in-memory implementation of the
// persistence surfaces. It backs unit tests and local development where a
// Postgres instance is not available.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
)

func notificationNotFound(id string) error {
	return apperrors.NotFound(apperrors.CodeNotificationNotFound, "notification not found").
		WithParams(map[string]interface{}{"notification_id": id})
}

// Options tunes the snapshot windows.
type Options struct {
	QualityWindow time.Duration
	SafetyWindow  time.Duration
}

// DefaultOptions returns the trailing windows used when none are configured:
// 30 days of quality inspections and 90 days of safety incidents.
func DefaultOptions() Options {
	return Options{
		QualityWindow: 30 * 24 * time.Hour,
		SafetyWindow:  90 * 24 * time.Hour,
	}
}

type qualityScore struct {
	projectID string
	score     float64
	at        time.Time
}

type safetyIncident struct {
	projectID string
	at        time.Time
}

type outboxRow struct {
	event      *domain.DomainEvent
	attempts   int
	consumed   bool
	outcome    domain.Outcome
	deadLetter bool
	reason     string
	seq        int64
}

// Store is the in-memory persistence root. The zero value is not usable;
// construct with New.
type Store struct {
	mu   sync.Mutex
	opts Options

	projects      map[string]*domain.Project
	invoices      map[string]*domain.Invoice
	quality       []qualityScore
	safety        []safetyIncident
	outbox        map[string]*outboxRow
	applied       map[string]time.Time
	claims        map[string]*domain.DelayClaim
	notifications map[string]*domain.Notification
	ledger        []domain.LedgerEntry
	seq           int64

	// EnqueuedDeliveries records the notification ids whose delivery jobs
	// would have been inserted transactionally. Tests assert against it.
	EnqueuedDeliveries []string
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.QualityWindow <= 0 {
		opts.QualityWindow = DefaultOptions().QualityWindow
	}
	if opts.SafetyWindow <= 0 {
		opts.SafetyWindow = DefaultOptions().SafetyWindow
	}
	return &Store{
		opts:          opts,
		projects:      make(map[string]*domain.Project),
		invoices:      make(map[string]*domain.Invoice),
		outbox:        make(map[string]*outboxRow),
		applied:       make(map[string]time.Time),
		claims:        make(map[string]*domain.DelayClaim),
		notifications: make(map[string]*domain.Notification),
	}
}

// PutProject upserts a project row.
func (s *Store) PutProject(p domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.projects[p.ID] = &cp
}

// GetProject returns the project or cascade.ErrProjectNotFound.
func (s *Store) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, cascade.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

// PutInvoice upserts an invoice row.
func (s *Store) PutInvoice(inv domain.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := inv
	s.invoices[inv.ID] = &cp
}

// GetInvoice returns the invoice by id.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, false
	}
	cp := *inv
	return &cp, true
}

// AddQualityScore records an inspection score for the project.
func (s *Store) AddQualityScore(projectID string, score float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = append(s.quality, qualityScore{projectID: projectID, score: score, at: at})
}

// AddSafetyIncident records a safety incident for the project.
func (s *Store) AddSafetyIncident(projectID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safety = append(s.safety, safetyIncident{projectID: projectID, at: at})
}

// IsApplied implements cascade.Store.
func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.applied[eventID]
	return ok, nil
}

// Snapshot implements cascade.Store.
func (s *Store) Snapshot(ctx context.Context, projectID string, asOf time.Time) (*domain.ProjectSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, cascade.ErrProjectNotFound
	}

	snap := &domain.ProjectSnapshot{Project: *p, AsOf: asOf}
	qualityCutoff := asOf.Add(-s.opts.QualityWindow)
	for _, q := range s.quality {
		if q.projectID == projectID && q.at.After(qualityCutoff) {
			snap.QualityScores = append(snap.QualityScores, q.score)
		}
	}
	safetyCutoff := asOf.Add(-s.opts.SafetyWindow)
	for _, inc := range s.safety {
		if inc.projectID == projectID && inc.at.After(safetyCutoff) {
			snap.SafetyIncidents++
		}
	}
	for _, inv := range s.invoices {
		if inv.ProjectID == projectID && inv.Open() {
			snap.OpenInvoices = append(snap.OpenInvoices, *inv)
		}
	}
	sort.Slice(snap.OpenInvoices, func(i, j int) bool {
		return snap.OpenInvoices[i].ID < snap.OpenInvoices[j].ID
	})
	return snap, nil
}

// ApplyEffect implements cascade.Store. It mirrors the Postgres transaction:
// dedup guard, version check, patches, claim, pending notifications, ledger
// append, outbox consume, and delivery enqueue all land together or not at
// all.
func (s *Store) ApplyEffect(ctx context.Context, effect *domain.CascadeEffect, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event := effect.Event
	if _, ok := s.applied[event.EventID]; ok {
		return cascade.ErrAlreadyApplied
	}

	var project *domain.Project
	if effect.ProjectPatch != nil && !effect.ProjectPatch.Empty() {
		project = s.projects[event.ProjectID]
		if project == nil {
			return cascade.ErrProjectNotFound
		}
		if project.Version != expectedVersion {
			return cascade.ErrVersionConflict
		}
	}

	now := time.Now().UTC()

	if project != nil {
		patch := effect.ProjectPatch
		if patch.CompletionDelayDays != 0 {
			project.EstimatedCompletionDate = project.EstimatedCompletionDate.AddDate(0, 0, patch.CompletionDelayDays)
		}
		project.ScheduleVarianceDays += patch.VarianceDeltaDays
		if project.ScheduleVarianceDays < 0 {
			project.ScheduleVarianceDays = 0
		}
		if patch.HealthScore != nil {
			project.HealthScore = *patch.HealthScore
			project.StatusColor = patch.StatusColor
		}
		project.Version++
		project.UpdatedAt = now
	}

	for _, ip := range effect.InvoicePatches {
		inv, ok := s.invoices[ip.InvoiceID]
		if !ok {
			continue
		}
		if ip.DueDateShiftDays != 0 {
			inv.DueDate = inv.DueDate.AddDate(0, 0, ip.DueDateShiftDays)
		}
		if ip.MarkOverdueSurfaced {
			inv.OverdueSurfaced = true
		}
	}

	if claim := effect.DelayClaim; claim != nil {
		cp := *claim
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.claims[cp.ID] = &cp
	}

	for _, draft := range effect.Notifications {
		n := &domain.Notification{
			ID:         uuid.NewString(),
			TenantID:   event.TenantID,
			ProjectID:  event.ProjectID,
			EventID:    event.EventID,
			Type:       draft.Type,
			Priority:   draft.Priority,
			Recipients: draft.Recipients,
			Title:      draft.Title,
			Message:    draft.Message,
			Channels:   draft.Channels,
			Status:     domain.NotificationPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.notifications[n.ID] = n
		s.EnqueuedDeliveries = append(s.EnqueuedDeliveries, n.ID)
	}

	s.ledger = append(s.ledger, domain.LedgerEntry{
		ID:           uuid.NewString(),
		EventID:      event.EventID,
		EventType:    event.Type,
		TenantID:     event.TenantID,
		ProjectID:    event.ProjectID,
		Source:       event.SourceEntity,
		Payload:      event.Payload,
		ActionsTaken: effect.Actions,
		CreatedAt:    now,
	})

	s.applied[event.EventID] = now
	if row, ok := s.outbox[event.EventID]; ok {
		row.consumed = true
		row.outcome = domain.Outcome{Status: domain.OutcomeApplied}
	}
	return nil
}

// AppendEvent appends a recognized event to the outbox. Appending an event id
// that already exists (pending, consumed, or dead-lettered) is a no-op, which
// is what makes deterministic ids from the sweep converge.
func (s *Store) AppendEvent(ctx context.Context, event *domain.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outbox[event.EventID]; ok {
		return nil
	}
	s.seq++
	s.outbox[event.EventID] = &outboxRow{event: event, seq: s.seq}
	return nil
}

// PendingEvents implements cascade.OutboxSource.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]cascade.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]*outboxRow, 0, len(s.outbox))
	for _, row := range s.outbox {
		if !row.consumed && !row.deadLetter {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]cascade.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, cascade.OutboxEvent{Event: row.event, Attempts: row.attempts})
	}
	return out, nil
}

// MarkConsumed implements cascade.OutboxSource.
func (s *Store) MarkConsumed(ctx context.Context, eventID string, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[eventID]
	if !ok {
		return nil
	}
	row.consumed = true
	row.outcome = outcome
	return nil
}

// MarkDeadLetter implements cascade.OutboxSource.
func (s *Store) MarkDeadLetter(ctx context.Context, eventID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[eventID]
	if !ok {
		return nil
	}
	row.deadLetter = true
	row.reason = reason
	return nil
}

// IncrementAttempt implements cascade.OutboxSource.
func (s *Store) IncrementAttempt(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.outbox[eventID]; ok {
		row.attempts++
	}
	return nil
}

// DeadLetteredReason reports whether the event is dead-lettered and why.
func (s *Store) DeadLetteredReason(eventID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[eventID]
	if !ok || !row.deadLetter {
		return "", false
	}
	return row.reason, true
}

// GetNotification returns the notification by id.
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, notificationNotFound(id)
	}
	cp := *n
	return &cp, nil
}

// ListProjectNotifications returns the project's notifications newest first.
func (s *Store) ListProjectNotifications(ctx context.Context, projectID string, limit int) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.ProjectID == projectID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotificationSent transitions the notification to sent.
func (s *Store) MarkNotificationSent(ctx context.Context, id string, attempts int) error {
	return s.setNotificationStatus(id, domain.NotificationSent, attempts)
}

// MarkNotificationFailed parks the notification as failed.
func (s *Store) MarkNotificationFailed(ctx context.Context, id string, attempts int) error {
	return s.setNotificationStatus(id, domain.NotificationFailed, attempts)
}

func (s *Store) setNotificationStatus(id string, status domain.NotificationStatus, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return notificationNotFound(id)
	}
	n.Status = status
	n.Attempts = attempts
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteNotificationsBefore removes notifications created before the cutoff.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int
	for id, n := range s.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// ListLedger returns the project's ledger entries within [from, to), newest
// first. Zero bounds are open.
func (s *Store) ListLedger(ctx context.Context, projectID string, from, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, entry := range s.ledger {
		if entry.ProjectID != projectID {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OverdueInvoices returns submitted invoices past due at asOf that have not
// been surfaced yet.
func (s *Store) OverdueInvoices(ctx context.Context, asOf time.Time, limit int) ([]domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range s.invoices {
		if inv.OverdueAt(asOf) && !inv.OverdueSurfaced {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DelayClaims returns the delay claims filed for a project.
func (s *Store) DelayClaims(ctx context.Context, projectID string) ([]domain.DelayClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DelayClaim
	for _, c := range s.claims {
		if c.ProjectID == projectID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
