package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
)

// fakeStore is an in-memory Store with an optimistic version check, used to
// drive the dispatcher without a database.
type fakeStore struct {
	mu      sync.Mutex
	applied map[string]*domain.CascadeEffect
	project *domain.Project
	quality []float64
	safety  int
	open    []domain.Invoice

	// forcedConflicts makes the next N ApplyEffect calls fail with a
	// version conflict regardless of the expected version.
	forcedConflicts int
	snapshotErr     error
}

func newFakeStore(project *domain.Project) *fakeStore {
	return &fakeStore{
		applied: make(map[string]*domain.CascadeEffect),
		project: project,
	}
}

func (s *fakeStore) IsApplied(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.applied[eventID]
	return ok, nil
}

func (s *fakeStore) Snapshot(ctx context.Context, projectID string, asOf time.Time) (*domain.ProjectSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	if s.project == nil || s.project.ID != projectID {
		return nil, ErrProjectNotFound
	}
	proj := *s.project
	return &domain.ProjectSnapshot{
		Project:         proj,
		QualityScores:   append([]float64(nil), s.quality...),
		SafetyIncidents: s.safety,
		OpenInvoices:    append([]domain.Invoice(nil), s.open...),
		AsOf:            asOf,
	}, nil
}

func (s *fakeStore) ApplyEffect(ctx context.Context, effect *domain.CascadeEffect, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applied[effect.Event.EventID]; ok {
		return ErrAlreadyApplied
	}
	if s.forcedConflicts > 0 {
		s.forcedConflicts--
		return ErrVersionConflict
	}
	if effect.ProjectPatch != nil && !effect.ProjectPatch.Empty() {
		if s.project.Version != expectedVersion {
			return ErrVersionConflict
		}
		patch := effect.ProjectPatch
		s.project.EstimatedCompletionDate = s.project.EstimatedCompletionDate.AddDate(0, 0, patch.CompletionDelayDays)
		s.project.ScheduleVarianceDays += patch.VarianceDeltaDays
		if patch.HealthScore != nil {
			s.project.HealthScore = *patch.HealthScore
			s.project.StatusColor = patch.StatusColor
		}
		s.project.Version++
	}
	for _, ip := range effect.InvoicePatches {
		for i := range s.open {
			if s.open[i].ID != ip.InvoiceID {
				continue
			}
			if ip.DueDateShiftDays != 0 {
				s.open[i].DueDate = s.open[i].DueDate.AddDate(0, 0, ip.DueDateShiftDays)
			}
			if ip.MarkOverdueSurfaced {
				s.open[i].OverdueSurfaced = true
			}
		}
	}
	s.applied[effect.Event.EventID] = effect
	return nil
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []domain.BroadcastMessage
}

func (b *fakeBroadcaster) Publish(ctx context.Context, tenantID string, msg domain.BroadcastMessage) {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.mu.Unlock()
}

func testProject() *domain.Project {
	return &domain.Project{
		ID:                      "proj-1",
		TenantID:                "tenant-1",
		Name:                    "Riverside Tower",
		EstimatedCompletionDate: time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		ScheduleVarianceDays:    2,
		EstimatedCost:           1_000_000,
		ActualCost:              1_020_000,
		Version:                 7,
	}
}

func weatherEvent(id string, days int) *domain.DomainEvent {
	payload, _ := domain.WeatherDelayPayload{
		LogID:            "log-1",
		DelayDays:        days,
		WeatherCondition: "heavy rain",
	}.ToJSON()
	return &domain.DomainEvent{
		EventID:      id,
		Type:         domain.EventWeatherDelay,
		TenantID:     "tenant-1",
		ProjectID:    "proj-1",
		SourceEntity: "daily_logs",
		SourceID:     "log-1",
		Payload:      payload,
		OccurredAt:   time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func newTestDispatcher(t *testing.T, store Store, b Broadcaster) *Dispatcher {
	t.Helper()
	d := NewDispatcher(store, b, DispatcherConfig{MaxApplyAttempts: 3})
	params := DefaultScoreParams()
	for _, h := range []Handler{
		NewWeatherDelayHandler(params),
		NewDefectFoundHandler(params),
		NewInvoiceOverdueHandler(),
		NewSafetyIncidentHandler(params),
		NewSubmittalApprovedHandler(),
	} {
		require.NoError(t, d.Register(h))
	}
	return d
}

func TestDispatchWeatherDelayAppliesFullEffect(t *testing.T) {
	store := newFakeStore(testProject())
	due := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	store.open = []domain.Invoice{{
		ID:        "inv-1",
		ProjectID: "proj-1",
		Status:    domain.InvoiceStatusSubmitted,
		DueDate:   due,
	}}
	b := &fakeBroadcaster{}
	d := newTestDispatcher(t, store, b)

	outcome, err := d.Dispatch(context.Background(), weatherEvent("evt-1", 3))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, outcome.Status)

	require.Equal(t, time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC), store.project.EstimatedCompletionDate)
	require.Equal(t, 5, store.project.ScheduleVarianceDays)
	require.Equal(t, int64(8), store.project.Version)
	require.Equal(t, due.AddDate(0, 0, 3), store.open[0].DueDate)

	effect := store.applied["evt-1"]
	require.NotNil(t, effect.DelayClaim)
	require.Equal(t, 3, effect.DelayClaim.DelayDays)
	require.Len(t, effect.Notifications, 1)
	require.ElementsMatch(t,
		[]domain.Role{domain.RoleProjectManager, domain.RoleSuperintendent},
		effect.Notifications[0].Recipients)
	require.Len(t, b.messages, 1)
	require.Equal(t, "project.weather_delay", b.messages[0].Type)
}

func TestDispatchIsIdempotentPerEventID(t *testing.T) {
	store := newFakeStore(testProject())
	d := newTestDispatcher(t, store, nil)

	first, err := d.Dispatch(context.Background(), weatherEvent("evt-dup", 2))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, first.Status)

	variance := store.project.ScheduleVarianceDays
	version := store.project.Version

	second, err := d.Dispatch(context.Background(), weatherEvent("evt-dup", 2))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAlreadyApplied, second.Status)
	require.Equal(t, variance, store.project.ScheduleVarianceDays)
	require.Equal(t, version, store.project.Version)
}

func TestDispatchConcurrentDuplicatesApplyOnce(t *testing.T) {
	store := newFakeStore(testProject())
	d := newTestDispatcher(t, store, nil)

	const n = 16
	outcomes := make([]domain.OutcomeStatus, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := d.Dispatch(context.Background(), weatherEvent("evt-race", 4))
			require.NoError(t, err)
			outcomes[i] = outcome.Status
		}(i)
	}
	wg.Wait()

	var appliedCount int
	for _, s := range outcomes {
		switch s {
		case domain.OutcomeApplied:
			appliedCount++
		case domain.OutcomeAlreadyApplied:
		default:
			t.Fatalf("unexpected outcome %q", s)
		}
	}
	require.Equal(t, 1, appliedCount)
	require.Equal(t, 6, store.project.ScheduleVarianceDays)
	require.Equal(t, int64(8), store.project.Version)
}

func TestDispatchConcurrentDistinctEventsSerialize(t *testing.T) {
	store := newFakeStore(testProject())
	d := newTestDispatcher(t, store, nil)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "evt-par-" + string(rune('a'+i))
			outcome, err := d.Dispatch(context.Background(), weatherEvent(id, 1))
			require.NoError(t, err)
			require.Equal(t, domain.OutcomeApplied, outcome.Status)
		}(i)
	}
	wg.Wait()

	// Every event applied exactly once on top of the previous state.
	require.Equal(t, 2+n, store.project.ScheduleVarianceDays)
	require.Equal(t, int64(7+n), store.project.Version)
}

func TestDispatchRetriesVersionConflictThenSucceeds(t *testing.T) {
	store := newFakeStore(testProject())
	store.forcedConflicts = 2
	d := newTestDispatcher(t, store, nil)

	outcome, err := d.Dispatch(context.Background(), weatherEvent("evt-retry", 1))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, outcome.Status)
}

func TestDispatchExhaustedConflictsIsFatal(t *testing.T) {
	store := newFakeStore(testProject())
	store.forcedConflicts = 10
	d := newTestDispatcher(t, store, nil)

	_, err := d.Dispatch(context.Background(), weatherEvent("evt-exhaust", 1))
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeConcurrencyConflict, appErr.Code)
}

func TestDispatchMissingProjectIsFatal(t *testing.T) {
	store := newFakeStore(testProject())
	d := newTestDispatcher(t, store, nil)

	event := weatherEvent("evt-missing", 1)
	event.ProjectID = "proj-ghost"
	_, err := d.Dispatch(context.Background(), event)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrProjectNotFound))
}

func TestDispatchMalformedEventRejectedWithoutSideEffects(t *testing.T) {
	store := newFakeStore(testProject())
	d := newTestDispatcher(t, store, nil)

	event := weatherEvent("evt-bad", 3)
	event.Payload = []byte(`{"delay_days": -1, "log_id": "log-1"}`)
	outcome, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRejected, outcome.Status)
	require.NotEmpty(t, outcome.Reason)
	require.Empty(t, store.applied)
	require.Equal(t, int64(7), store.project.Version)
}

func TestDispatchUnknownTypeIsNoOp(t *testing.T) {
	store := newFakeStore(testProject())
	d := NewDispatcher(store, nil, DispatcherConfig{})

	event := weatherEvent("evt-unknown", 1)
	event.Type = domain.EventType("SOMETHING_ELSE")
	outcome, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRejected, outcome.Status)
	require.Empty(t, store.applied)
}

func TestRegisterRejectsDuplicateHandler(t *testing.T) {
	d := NewDispatcher(newFakeStore(testProject()), nil, DispatcherConfig{})
	require.NoError(t, d.Register(NewInvoiceOverdueHandler()))
	require.Error(t, d.Register(NewInvoiceOverdueHandler()))
}
