package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func seededStore(t *testing.T) (*Store, domain.Project) {
	t.Helper()

	store := New(Options{})
	project := domain.Project{
		ID:                      "proj-1",
		TenantID:                "tenant-1",
		Name:                    "Harbor Point Parking Structure",
		EstimatedCompletionDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		ScheduleVarianceDays:    1,
		HealthScore:             4.0,
		StatusColor:             domain.ColorGreen,
		Version:                 3,
	}
	store.PutProject(project)
	return store, project
}

func testEffect(project domain.Project, eventID string) *domain.CascadeEffect {
	return &domain.CascadeEffect{
		Event: &domain.DomainEvent{
			EventID:    eventID,
			Type:       domain.EventWeatherDelay,
			TenantID:   project.TenantID,
			ProjectID:  project.ID,
			OccurredAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		},
		ProjectPatch: &domain.ProjectPatch{
			CompletionDelayDays: 2,
			VarianceDeltaDays:   2,
		},
		Notifications: []domain.NotificationDraft{{
			Type:     "weather_delay",
			Priority: domain.PriorityNormal,
			Title:    "Weather delay recorded",
			Channels: []domain.Channel{domain.ChannelInApp},
		}},
		Actions: []string{"shifted completion by 2 days"},
	}
}

func TestApplyEffect_PatchesAndVersionBump(t *testing.T) {
	ctx := context.Background()
	store, project := seededStore(t)

	if err := store.ApplyEffect(ctx, testEffect(project, "evt-1"), project.Version); err != nil {
		t.Fatalf("ApplyEffect: %v", err)
	}

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Version != project.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, project.Version+1)
	}
	if got.ScheduleVarianceDays != 3 {
		t.Errorf("variance = %d, want 3", got.ScheduleVarianceDays)
	}
	want := project.EstimatedCompletionDate.AddDate(0, 0, 2)
	if !got.EstimatedCompletionDate.Equal(want) {
		t.Errorf("completion = %v, want %v", got.EstimatedCompletionDate, want)
	}
	if len(store.EnqueuedDeliveries) != 1 {
		t.Errorf("enqueued deliveries = %d, want 1", len(store.EnqueuedDeliveries))
	}
}

func TestApplyEffect_DedupAndConflict(t *testing.T) {
	ctx := context.Background()
	store, project := seededStore(t)

	if err := store.ApplyEffect(ctx, testEffect(project, "evt-1"), project.Version); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := store.ApplyEffect(ctx, testEffect(project, "evt-1"), project.Version+1); !errors.Is(err, cascade.ErrAlreadyApplied) {
		t.Errorf("second apply err = %v, want ErrAlreadyApplied", err)
	}
	if err := store.ApplyEffect(ctx, testEffect(project, "evt-2"), project.Version); !errors.Is(err, cascade.ErrVersionConflict) {
		t.Errorf("stale apply err = %v, want ErrVersionConflict", err)
	}

	// The conflicted event must not be marked applied.
	applied, err := store.IsApplied(ctx, "evt-2")
	if err != nil {
		t.Fatalf("IsApplied: %v", err)
	}
	if applied {
		t.Error("conflicted event is marked applied")
	}
}

func TestOutbox_OrderAndDedup(t *testing.T) {
	ctx := context.Background()
	store, project := seededStore(t)

	for _, id := range []string{"evt-a", "evt-b", "evt-a"} {
		err := store.AppendEvent(ctx, &domain.DomainEvent{
			EventID:    id,
			Type:       domain.EventDefectFound,
			TenantID:   project.TenantID,
			ProjectID:  project.ID,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("AppendEvent %s: %v", id, err)
		}
	}

	pending, err := store.PendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Event.EventID != "evt-a" || pending[1].Event.EventID != "evt-b" {
		t.Errorf("order = [%s %s], want [evt-a evt-b]", pending[0].Event.EventID, pending[1].Event.EventID)
	}

	if err := store.MarkDeadLetter(ctx, "evt-a", "handler kept failing"); err != nil {
		t.Fatalf("MarkDeadLetter: %v", err)
	}
	if reason, ok := store.DeadLetteredReason("evt-a"); !ok || reason != "handler kept failing" {
		t.Errorf("dead letter reason = %q, ok = %v", reason, ok)
	}

	pending, err = store.PendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 || pending[0].Event.EventID != "evt-b" {
		t.Errorf("pending after dead-letter = %+v, want only evt-b", pending)
	}
}

func TestSnapshot_TrailingWindows(t *testing.T) {
	ctx := context.Background()
	store, project := seededStore(t)

	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.AddQualityScore(project.ID, 4.5, asOf.AddDate(0, 0, -3))
	store.AddQualityScore(project.ID, 1.0, asOf.AddDate(0, 0, -60))
	store.AddSafetyIncident(project.ID, asOf.AddDate(0, 0, -30))
	store.AddSafetyIncident(project.ID, asOf.AddDate(0, 0, -200))

	snap, err := store.Snapshot(ctx, project.ID, asOf)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.QualityScores) != 1 || snap.QualityScores[0] != 4.5 {
		t.Errorf("quality scores = %v, want [4.5]", snap.QualityScores)
	}
	if snap.SafetyIncidents != 1 {
		t.Errorf("safety incidents = %d, want 1", snap.SafetyIncidents)
	}
}

func TestDeleteNotificationsBefore(t *testing.T) {
	ctx := context.Background()
	store, project := seededStore(t)

	if err := store.ApplyEffect(ctx, testEffect(project, "evt-1"), project.Version); err != nil {
		t.Fatalf("ApplyEffect: %v", err)
	}

	deleted, err := store.DeleteNotificationsBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteNotificationsBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	notifications, err := store.ListProjectNotifications(ctx, project.ID, 10)
	if err != nil {
		t.Fatalf("ListProjectNotifications: %v", err)
	}
	if len(notifications) != 0 {
		t.Errorf("notifications = %d, want 0", len(notifications))
	}
}
