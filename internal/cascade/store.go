// Package cascade implements the domain event cascade engine: it routes
// recognized domain events to per-type handlers and applies the resulting
// effect bundles atomically, exactly once per event id.
package cascade

import (
	"context"
	"errors"
	"time"

	"sitepulse.io/sitepulse/internal/domain"
)

// Sentinel errors implementations of Store must return so the dispatcher can
// distinguish retryable from terminal apply failures.
var (
	// ErrAlreadyApplied signals the dedup guard fired: a cascade effect for
	// this event id has already been committed.
	ErrAlreadyApplied = errors.New("cascade effect already applied for event")

	// ErrVersionConflict signals the project aggregate changed between
	// snapshot and apply. The dispatcher retries with a fresh snapshot.
	ErrVersionConflict = errors.New("project aggregate version conflict")

	// ErrProjectNotFound signals the event references a missing project.
	// Fatal and non-retryable; never silently dropped.
	ErrProjectNotFound = errors.New("project not found")
)

// Store is the persistence surface the dispatcher requires. The concrete
// implementation lives in internal/repository.
type Store interface {
	// IsApplied reports whether a cascade effect for the event id has
	// already been committed.
	IsApplied(ctx context.Context, eventID string) (bool, error)

	// Snapshot loads the project read model the handlers compute over.
	// Quality and safety facts are restricted to the configured trailing
	// windows as of the given time. Returns ErrProjectNotFound if the
	// project does not exist.
	Snapshot(ctx context.Context, projectID string, asOf time.Time) (*domain.ProjectSnapshot, error)

	// ApplyEffect commits the whole effect as one atomic unit: project and
	// invoice patches, delay claim, pending notifications, ledger entry,
	// dedup mark, outbox consumption, and delivery job enqueue. Nothing is
	// committed on error. expectedVersion guards the project aggregate;
	// it is ignored when the effect has no project patch target.
	ApplyEffect(ctx context.Context, effect *domain.CascadeEffect, expectedVersion int64) error
}

// Broadcaster publishes real-time messages to the tenant topic after a
// cascade effect commits. Best-effort: publish failures never affect the
// committed state.
type Broadcaster interface {
	Publish(ctx context.Context, tenantID string, msg domain.BroadcastMessage)
}

// Handler computes the cascade effect for one event type over a consistent
// project snapshot. Handlers are pure with respect to business state: all
// writes go through the effect bundle.
type Handler interface {
	// Type returns the single event type this handler serves.
	Type() domain.EventType

	// Handle computes the effect. snap is nil when the event has no project
	// link (only SAFETY_INCIDENT). A validation error rejects the event
	// before any mutation; any other error discards the effect and leaves
	// the event eligible for retry.
	Handle(ctx context.Context, event *domain.DomainEvent, snap *domain.ProjectSnapshot) (*domain.CascadeEffect, error)
}
