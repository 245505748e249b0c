package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// DispatcherConfig bounds the dispatcher's retry behavior.
type DispatcherConfig struct {
	// MaxApplyAttempts bounds optimistic-lock retries per event. After the
	// bound the conflict is surfaced as a fatal error.
	MaxApplyAttempts int
}

// Dispatcher routes domain events to their registered handler and applies
// the resulting cascade effect exactly once per event id.
//
// Exactly one handler per event type; a type with no handler is a no-op.
// Events for the same project are serialized through a per-project lock plus
// the repository's optimistic version check; events for different projects
// proceed fully in parallel.
type Dispatcher struct {
	store       Store
	broadcaster Broadcaster
	handlers    map[domain.EventType]Handler
	locks       *keyedMutex
	cfg         DispatcherConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewDispatcher creates a Dispatcher. broadcaster may be nil.
func NewDispatcher(store Store, broadcaster Broadcaster, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxApplyAttempts < 1 {
		cfg.MaxApplyAttempts = 3
	}
	return &Dispatcher{
		store:       store,
		broadcaster: broadcaster,
		handlers:    make(map[domain.EventType]Handler),
		locks:       newKeyedMutex(),
		cfg:         cfg,
		now:         time.Now,
	}
}

// Register registers the handler for its event type.
// Registration happens at bootstrap, before Dispatch is called.
func (d *Dispatcher) Register(h Handler) error {
	if _, dup := d.handlers[h.Type()]; dup {
		return fmt.Errorf("handler already registered for event type %s", h.Type())
	}
	d.handlers[h.Type()] = h
	return nil
}

// Dispatch applies one domain event.
//
// Outcomes: applied (effect committed), already_applied (dedup guard fired,
// no side effects), rejected (validation failed or no handler; never
// retried). A non-nil error means the event was not consumed: retryable
// failures leave it eligible for redelivery, while ErrProjectNotFound and
// exhausted version conflicts are fatal and must be surfaced.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.DomainEvent) (domain.Outcome, error) {
	if err := event.Validate(); err != nil {
		logger.Warn("event rejected before dispatch",
			zap.String("event_id", eventID(event)),
			zap.Error(err),
		)
		return domain.Outcome{Status: domain.OutcomeRejected, Reason: err.Error()}, nil
	}

	handler, ok := d.handlers[event.Type]
	if !ok {
		// Unknown types are a no-op by contract, not an error.
		logger.Debug("no handler registered for event type",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.EventID),
		)
		return domain.Outcome{Status: domain.OutcomeRejected, Reason: "no handler registered"}, nil
	}

	// Single-writer-per-project discipline. Events without a project link
	// (safety incidents) serialize on their own event id.
	lockKey := event.ProjectID
	if lockKey == "" {
		lockKey = event.EventID
	}
	unlock := d.locks.Lock(lockKey)
	defer unlock()

	applied, err := d.store.IsApplied(ctx, event.EventID)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("dedup check for event %s: %w", event.EventID, err)
	}
	if applied {
		return domain.Outcome{Status: domain.OutcomeAlreadyApplied}, nil
	}

	for attempt := 1; ; attempt++ {
		outcome, err := d.attempt(ctx, handler, event)
		if err == nil || !errors.Is(err, ErrVersionConflict) {
			return outcome, err
		}
		if attempt >= d.cfg.MaxApplyAttempts {
			// Exhausted retries: fatal, needs operator attention.
			return domain.Outcome{}, fmt.Errorf("apply event %s after %d attempts: %w",
				event.EventID, attempt, apperrors.ErrConcurrencyConflictf(event.ProjectID))
		}
		logger.Debug("version conflict, retrying with fresh snapshot",
			zap.String("event_id", event.EventID),
			zap.String("project_id", event.ProjectID),
			zap.Int("attempt", attempt),
		)
	}
}

// attempt runs one snapshot → handler → apply cycle.
func (d *Dispatcher) attempt(ctx context.Context, handler Handler, event *domain.DomainEvent) (domain.Outcome, error) {
	var snap *domain.ProjectSnapshot
	if event.ProjectID != "" {
		var err error
		snap, err = d.store.Snapshot(ctx, event.ProjectID, d.now())
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				// Referenced-entity-missing is fatal, never silently dropped.
				return domain.Outcome{}, fmt.Errorf("event %s references missing project %s: %w",
					event.EventID, event.ProjectID, err)
			}
			return domain.Outcome{}, fmt.Errorf("snapshot project %s: %w", event.ProjectID, err)
		}
	}

	effect, err := handler.Handle(ctx, event, snap)
	if err != nil {
		if isValidationErr(err) {
			logger.Warn("handler rejected event",
				zap.String("event_id", event.EventID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			return domain.Outcome{Status: domain.OutcomeRejected, Reason: err.Error()}, nil
		}
		return domain.Outcome{}, fmt.Errorf("handler for %s failed on event %s: %w",
			event.Type, event.EventID, err)
	}
	effect.Event = event

	var expectedVersion int64
	if snap != nil {
		expectedVersion = snap.Project.Version
	}
	if err := d.store.ApplyEffect(ctx, effect, expectedVersion); err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			return domain.Outcome{Status: domain.OutcomeAlreadyApplied}, nil
		}
		return domain.Outcome{}, err
	}

	// Post-commit, best-effort. Broadcast loss never invalidates the
	// committed effect.
	if d.broadcaster != nil {
		for _, msg := range effect.Broadcasts {
			d.broadcaster.Publish(ctx, event.TenantID, msg)
		}
	}

	logger.Info("cascade effect applied",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.Type)),
		zap.String("project_id", event.ProjectID),
		zap.Int("notifications", len(effect.Notifications)),
	)
	return domain.Outcome{Status: domain.OutcomeApplied}, nil
}

func eventID(event *domain.DomainEvent) string {
	if event == nil {
		return ""
	}
	return event.EventID
}
