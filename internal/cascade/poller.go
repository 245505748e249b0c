package cascade

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
	"sitepulse.io/sitepulse/internal/pkg/logger"
	"sitepulse.io/sitepulse/internal/pkg/worker"
)

// OutboxEvent is one pending outbox row: the canonical event plus the
// delivery attempt count accumulated so far.
type OutboxEvent struct {
	Event    *domain.DomainEvent
	Attempts int
}

// OutboxSource is the pending-event feed the poller drains. The repository
// appends events in the source transaction; the poller only consumes.
type OutboxSource interface {
	// PendingEvents returns up to limit undelivered events in append order.
	// Consumed and dead-lettered events are excluded.
	PendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error)

	// MarkConsumed records the terminal outcome for a delivered event.
	// Applied events are usually consumed inside ApplyEffect already, so
	// this must tolerate an event that is no longer pending.
	MarkConsumed(ctx context.Context, eventID string, outcome domain.Outcome) error

	// MarkDeadLetter parks the event for operator review. Dead-lettered
	// events are never redelivered.
	MarkDeadLetter(ctx context.Context, eventID, reason string) error

	// IncrementAttempt bumps the delivery attempt count after a retryable
	// dispatch failure.
	IncrementAttempt(ctx context.Context, eventID string) error
}

// PollerConfig bounds the poller's batch and retry behavior.
type PollerConfig struct {
	Interval            time.Duration
	BatchSize           int
	MaxDispatchAttempts int
}

// Poller drains the outbox and feeds events to the dispatcher over the
// cascade worker pool.
//
// Ordering contract: within one project, events dispatch strictly in append
// order. The poller admits at most one in-flight event per project and skips
// the project's later events until the head completes; the next poll picks
// them up. Events for different projects run in parallel up to the pool cap.
type Poller struct {
	source     OutboxSource
	dispatcher *Dispatcher
	pools      *worker.Pools
	cfg        PollerConfig

	mu       sync.Mutex
	inFlight map[string]struct{} // project id (or event id when unlinked)
}

// NewPoller creates a Poller.
func NewPoller(source OutboxSource, dispatcher *Dispatcher, pools *worker.Pools, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.MaxDispatchAttempts < 1 {
		cfg.MaxDispatchAttempts = 5
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		pools:      pools,
		cfg:        cfg,
		inFlight:   make(map[string]struct{}),
	}
}

// Run polls until the context is cancelled. Blocking; callers run it on a
// dedicated goroutine from the app lifecycle.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	logger.Info("outbox poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("batch_size", p.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				logger.Error("outbox poll failed", zap.Error(err))
			}
		}
	}
}

// poll runs one drain cycle. Exported through PollOnce for tests.
func (p *Poller) poll(ctx context.Context) error {
	pending, err := p.source.PendingEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, entry := range pending {
		entry := entry
		key := serializationKey(entry.Event)
		if !p.admit(key) {
			// A sibling event for this project is still in flight; keep
			// append order by deferring to the next poll.
			continue
		}

		err := p.pools.Cascade.Submit(ctx, func(taskCtx context.Context) {
			defer p.release(key)
			p.deliver(taskCtx, entry)
		})
		if err != nil {
			p.release(key)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Warn("cascade pool rejected outbox event",
				zap.String("event_id", entry.Event.EventID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// PollOnce runs a single synchronous drain cycle.
func (p *Poller) PollOnce(ctx context.Context) error {
	return p.poll(ctx)
}

// deliver dispatches one event and records its outcome in the outbox.
func (p *Poller) deliver(ctx context.Context, entry OutboxEvent) {
	event := entry.Event
	outcome, err := p.dispatcher.Dispatch(ctx, event)
	if err == nil {
		// Applied events are consumed inside the effect transaction;
		// rejected and already-applied outcomes are consumed here.
		if markErr := p.source.MarkConsumed(ctx, event.EventID, outcome); markErr != nil {
			logger.Error("mark outbox event consumed",
				zap.String("event_id", event.EventID),
				zap.Error(markErr),
			)
		}
		return
	}

	if ctx.Err() != nil {
		// Shutdown mid-dispatch: leave the event pending for the next run.
		return
	}

	attempts := entry.Attempts + 1
	if p.fatal(err) || attempts >= p.cfg.MaxDispatchAttempts {
		logger.Error("dead-lettering outbox event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.Type)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if dlErr := p.source.MarkDeadLetter(ctx, event.EventID, err.Error()); dlErr != nil {
			logger.Error("mark outbox event dead-lettered",
				zap.String("event_id", event.EventID),
				zap.Error(dlErr),
			)
		}
		return
	}

	logger.Warn("outbox event dispatch failed, will retry",
		zap.String("event_id", event.EventID),
		zap.Int("attempt", attempts),
		zap.Int("max_attempts", p.cfg.MaxDispatchAttempts),
		zap.Error(err),
	)
	if incErr := p.source.IncrementAttempt(ctx, event.EventID); incErr != nil {
		logger.Error("increment outbox attempt count",
			zap.String("event_id", event.EventID),
			zap.Error(incErr),
		)
	}
}

// fatal reports whether the dispatch error can never succeed on retry.
func (p *Poller) fatal(err error) bool {
	if errors.Is(err, ErrProjectNotFound) {
		return true
	}
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr.Code == apperrors.CodeConcurrencyConflict ||
			appErr.Code == apperrors.CodeProjectNotFound
	}
	return false
}

func (p *Poller) admit(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[key]; busy {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *Poller) release(key string) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
}

func serializationKey(event *domain.DomainEvent) string {
	if event.ProjectID != "" {
		return event.ProjectID
	}
	return event.EventID
}
