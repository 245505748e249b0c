// Package worker provides goroutine pool management.
//
// Coding standard: naked goroutines are forbidden outside main loops.
// All concurrency goes through a worker pool with context propagation.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
type Pools struct {
	// General serves short-lived request-scoped work.
	General *Pool
	// Cascade serves cascade dispatch work; tasks hold the per-project
	// lock and may wait on the database, so they run longer.
	Cascade *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	GeneralPoolSize int
	CascadePoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize: 100,
		CascadePoolSize: 50,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	// Unified panic recovery
	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	cascadeAnts, err := ants.NewPool(cfg.CascadePoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second),
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Cascade:       &Pool{pool: cascadeAnts, name: "cascade"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task.
// The task receives the caller's context and SHOULD check ctx.Done() at
// blocking points. If the context is already cancelled, returns ctx.Err()
// without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.pool.Submit(func() {
		// Recheck inside the worker; cancellation may happen while queued.
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
}

// SubmitDetached submits a detached background task.
// Detached tasks use the service lifecycle context instead of a request
// context: they survive request cancellation but still respect graceful
// shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	var pool *Pool
	switch poolName {
	case "cascade":
		pool = p.Cascade
	default:
		pool = p.General
	}

	return pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", poolName),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
}

// Shutdown gracefully shuts down all pools with a timeout.
// Cancels the service context first, then waits for running tasks.
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Cascade.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Cascade pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		"cascade": map[string]int{
			"running": p.Cascade.pool.Running(),
			"free":    p.Cascade.pool.Free(),
			"cap":     p.Cascade.pool.Cap(),
		},
	}
}
