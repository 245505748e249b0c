package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/api/handlers"
	"sitepulse.io/sitepulse/internal/cascade"
)

// CascadeModule wires the event dispatcher, its handlers, and the outbox
// poller that feeds them.
type CascadeModule struct {
	infra      *Infrastructure
	adapter    *cascade.Adapter
	dispatcher *cascade.Dispatcher
	poller     *cascade.Poller
}

// NewCascadeModule creates the cascade module with explicit constructor wiring.
func NewCascadeModule(infra *Infrastructure) (*CascadeModule, error) {
	cfg := infra.Config.Cascade

	dispatcher := cascade.NewDispatcher(infra.Store, infra.Hub, cascade.DispatcherConfig{
		MaxApplyAttempts: cfg.MaxApplyAttempts,
	})

	params := cascade.DefaultScoreParams()
	for _, h := range []cascade.Handler{
		cascade.NewWeatherDelayHandler(params),
		cascade.NewDefectFoundHandler(params),
		cascade.NewInvoiceOverdueHandler(),
		cascade.NewSafetyIncidentHandler(params),
		cascade.NewSubmittalApprovedHandler(),
	} {
		if err := dispatcher.Register(h); err != nil {
			return nil, fmt.Errorf("register cascade handler: %w", err)
		}
	}

	poller := cascade.NewPoller(infra.Store, dispatcher, infra.Pools, cascade.PollerConfig{
		Interval:            cfg.PollInterval,
		BatchSize:           cfg.PollBatchSize,
		MaxDispatchAttempts: cfg.MaxDispatchAttempts,
	})

	return &CascadeModule{
		infra:      infra,
		adapter:    cascade.NewAdapter(),
		dispatcher: dispatcher,
		poller:     poller,
	}, nil
}

func (m *CascadeModule) Name() string { return "cascade" }

func (m *CascadeModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Adapter = m.adapter
}

// RegisterWorkers is a no-op: the outbox poller is a plain goroutine over
// the cascade worker pool, not a River job.
func (m *CascadeModule) RegisterWorkers(*river.Workers) {}

// Poller exposes the outbox poller so the lifecycle can run it.
func (m *CascadeModule) Poller() *cascade.Poller { return m.poller }

func (m *CascadeModule) Shutdown(context.Context) error { return nil }
