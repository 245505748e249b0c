// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/api/handlers"
	"sitepulse.io/sitepulse/internal/app/modules"
	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/config"
	"sitepulse.io/sitepulse/internal/infrastructure"
	"sitepulse.io/sitepulse/internal/jobs"
	"sitepulse.io/sitepulse/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	poller       *cascade.Poller
	pollerCancel context.CancelFunc
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	cascadeModule, err := modules.NewCascadeModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init cascade module: %w", err)
	}

	allModules := []modules.Module{
		cascadeModule,
		modules.NewNotificationModule(infra),
	}

	workers := river.NewWorkers()
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
	}
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	// Periodic jobs: hourly overdue-invoice sweep and daily notification
	// retention cleanup, both run once on startup. The sweep closes the gap
	// when no change-feed record fires at the moment a due date passes.
	if infra.RiverClient != nil {
		infra.RiverClient.PeriodicJobs().Add(
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Sweep.Interval),
				func() (river.JobArgs, *river.InsertOpts) {
					return jobs.InvoiceSweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		)
		infra.RiverClient.PeriodicJobs().Add(
			river.NewPeriodicJob(
				river.PeriodicInterval(24*time.Hour),
				func() (river.JobArgs, *river.InsertOpts) {
					return jobs.NotificationCleanupArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		)
	}

	serverDeps := modules.NewServerDeps(infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
		poller:  cascadeModule.Poller(),
	}, nil
}
