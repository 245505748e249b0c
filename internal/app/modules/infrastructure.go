package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/broadcast"
	"sitepulse.io/sitepulse/internal/config"
	"sitepulse.io/sitepulse/internal/infrastructure"
	"sitepulse.io/sitepulse/internal/pkg/worker"
	"sitepulse.io/sitepulse/internal/repository/postgres"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Pool        *pgxpool.Pool
	Store       *postgres.Store
	Hub         *broadcast.Hub
	RiverClient *river.Client[pgx.Tx]
}

// NewInfrastructure initializes DB/pools and shared services.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	// The river client is attached after bootstrap registers the workers.
	store := postgres.New(db.Pool, nil, postgres.Options{
		QualityWindow:       cfg.Cascade.QualityWindow,
		SafetyWindow:        cfg.Cascade.SafetyWindow,
		DeliveryMaxAttempts: cfg.Notification.MaxDeliveryAttempts,
	})

	// Dev-mode: auto-create application + River queue tables.
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx, store); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		CascadePoolSize: cfg.Worker.CascadePoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	return &Infrastructure{
		Config: cfg,
		DB:     db,
		Pools:  pools,
		Pool:   db.Pool,
		Store:  store,
		Hub:    broadcast.NewHub(),
	}, nil
}

// InitRiver initializes the River client on top of a prepared worker
// registry and attaches it to the store for transactional job inserts.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	i.Store.SetRiverClient(i.RiverClient)
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
