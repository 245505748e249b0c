// Package infrastructure provides database and connection pool setup.
//
// One shared pgxpool serves the repository and River, so a cascade effect
// and its delivery-job insert commit in the same transaction.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/config"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// SchemaMigrator applies the application's own DDL. The repository owns the
// schema; this package only sequences it against the River migrations.
type SchemaMigrator interface {
	Migrate(ctx context.Context) error
}

// DatabaseClients contains all database-related clients.
// Do not create a second pool next to this one; it doubles connections.
type DatabaseClients struct {
	// Pool is the shared connection pool (repository + River).
	Pool *pgxpool.Pool

	// RiverClient is the River job queue client backed by the shared pool.
	// Populated by InitRiverClient once workers are registered.
	RiverClient *river.Client[pgx.Tx]
}

// NewDatabaseClients creates database clients with a shared connection pool.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	// Set UTC timezone on each new connection.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{Pool: pool}, nil
}

// AutoMigrate applies the repository DDL and the River queue tables.
// Only use in development; production should use managed migrations.
func (c *DatabaseClients) AutoMigrate(ctx context.Context, schema SchemaMigrator) error {
	logger.Info("Running schema migration...")
	if err := schema.Migrate(ctx); err != nil {
		return fmt.Errorf("schema migrate: %w", err)
	}

	logger.Info("Running River migration...")
	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("River migration completed",
			zap.Int("versions_applied", len(res.Versions)),
		)
	} else {
		logger.Info("River migration: already up-to-date")
	}

	return nil
}

// InitRiverClient creates a River client with registered workers.
// Called after NewDatabaseClients; workers param comes from bootstrap.
func (c *DatabaseClients) InitRiverClient(workers *river.Workers, cfg config.RiverConfig) error {
	riverClient, err := river.NewClient(riverpgxv5.New(c.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:                     workers,
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	c.RiverClient = riverClient
	logger.Info("River client initialized", zap.Int("max_workers", cfg.MaxWorkers))
	return nil
}

// Close closes the connection pool gracefully.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
