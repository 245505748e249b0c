// Package postgres implements the persistence surfaces on a shared pgxpool.
// All cascade writes go through single-transaction ApplyEffect; reads are
// plain pool queries.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/pkg/logger"
)

//go:embed schema.sql
var schemaDDL string

// Options tunes the snapshot windows and delivery retry bound.
type Options struct {
	QualityWindow time.Duration
	SafetyWindow  time.Duration

	// DeliveryMaxAttempts overrides the delivery job's default retry bound
	// when positive.
	DeliveryMaxAttempts int
}

// Store is the pgxpool-backed persistence root. The river client is used
// only for transactional job inserts; nil disables delivery enqueue (tests).
type Store struct {
	pool  *pgxpool.Pool
	river *river.Client[pgx.Tx]
	opts  Options
}

// New creates a Store on the shared pool.
func New(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], opts Options) *Store {
	if opts.QualityWindow <= 0 {
		opts.QualityWindow = 30 * 24 * time.Hour
	}
	if opts.SafetyWindow <= 0 {
		opts.SafetyWindow = 90 * 24 * time.Hour
	}
	return &Store{pool: pool, river: riverClient, opts: opts}
}

// SetRiverClient wires the river client after bootstrap. The client needs
// workers registered before it can be built, and workers need the store, so
// the store is created first and the client attached second.
func (s *Store) SetRiverClient(riverClient *river.Client[pgx.Tx]) {
	s.river = riverClient
}

// Migrate applies the embedded DDL. Statements are idempotent; safe to run
// at every startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	logger.Info("schema migration completed")
	return nil
}
