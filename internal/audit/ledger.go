// Package audit exposes the cascade ledger.
//
// Ledger entries are append-only compliance records written inside the apply
// transaction. Hard-delete is NOT allowed; this package only reads.
package audit

import (
	"context"
	"fmt"
	"time"

	"sitepulse.io/sitepulse/internal/domain"
)

// DefaultQueryLimit bounds ledger queries without an explicit limit.
const DefaultQueryLimit = 100

// LedgerStore is the read surface the service needs.
type LedgerStore interface {
	ListLedger(ctx context.Context, projectID string, from, to time.Time, limit int) ([]domain.LedgerEntry, error)
}

// Service answers ledger queries for the API layer.
type Service struct {
	store LedgerStore
}

// NewService creates a ledger query service.
func NewService(store LedgerStore) *Service {
	return &Service{store: store}
}

// Query bounds a ledger lookup. Zero time bounds are open; a non-positive
// limit uses the default.
type Query struct {
	ProjectID string
	From      time.Time
	To        time.Time
	Limit     int
}

// ProjectHistory returns the project's applied-cascade history, newest first.
func (s *Service) ProjectHistory(ctx context.Context, q Query) ([]domain.LedgerEntry, error) {
	if q.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, fmt.Errorf("ledger query range is inverted")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	entries, err := s.store.ListLedger(ctx, q.ProjectID, q.From, q.To, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger for project %s: %w", q.ProjectID, err)
	}
	return entries, nil
}
