package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
)

// AppendEvent appends a recognized event to the outbox on the pool. An event
// id already present (pending, consumed, or dead-lettered) is a no-op so that
// deterministic ids converge instead of erroring.
func (s *Store) AppendEvent(ctx context.Context, event *domain.DomainEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.AppendEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AppendEventTx appends the event inside the caller's transaction. This is
// the outbox pattern's write side: callers append in the same transaction as
// the source row so the event exists iff the source write committed.
func (s *Store) AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.DomainEvent) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_events
		        (event_id, event_type, tenant_id, project_id, source_entity, source_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, string(event.Type), event.TenantID, event.ProjectID,
		event.SourceEntity, event.SourceID, event.Payload, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append outbox event %s: %w", event.EventID, err)
	}
	return nil
}

// PendingEvents implements cascade.OutboxSource.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]cascade.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, event_type, tenant_id, project_id, source_entity, source_id,
		        payload, occurred_at, attempts
		   FROM outbox_events
		  WHERE status = 'pending'
		  ORDER BY seq
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox events: %w", err)
	}
	defer rows.Close()

	var out []cascade.OutboxEvent
	for rows.Next() {
		event := &domain.DomainEvent{}
		var entry cascade.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.TenantID, &event.ProjectID,
			&event.SourceEntity, &event.SourceID, &event.Payload, &event.OccurredAt,
			&entry.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		entry.Event = event
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending outbox events: %w", err)
	}
	return out, nil
}

// MarkConsumed implements cascade.OutboxSource.
func (s *Store) MarkConsumed(ctx context.Context, eventID string, outcome domain.Outcome) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events
		    SET status = 'consumed', outcome = $2, reason = $3, consumed_at = now()
		  WHERE event_id = $1 AND status = 'pending'`,
		eventID, string(outcome.Status), outcome.Reason,
	)
	if err != nil {
		return fmt.Errorf("consume outbox event %s: %w", eventID, err)
	}
	return nil
}

// MarkDeadLetter implements cascade.OutboxSource.
func (s *Store) MarkDeadLetter(ctx context.Context, eventID, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events
		    SET status = 'dead_letter', reason = $2, consumed_at = now()
		  WHERE event_id = $1 AND status = 'pending'`,
		eventID, reason,
	)
	if err != nil {
		return fmt.Errorf("dead-letter outbox event %s: %w", eventID, err)
	}
	return nil
}

// IncrementAttempt implements cascade.OutboxSource.
func (s *Store) IncrementAttempt(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1 WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("increment attempts for outbox event %s: %w", eventID, err)
	}
	return nil
}
