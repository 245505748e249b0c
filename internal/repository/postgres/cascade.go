package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/jobs"
)

// IsApplied implements cascade.Store.
func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM applied_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check applied event %s: %w", eventID, err)
	}
	return exists, nil
}

// Snapshot implements cascade.Store. Quality scores and the safety incident
// count are restricted to their trailing windows as of the given time.
func (s *Store) Snapshot(ctx context.Context, projectID string, asOf time.Time) (*domain.ProjectSnapshot, error) {
	snap := &domain.ProjectSnapshot{AsOf: asOf}

	p := &snap.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, estimated_completion_date, schedule_variance_days,
		        health_score, status_color, estimated_cost, actual_cost, version,
		        created_at, updated_at
		   FROM projects WHERE id = $1`,
		projectID,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.EstimatedCompletionDate, &p.ScheduleVarianceDays,
		&p.HealthScore, &p.StatusColor, &p.EstimatedCost, &p.ActualCost, &p.Version,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cascade.ErrProjectNotFound
		}
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT score FROM quality_scores
		  WHERE project_id = $1 AND created_at > $2
		  ORDER BY created_at`,
		projectID, asOf.Add(-s.opts.QualityWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("load quality scores for %s: %w", projectID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scan quality score: %w", err)
		}
		snap.QualityScores = append(snap.QualityScores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quality scores: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM safety_incidents
		  WHERE project_id = $1 AND created_at > $2`,
		projectID, asOf.Add(-s.opts.SafetyWindow),
	).Scan(&snap.SafetyIncidents)
	if err != nil {
		return nil, fmt.Errorf("count safety incidents for %s: %w", projectID, err)
	}

	invRows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, project_id, number, status, amount_due, due_date,
		        overdue_surfaced, created_at, updated_at
		   FROM invoices
		  WHERE project_id = $1 AND status IN ('draft', 'submitted')
		  ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("load open invoices for %s: %w", projectID, err)
	}
	defer invRows.Close()
	for invRows.Next() {
		var inv domain.Invoice
		if err := invRows.Scan(&inv.ID, &inv.TenantID, &inv.ProjectID, &inv.Number, &inv.Status,
			&inv.AmountDue, &inv.DueDate, &inv.OverdueSurfaced, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		snap.OpenInvoices = append(snap.OpenInvoices, inv)
	}
	if err := invRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open invoices: %w", err)
	}

	return snap, nil
}

// ApplyEffect implements cascade.Store. The whole effect commits in one
// transaction: dedup mark, project and invoice patches, delay claim,
// pending notifications plus their delivery jobs, ledger entry, and outbox
// consumption. Any failure rolls back everything.
func (s *Store) ApplyEffect(ctx context.Context, effect *domain.CascadeEffect, expectedVersion int64) error {
	event := effect.Event

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply tx for event %s: %w", event.EventID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Dedup guard first: a row already present means a concurrent or prior
	// apply won.
	tag, err := tx.Exec(ctx,
		`INSERT INTO applied_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`,
		event.EventID,
	)
	if err != nil {
		return fmt.Errorf("mark event %s applied: %w", event.EventID, err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrAlreadyApplied
	}

	if patch := effect.ProjectPatch; patch != nil && !patch.Empty() {
		var currentVersion int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM projects WHERE id = $1 FOR UPDATE`,
			event.ProjectID,
		).Scan(&currentVersion)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return cascade.ErrProjectNotFound
			}
			return fmt.Errorf("lock project %s: %w", event.ProjectID, err)
		}
		if currentVersion != expectedVersion {
			return cascade.ErrVersionConflict
		}

		if _, err := tx.Exec(ctx,
			`UPDATE projects
			    SET estimated_completion_date = estimated_completion_date + make_interval(days => $2),
			        schedule_variance_days = GREATEST(0, schedule_variance_days + $3),
			        health_score = COALESCE($4::double precision, health_score),
			        status_color = CASE WHEN $4::double precision IS NULL THEN status_color ELSE $5 END,
			        version = version + 1,
			        updated_at = now()
			  WHERE id = $1`,
			event.ProjectID, patch.CompletionDelayDays, patch.VarianceDeltaDays,
			patch.HealthScore, string(patch.StatusColor),
		); err != nil {
			return fmt.Errorf("patch project %s: %w", event.ProjectID, err)
		}
	}

	for _, ip := range effect.InvoicePatches {
		if _, err := tx.Exec(ctx,
			`UPDATE invoices
			    SET due_date = due_date + make_interval(days => $2),
			        overdue_surfaced = overdue_surfaced OR $3,
			        updated_at = now()
			  WHERE id = $1`,
			ip.InvoiceID, ip.DueDateShiftDays, ip.MarkOverdueSurfaced,
		); err != nil {
			return fmt.Errorf("patch invoice %s: %w", ip.InvoiceID, err)
		}
	}

	if claim := effect.DelayClaim; claim != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO delay_claims (id, tenant_id, project_id, log_id, delay_days, weather_data)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			claim.ID, claim.TenantID, claim.ProjectID, claim.LogID, claim.DelayDays, claim.WeatherData,
		); err != nil {
			return fmt.Errorf("insert delay claim %s: %w", claim.ID, err)
		}
	}

	for _, draft := range effect.Notifications {
		notificationID := uuid.NewString()
		if _, err := tx.Exec(ctx,
			`INSERT INTO notifications
			        (id, tenant_id, project_id, event_id, type, priority, recipients,
			         title, message, channels, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending')`,
			notificationID, event.TenantID, event.ProjectID, event.EventID,
			draft.Type, string(draft.Priority), rolesToText(draft.Recipients),
			draft.Title, draft.Message, channelsToText(draft.Channels),
		); err != nil {
			return fmt.Errorf("insert notification for event %s: %w", event.EventID, err)
		}

		if s.river != nil {
			var insertOpts *river.InsertOpts
			if s.opts.DeliveryMaxAttempts > 0 {
				insertOpts = &river.InsertOpts{MaxAttempts: s.opts.DeliveryMaxAttempts}
			}
			if _, err := s.river.InsertTx(ctx, tx, jobs.NotificationDeliverArgs{
				NotificationID: notificationID,
			}, insertOpts); err != nil {
				return fmt.Errorf("enqueue delivery for notification %s: %w", notificationID, err)
			}
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO cascade_ledger
		        (id, event_id, event_type, tenant_id, project_id, source, payload, actions_taken)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), event.EventID, string(event.Type), event.TenantID, event.ProjectID,
		event.SourceEntity, event.Payload, effect.Actions,
	); err != nil {
		return fmt.Errorf("append ledger entry for event %s: %w", event.EventID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE outbox_events
		    SET status = 'consumed', outcome = $2, consumed_at = now()
		  WHERE event_id = $1 AND status = 'pending'`,
		event.EventID, string(domain.OutcomeApplied),
	); err != nil {
		return fmt.Errorf("consume outbox event %s: %w", event.EventID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply tx for event %s: %w", event.EventID, err)
	}
	return nil
}

func rolesToText(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func channelsToText(channels []domain.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, string(c))
	}
	return out
}
