package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
)

// GetProject loads a single project row.
func (s *Store) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	p := &domain.Project{}
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
	return p, nil
}

// CreateProject inserts a project row. Used by seeding and tests.
func (s *Store) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects
		        (id, tenant_id, name, estimated_completion_date, schedule_variance_days,
		         health_score, status_color, estimated_cost, actual_cost, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.TenantID, p.Name, p.EstimatedCompletionDate, p.ScheduleVarianceDays,
		p.HealthScore, string(p.StatusColor), p.EstimatedCost, p.ActualCost, p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.ID, err)
	}
	return nil
}

// CreateInvoice inserts an invoice row. Used by seeding and tests.
func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoices
		        (id, tenant_id, project_id, number, status, amount_due, due_date, overdue_surfaced)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		inv.ID, inv.TenantID, inv.ProjectID, inv.Number, string(inv.Status),
		inv.AmountDue, inv.DueDate, inv.OverdueSurfaced,
	)
	if err != nil {
		return fmt.Errorf("insert invoice %s: %w", inv.ID, err)
	}
	return nil
}

// AddQualityScore records an inspection score.
func (s *Store) AddQualityScore(ctx context.Context, projectID string, score float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quality_scores (project_id, score, created_at) VALUES ($1, $2, $3)`,
		projectID, score, at,
	)
	if err != nil {
		return fmt.Errorf("insert quality score for %s: %w", projectID, err)
	}
	return nil
}

// AddSafetyIncident records a safety incident row.
func (s *Store) AddSafetyIncident(ctx context.Context, id, tenantID, projectID, severity string, oshaRecordable bool, at time.Time) error {
	var project interface{}
	if projectID != "" {
		project = projectID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO safety_incidents (id, tenant_id, project_id, severity, osha_recordable, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, tenantID, project, severity, oshaRecordable, at,
	)
	if err != nil {
		return fmt.Errorf("insert safety incident %s: %w", id, err)
	}
	return nil
}

// OverdueInvoices returns submitted invoices past due at asOf that have not
// been surfaced yet. The sweep feeds them through the outbox.
func (s *Store) OverdueInvoices(ctx context.Context, asOf time.Time, limit int) ([]domain.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, project_id, number, status, amount_due, due_date,
		        overdue_surfaced, created_at, updated_at
		   FROM invoices
		  WHERE status = 'submitted' AND due_date < $1 AND NOT overdue_surfaced
		  ORDER BY due_date
		  LIMIT $2`,
		asOf, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scan overdue invoices: %w", err)
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.ProjectID, &inv.Number, &inv.Status,
			&inv.AmountDue, &inv.DueDate, &inv.OverdueSurfaced, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan overdue invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overdue invoices: %w", err)
	}
	return out, nil
}

// GetNotification loads a notification by id.
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	n := &domain.Notification{}
	var recipients, channels []string
	var priority, status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, project_id, event_id, type, priority, recipients,
		        title, message, channels, status, attempts, created_at, updated_at
		   FROM notifications WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.TenantID, &n.ProjectID, &n.EventID, &n.Type, &priority, &recipients,
		&n.Title, &n.Message, &channels, &status, &n.Attempts, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeNotificationNotFound, "notification not found").
				WithParams(map[string]interface{}{"notification_id": id})
		}
		return nil, fmt.Errorf("load notification %s: %w", id, err)
	}
	n.Priority = domain.NotificationPriority(priority)
	n.Status = domain.NotificationStatus(status)
	for _, r := range recipients {
		n.Recipients = append(n.Recipients, domain.Role(r))
	}
	for _, c := range channels {
		n.Channels = append(n.Channels, domain.Channel(c))
	}
	return n, nil
}

// ListProjectNotifications returns the project's notifications newest first.
func (s *Store) ListProjectNotifications(ctx context.Context, projectID string, limit int) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, project_id, event_id, type, priority, recipients,
		        title, message, channels, status, attempts, created_at, updated_at
		   FROM notifications
		  WHERE project_id = $1
		  ORDER BY created_at DESC, id
		  LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var recipients, channels []string
		var priority, status string
		if err := rows.Scan(&n.ID, &n.TenantID, &n.ProjectID, &n.EventID, &n.Type, &priority,
			&recipients, &n.Title, &n.Message, &channels, &status, &n.Attempts,
			&n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Priority = domain.NotificationPriority(priority)
		n.Status = domain.NotificationStatus(status)
		for _, r := range recipients {
			n.Recipients = append(n.Recipients, domain.Role(r))
		}
		for _, c := range channels {
			n.Channels = append(n.Channels, domain.Channel(c))
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationSent transitions the notification to sent.
func (s *Store) MarkNotificationSent(ctx context.Context, id string, attempts int) error {
	return s.setNotificationStatus(ctx, id, domain.NotificationSent, attempts)
}

// MarkNotificationFailed parks the notification as failed after delivery
// retry exhaustion.
func (s *Store) MarkNotificationFailed(ctx context.Context, id string, attempts int) error {
	return s.setNotificationStatus(ctx, id, domain.NotificationFailed, attempts)
}

func (s *Store) setNotificationStatus(ctx context.Context, id string, status domain.NotificationStatus, attempts int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET status = $2, attempts = $3, updated_at = now() WHERE id = $1`,
		id, string(status), attempts,
	)
	if err != nil {
		return fmt.Errorf("set notification %s to %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeNotificationNotFound, "notification not found").
			WithParams(map[string]interface{}{"notification_id": id})
	}
	return nil
}

// DeleteNotificationsBefore removes notifications created before the cutoff.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return int(tag.RowsAffected()), nil
}

// ListLedger returns the project's ledger entries within [from, to), newest
// first. Zero time bounds are open.
func (s *Store) ListLedger(ctx context.Context, projectID string, from, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, event_type, tenant_id, project_id, source, payload,
		        actions_taken, created_at
		   FROM cascade_ledger
		  WHERE project_id = $1
		    AND ($2::timestamptz IS NULL OR created_at >= $2)
		    AND ($3::timestamptz IS NULL OR created_at < $3)
		  ORDER BY created_at DESC, id
		  LIMIT $4`,
		projectID, nullableTime(from), nullableTime(to), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger for %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.EventID, &entry.EventType, &entry.TenantID,
			&entry.ProjectID, &entry.Source, &entry.Payload, &entry.ActionsTaken,
			&entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
