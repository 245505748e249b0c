// Package main provides data seeding for SitePulse.
//
// Inserts a demo tenant's projects and invoices, then feeds a handful of
// committed-change records through the recognizer so the cascade has work to
// do on a fresh database. Safe to run repeatedly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/config"
	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/infrastructure"
	"sitepulse.io/sitepulse/internal/pkg/logger"
	"sitepulse.io/sitepulse/internal/repository/postgres"
)

const demoTenant = "tenant-demo"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	store := postgres.New(db.Pool, nil, postgres.Options{
		QualityWindow: cfg.Cascade.QualityWindow,
		SafetyWindow:  cfg.Cascade.SafetyWindow,
	})
	if err := db.AutoMigrate(ctx, store); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Starting data seeding...")

	if err := seedProjects(ctx, store); err != nil {
		return fmt.Errorf("seed projects: %w", err)
	}
	if err := seedChangeFeed(ctx, store); err != nil {
		return fmt.Errorf("seed change feed: %w", err)
	}

	logger.Info("Seeding completed")
	return nil
}

func seedProjects(ctx context.Context, store *postgres.Store) error {
	now := time.Now().UTC()

	projects := []domain.Project{
		{
			ID:                      "proj-riverside",
			TenantID:                demoTenant,
			Name:                    "Riverside Medical Center",
			EstimatedCompletionDate: now.AddDate(0, 6, 0),
			ScheduleVarianceDays:    2,
			HealthScore:             4.3,
			StatusColor:             domain.ColorGreen,
			EstimatedCost:           12_500_000,
			ActualCost:              11_900_000,
			Version:                 1,
		},
		{
			ID:                      "proj-harbor",
			TenantID:                demoTenant,
			Name:                    "Harbor Point Parking Structure",
			EstimatedCompletionDate: now.AddDate(0, 2, 0),
			ScheduleVarianceDays:    12,
			HealthScore:             2.9,
			StatusColor:             domain.ColorYellow,
			EstimatedCost:           4_300_000,
			ActualCost:              4_650_000,
			Version:                 1,
		},
	}
	for _, p := range projects {
		if err := store.CreateProject(ctx, p); err != nil {
			return err
		}
		logger.Info("Seeded project", zap.String("project_id", p.ID))
	}

	invoices := []domain.Invoice{
		{
			ID:        "inv-1001",
			ProjectID: "proj-riverside",
			TenantID:  demoTenant,
			Number:    "RMC-2026-017",
			Status:    domain.InvoiceStatusSubmitted,
			AmountDue: 240_000,
			DueDate:   now.AddDate(0, 0, 14),
		},
		{
			ID:        "inv-1002",
			ProjectID: "proj-riverside",
			TenantID:  demoTenant,
			Number:    "RMC-2026-018",
			Status:    domain.InvoiceStatusDraft,
			AmountDue: 88_500,
			DueDate:   now.AddDate(0, 1, 0),
		},
		{
			// Already past due; the first sweep surfaces it.
			ID:        "inv-2001",
			ProjectID: "proj-harbor",
			TenantID:  demoTenant,
			Number:    "HPS-2026-004",
			Status:    domain.InvoiceStatusSubmitted,
			AmountDue: 133_750,
			DueDate:   now.AddDate(0, 0, -9),
		},
	}
	for _, inv := range invoices {
		if err := store.CreateInvoice(ctx, inv); err != nil {
			return err
		}
	}

	for _, score := range []float64{4.5, 3.8, 4.2} {
		if err := store.AddQualityScore(ctx, "proj-riverside", score, now.AddDate(0, 0, -7)); err != nil {
			return err
		}
	}
	return nil
}

// seedChangeFeed pushes sample committed-change records through the
// recognizer into the outbox, the same path the ingestion endpoint uses.
func seedChangeFeed(ctx context.Context, store *postgres.Store) error {
	now := time.Now().UTC()
	adapter := cascade.NewAdapter()

	changes := []cascade.ChangeRecord{
		{
			ChangeID:   "seed-chg-weather",
			Entity:     "daily_logs",
			Op:         "insert",
			TenantID:   demoTenant,
			OccurredAt: now,
			After: mustJSON(map[string]interface{}{
				"id":          "log-seed-1",
				"project_id":  "proj-riverside",
				"delay_flag":  true,
				"delay_cause": "weather",
				"delay_days":  2,
			}),
		},
		{
			ChangeID:   "seed-chg-defect",
			Entity:     "punch_items",
			Op:         "insert",
			TenantID:   demoTenant,
			OccurredAt: now,
			After: mustJSON(map[string]interface{}{
				"id":         "punch-seed-1",
				"project_id": "proj-harbor",
				"status":     "open",
				"severity":   "high",
			}),
		},
	}

	for _, change := range changes {
		event, err := adapter.Recognize(change)
		if err != nil {
			return fmt.Errorf("recognize %s: %w", change.ChangeID, err)
		}
		if event == nil {
			continue
		}
		if err := store.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append %s: %w", event.EventID, err)
		}
		logger.Info("Seeded outbox event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.Type)),
		)
	}
	return nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
