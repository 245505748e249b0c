// Package domain provides domain models for the SitePulse cascade engine.
//
// The engine owns derived project state (schedule variance, health score,
// status color); record CRUD belongs to the storage layer and is reached
// only through repository interfaces.
package domain

import "time"

// StatusColor is the traffic-light rollup of a project's health score.
// It is a pure function of the score and is never set independently.
type StatusColor string

const (
	ColorGreen  StatusColor = "green"
	ColorYellow StatusColor = "yellow"
	ColorRed    StatusColor = "red"
)

// ColorForScore derives the status color from a health score.
func ColorForScore(score float64) StatusColor {
	switch {
	case score >= 4.0:
		return ColorGreen
	case score >= 3.0:
		return ColorYellow
	default:
		return ColorRed
	}
}

// Project is the mutable aggregate the cascade patches.
// Version backs the optimistic concurrency check: every committed cascade
// effect increments it, and an apply with a stale version is rejected.
type Project struct {
	ID                      string      `json:"id"`
	TenantID                string      `json:"tenant_id"`
	Name                    string      `json:"name"`
	EstimatedCompletionDate time.Time   `json:"estimated_completion_date"`
	ScheduleVarianceDays    int         `json:"schedule_variance_days"`
	HealthScore             float64     `json:"health_score"`
	StatusColor             StatusColor `json:"status_color"`
	EstimatedCost           float64     `json:"estimated_cost"`
	ActualCost              float64     `json:"actual_cost"`
	Version                 int64       `json:"version"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// ProjectSnapshot is the read model a cascade handler computes over.
// Quality scores and the safety incident count are already restricted to
// their trailing windows by the repository query.
type ProjectSnapshot struct {
	Project         Project   `json:"project"`
	QualityScores   []float64 `json:"quality_scores"`
	SafetyIncidents int       `json:"safety_incidents"`
	OpenInvoices    []Invoice `json:"open_invoices"`
	AsOf            time.Time `json:"as_of"`
}

// DelayClaim aggregates the supporting evidence for a weather delay so a
// claim can later be filed against the schedule.
type DelayClaim struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	TenantID    string    `json:"tenant_id"`
	LogID       string    `json:"log_id"`
	DelayDays   int       `json:"delay_days"`
	WeatherData []byte    `json:"weather_data"`
	CreatedAt   time.Time `json:"created_at"`
}
