package cascade

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"sitepulse.io/sitepulse/internal/domain"
)

// WeatherDelayHandler reacts to a delay-flagged daily log with a weather
// cause: it pushes the schedule out, shifts open invoice due dates by the
// same number of days, files a delay claim, recomputes the health score, and
// alerts the project manager and superintendent.
type WeatherDelayHandler struct {
	params ScoreParams
}

// NewWeatherDelayHandler creates the handler.
func NewWeatherDelayHandler(params ScoreParams) *WeatherDelayHandler {
	return &WeatherDelayHandler{params: params}
}

// Type implements Handler.
func (h *WeatherDelayHandler) Type() domain.EventType { return domain.EventWeatherDelay }

// Handle implements Handler.
func (h *WeatherDelayHandler) Handle(ctx context.Context, event *domain.DomainEvent, snap *domain.ProjectSnapshot) (*domain.CascadeEffect, error) {
	var payload domain.WeatherDelayPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, validationErr(fmt.Sprintf("weather delay payload: %v", err))
	}
	if payload.DelayDays <= 0 {
		return nil, validationErr("delay_days must be positive")
	}
	if payload.LogID == "" {
		return nil, validationErr("log_id is required")
	}

	// Score against the post-patch variance: the delay being applied is a
	// contributing fact.
	input := SnapshotInput(snap)
	input.VarianceDays += payload.DelayDays
	score, color := Score(input, h.params)

	effect := &domain.CascadeEffect{
		Event: event,
		ProjectPatch: &domain.ProjectPatch{
			CompletionDelayDays: payload.DelayDays,
			VarianceDeltaDays:   payload.DelayDays,
			HealthScore:         &score,
			StatusColor:         color,
		},
		DelayClaim: &domain.DelayClaim{
			ID:          uuid.NewString(),
			ProjectID:   event.ProjectID,
			TenantID:    event.TenantID,
			LogID:       payload.LogID,
			DelayDays:   payload.DelayDays,
			WeatherData: event.Payload,
		},
		Actions: []string{
			fmt.Sprintf("estimated_completion_date += %d days", payload.DelayDays),
			fmt.Sprintf("schedule_variance_days += %d", payload.DelayDays),
			fmt.Sprintf("health_score recomputed to %.2f (%s)", score, color),
			"delay claim filed for log " + payload.LogID,
		},
	}

	for _, inv := range snap.OpenInvoices {
		effect.InvoicePatches = append(effect.InvoicePatches, domain.InvoicePatch{
			InvoiceID:        inv.ID,
			DueDateShiftDays: payload.DelayDays,
		})
		effect.Actions = append(effect.Actions,
			fmt.Sprintf("invoice %s due_date += %d days", inv.Number, payload.DelayDays))
	}

	effect.Notifications = []domain.NotificationDraft{{
		Type:       string(domain.EventWeatherDelay),
		Priority:   domain.PriorityHigh,
		Recipients: []domain.Role{domain.RoleProjectManager, domain.RoleSuperintendent},
		Title:      fmt.Sprintf("Weather delay: %d day(s)", payload.DelayDays),
		Message: fmt.Sprintf("Project %s delayed %d day(s) due to %s; schedule and billing dates shifted.",
			snap.Project.Name, payload.DelayDays, payload.WeatherCondition),
		Channels: channelsFor(domain.PriorityHigh),
	}}

	effect.Broadcasts = []domain.BroadcastMessage{
		broadcastFor(event, "project.weather_delay", map[string]interface{}{
			"delay_days":   payload.DelayDays,
			"health_score": score,
			"status_color": color,
		}),
	}

	return effect, nil
}
