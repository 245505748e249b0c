package cascade

import (
	"context"
	"encoding/json"
	"fmt"

	"sitepulse.io/sitepulse/internal/domain"
)

// SafetyIncidentHandler reacts to a recorded incident: recomputes health when
// a project is linked, and notifies with urgency and channel set driven by
// OSHA recordability.
type SafetyIncidentHandler struct {
	params ScoreParams
}

// NewSafetyIncidentHandler creates the handler.
func NewSafetyIncidentHandler(params ScoreParams) *SafetyIncidentHandler {
	return &SafetyIncidentHandler{params: params}
}

// Type implements Handler.
func (h *SafetyIncidentHandler) Type() domain.EventType { return domain.EventSafetyIncident }

// Handle implements Handler. snap is nil when the incident has no project.
func (h *SafetyIncidentHandler) Handle(ctx context.Context, event *domain.DomainEvent, snap *domain.ProjectSnapshot) (*domain.CascadeEffect, error) {
	var payload domain.SafetyIncidentPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, validationErr(fmt.Sprintf("safety incident payload: %v", err))
	}
	if payload.IncidentID == "" {
		return nil, validationErr("incident_id is required")
	}

	priority := domain.PriorityNormal
	channels := channelsFor(domain.PriorityNormal)
	if payload.OSHARecordable {
		// OSHA-recordable incidents always go out multi-channel.
		priority = domain.PriorityUrgent
		channels = []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelSMS}
	}

	effect := &domain.CascadeEffect{
		Event: event,
		Notifications: []domain.NotificationDraft{{
			Type:       string(domain.EventSafetyIncident),
			Priority:   priority,
			Recipients: []domain.Role{domain.RoleProjectManager, domain.RoleSafetyOfficer},
			Title:      fmt.Sprintf("Safety incident recorded (%s)", payload.Severity),
			Message:    safetyMessage(payload),
			Channels:   channels,
		}},
		Broadcasts: []domain.BroadcastMessage{
			broadcastFor(event, "project.safety_incident", map[string]interface{}{
				"incident_id":     payload.IncidentID,
				"severity":        payload.Severity,
				"osha_recordable": payload.OSHARecordable,
			}),
		},
		Actions: []string{
			fmt.Sprintf("safety incident %s recorded at %s priority", payload.IncidentID, priority),
		},
	}

	if snap != nil {
		input := SnapshotInput(snap)
		if input.SafetyIncidents == 0 {
			// The triggering incident counts even when the record store has
			// not caught up yet.
			input.SafetyIncidents = 1
		}
		score, color := Score(input, h.params)
		effect.ProjectPatch = &domain.ProjectPatch{
			HealthScore: &score,
			StatusColor: color,
		}
		effect.Actions = append(effect.Actions,
			fmt.Sprintf("health_score recomputed to %.2f (%s)", score, color))
	}

	return effect, nil
}

func safetyMessage(p domain.SafetyIncidentPayload) string {
	msg := fmt.Sprintf("Incident %s (%s severity) was recorded.", p.IncidentID, p.Severity)
	if p.OSHARecordable {
		msg += " This incident is OSHA-recordable."
	}
	if p.Description != "" {
		msg += " " + p.Description
	}
	return msg
}
