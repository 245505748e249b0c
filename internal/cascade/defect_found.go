package cascade

import (
	"context"
	"encoding/json"
	"fmt"

	"sitepulse.io/sitepulse/internal/domain"
)

// DefectFoundHandler reacts to an open punch-list item: it recomputes the
// health score and notifies the superintendent with a priority mapped from
// the defect severity.
type DefectFoundHandler struct {
	params ScoreParams
}

// NewDefectFoundHandler creates the handler.
func NewDefectFoundHandler(params ScoreParams) *DefectFoundHandler {
	return &DefectFoundHandler{params: params}
}

// Type implements Handler.
func (h *DefectFoundHandler) Type() domain.EventType { return domain.EventDefectFound }

// Handle implements Handler.
func (h *DefectFoundHandler) Handle(ctx context.Context, event *domain.DomainEvent, snap *domain.ProjectSnapshot) (*domain.CascadeEffect, error) {
	var payload domain.DefectPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, validationErr(fmt.Sprintf("defect payload: %v", err))
	}
	if payload.PunchItemID == "" {
		return nil, validationErr("punch_item_id is required")
	}

	score, color := Score(SnapshotInput(snap), h.params)
	priority := defectPriority(payload.Severity)

	return &domain.CascadeEffect{
		Event: event,
		ProjectPatch: &domain.ProjectPatch{
			HealthScore: &score,
			StatusColor: color,
		},
		Notifications: []domain.NotificationDraft{{
			Type:       string(domain.EventDefectFound),
			Priority:   priority,
			Recipients: []domain.Role{domain.RoleSuperintendent},
			Title:      fmt.Sprintf("Defect found: %s", payload.Title),
			Message: fmt.Sprintf("Punch item %s (%s severity) opened on project %s.",
				payload.PunchItemID, payload.Severity, snap.Project.Name),
			Channels: channelsFor(priority),
		}},
		Broadcasts: []domain.BroadcastMessage{
			broadcastFor(event, "project.defect_found", map[string]interface{}{
				"punch_item_id": payload.PunchItemID,
				"severity":      payload.Severity,
				"health_score":  score,
				"status_color":  color,
			}),
		},
		Actions: []string{
			fmt.Sprintf("health_score recomputed to %.2f (%s)", score, color),
			fmt.Sprintf("superintendent notified at %s priority", priority),
		},
	}, nil
}

// defectPriority maps defect severity to notification priority. Critical
// defects page at urgent, high at high, everything else at normal.
func defectPriority(severity domain.DefectSeverity) domain.NotificationPriority {
	switch severity {
	case domain.DefectSeverityCritical:
		return domain.PriorityUrgent
	case domain.DefectSeverityHigh:
		return domain.PriorityHigh
	default:
		return domain.PriorityNormal
	}
}
