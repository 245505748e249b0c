package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sitepulse.io/sitepulse/internal/domain"
)

// SubmittalApprovedHandler reacts to a submittal transitioning into the
// approved status: operations are told materials can be ordered. A redundant
// write (prior status already approved) is rejected before any mutation, so
// duplicate cascades never fire.
type SubmittalApprovedHandler struct{}

// NewSubmittalApprovedHandler creates the handler.
func NewSubmittalApprovedHandler() *SubmittalApprovedHandler {
	return &SubmittalApprovedHandler{}
}

// Type implements Handler.
func (h *SubmittalApprovedHandler) Type() domain.EventType { return domain.EventSubmittalApproved }

// Handle implements Handler.
func (h *SubmittalApprovedHandler) Handle(ctx context.Context, event *domain.DomainEvent, snap *domain.ProjectSnapshot) (*domain.CascadeEffect, error) {
	var payload domain.SubmittalApprovedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, validationErr(fmt.Sprintf("submittal payload: %v", err))
	}
	if payload.SubmittalID == "" {
		return nil, validationErr("submittal_id is required")
	}
	if strings.EqualFold(payload.PriorStatus, "approved") {
		return nil, validationErr("submittal was already approved; redundant write ignored")
	}

	return &domain.CascadeEffect{
		Event: event,
		Notifications: []domain.NotificationDraft{{
			Type:       string(domain.EventSubmittalApproved),
			Priority:   domain.PriorityNormal,
			Recipients: []domain.Role{domain.RoleOperations},
			Title:      fmt.Sprintf("Submittal approved: %s", payload.Title),
			Message: fmt.Sprintf("Submittal %s was approved: ready to order materials.",
				payload.SubmittalID),
			Channels: channelsFor(domain.PriorityNormal),
		}},
		Broadcasts: []domain.BroadcastMessage{
			broadcastFor(event, "project.submittal_approved", map[string]interface{}{
				"submittal_id": payload.SubmittalID,
				"spec_section": payload.SpecSection,
			}),
		},
		Actions: []string{
			fmt.Sprintf("submittal %s approval surfaced to operations", payload.SubmittalID),
		},
	}, nil
}
