package cascade

import (
	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
)

// validationErr builds the rejection error handlers raise before any
// mutation. The dispatcher maps it to a rejected outcome, never a retry.
func validationErr(reason string) error {
	return apperrors.Unprocessable(apperrors.CodeValidationFailed, reason)
}

// isValidationErr reports whether an error is a pre-mutation rejection.
func isValidationErr(err error) bool {
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		return false
	}
	return appErr.Code == apperrors.CodeValidationFailed || appErr.Code == apperrors.CodeEventMalformed
}

// channelsFor picks delivery channels by priority. OSHA-recordable safety
// incidents override this with the full multi-channel set.
func channelsFor(priority domain.NotificationPriority) []domain.Channel {
	switch priority {
	case domain.PriorityUrgent:
		return []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelSMS}
	case domain.PriorityHigh:
		return []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}
	default:
		return []domain.Channel{domain.ChannelInApp}
	}
}

// broadcastFor builds the real-time message published after commit.
func broadcastFor(event *domain.DomainEvent, msgType string, payload interface{}) domain.BroadcastMessage {
	return domain.BroadcastMessage{
		Type:      msgType,
		ProjectID: event.ProjectID,
		Payload:   payload,
		Timestamp: event.OccurredAt,
	}
}
