package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// Dispatcher fans a notification out to its channels.
type Dispatcher struct {
	senders map[domain.Channel]ChannelSender
}

// NewDispatcher creates a Dispatcher over the given senders. A later sender
// for the same channel replaces the earlier one.
func NewDispatcher(senders ...ChannelSender) *Dispatcher {
	m := make(map[domain.Channel]ChannelSender, len(senders))
	for _, s := range senders {
		m[s.Channel()] = s
	}
	return &Dispatcher{senders: m}
}

// Deliver sends the notification over every channel it targets. All channels
// are attempted; the joined error makes River retry the delivery job, and
// already-delivered channels tolerate the repeat (at-least-once).
func (d *Dispatcher) Deliver(ctx context.Context, n *domain.Notification) error {
	if len(n.Channels) == 0 {
		return apperrors.BadRequest(apperrors.CodeUnknownChannel, "notification has no channels")
	}

	var errs []error
	for _, channel := range n.Channels {
		sender, ok := d.senders[channel]
		if !ok {
			errs = append(errs, apperrors.Internal(apperrors.CodeUnknownChannel,
				fmt.Sprintf("no sender registered for channel %s", channel)))
			continue
		}
		if err := sender.Send(ctx, n); err != nil {
			logger.Warn("channel delivery failed",
				zap.String("notification_id", n.ID),
				zap.String("channel", string(channel)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}
