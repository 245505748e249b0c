// Package notification implements notification delivery.
//
// Notification rows are created pending inside the cascade apply transaction;
// delivery happens asynchronously through River. A delivery failure never
// reaches back into cascade state.
package notification

import (
	"context"

	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// ChannelSender delivers one notification over one channel.
type ChannelSender interface {
	// Channel returns the delivery channel this sender serves.
	Channel() domain.Channel

	// Send delivers the notification. Errors make River retry the whole
	// delivery job with backoff.
	Send(ctx context.Context, n *domain.Notification) error
}

// InAppSender serves the in_app channel. The inbox row already exists from
// the apply transaction, so in-app delivery only confirms visibility.
type InAppSender struct{}

// NewInAppSender creates the in-app sender.
func NewInAppSender() *InAppSender { return &InAppSender{} }

// Channel implements ChannelSender.
func (s *InAppSender) Channel() domain.Channel { return domain.ChannelInApp }

// Send implements ChannelSender.
func (s *InAppSender) Send(ctx context.Context, n *domain.Notification) error {
	logger.Debug("in-app notification visible",
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
	)
	return nil
}

// EmailSender is the development email adapter: it logs the message instead
// of talking to a mail provider. Production deployments swap in a real
// provider behind the same interface.
type EmailSender struct{}

// NewEmailSender creates the email sender.
func NewEmailSender() *EmailSender { return &EmailSender{} }

// Channel implements ChannelSender.
func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

// Send implements ChannelSender.
func (s *EmailSender) Send(ctx context.Context, n *domain.Notification) error {
	logger.Info("email notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("title", n.Title),
		zap.Any("recipients", n.Recipients),
	)
	return nil
}

// SMSSender is the development SMS adapter, logging instead of sending.
type SMSSender struct{}

// NewSMSSender creates the SMS sender.
func NewSMSSender() *SMSSender { return &SMSSender{} }

// Channel implements ChannelSender.
func (s *SMSSender) Channel() domain.Channel { return domain.ChannelSMS }

// Send implements ChannelSender.
func (s *SMSSender) Send(ctx context.Context, n *domain.Notification) error {
	logger.Info("sms notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("title", n.Title),
		zap.Any("recipients", n.Recipients),
	)
	return nil
}
