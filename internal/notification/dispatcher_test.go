package notification

import (
	"context"
	"errors"
	"testing"

	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

type stubSender struct {
	channel domain.Channel
	err     error
	sent    int
}

func (s *stubSender) Channel() domain.Channel { return s.channel }

func (s *stubSender) Send(ctx context.Context, n *domain.Notification) error {
	s.sent++
	return s.err
}

func notificationFixture(channels ...domain.Channel) *domain.Notification {
	return &domain.Notification{
		ID:       "n-1",
		Type:     "WEATHER_DELAY",
		Title:    "Weather delay: 3 day(s)",
		Channels: channels,
	}
}

func TestDeliverFansOutToAllChannels(t *testing.T) {
	t.Parallel()

	inApp := &stubSender{channel: domain.ChannelInApp}
	email := &stubSender{channel: domain.ChannelEmail}
	d := NewDispatcher(inApp, email)

	err := d.Deliver(context.Background(), notificationFixture(domain.ChannelInApp, domain.ChannelEmail))
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if inApp.sent != 1 || email.sent != 1 {
		t.Fatalf("sent counts = %d, %d, want 1, 1", inApp.sent, email.sent)
	}
}

func TestDeliverAttemptsRemainingChannelsOnFailure(t *testing.T) {
	t.Parallel()

	email := &stubSender{channel: domain.ChannelEmail, err: errors.New("smtp down")}
	sms := &stubSender{channel: domain.ChannelSMS}
	d := NewDispatcher(email, sms)

	err := d.Deliver(context.Background(), notificationFixture(domain.ChannelEmail, domain.ChannelSMS))
	if err == nil {
		t.Fatal("Deliver() error = nil, want smtp failure")
	}
	if sms.sent != 1 {
		t.Fatalf("sms sent = %d, want 1 despite email failure", sms.sent)
	}
}

func TestDeliverUnknownChannelErrors(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewInAppSender())
	err := d.Deliver(context.Background(), notificationFixture(domain.ChannelSMS))
	if err == nil {
		t.Fatal("Deliver() error = nil, want unknown channel error")
	}
}

func TestDeliverRequiresChannels(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewInAppSender())
	if err := d.Deliver(context.Background(), notificationFixture()); err == nil {
		t.Fatal("Deliver() error = nil, want error for empty channel list")
	}
}
