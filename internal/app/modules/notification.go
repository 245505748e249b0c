package modules

import (
	"context"

	"github.com/riverqueue/river"

	"sitepulse.io/sitepulse/internal/api/handlers"
	"sitepulse.io/sitepulse/internal/jobs"
	"sitepulse.io/sitepulse/internal/notification"
)

// NotificationModule wires channel senders and the delivery, sweep, and
// cleanup workers.
type NotificationModule struct {
	infra      *Infrastructure
	dispatcher *notification.Dispatcher
}

// NewNotificationModule creates the notification module. The email and SMS
// senders are dev adapters that log instead of calling a real gateway.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	return &NotificationModule{
		infra: infra,
		dispatcher: notification.NewDispatcher(
			notification.NewInAppSender(),
			notification.NewEmailSender(),
			notification.NewSMSSender(),
		),
	}
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m == nil || m.infra == nil {
		return
	}
	river.AddWorker(workers, jobs.NewNotificationDeliverWorker(m.infra.Store, m.dispatcher))
	river.AddWorker(workers, jobs.NewInvoiceSweepWorker(m.infra.Store, 0))
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(m.infra.Store, m.infra.Config.Notification.Retention))
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
