// Package jobs defines River Queue job types for async processing.
//
// Jobs carry only record ids (claim-check pattern); workers load current
// state at execution time.
package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/notification"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// DefaultDeliveryAttempts bounds delivery retries before a notification is
// parked as failed.
const DefaultDeliveryAttempts = 5

// NotificationStore is the persistence surface the delivery worker needs.
type NotificationStore interface {
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	MarkNotificationSent(ctx context.Context, id string, attempts int) error
	MarkNotificationFailed(ctx context.Context, id string, attempts int) error
}

// NotificationDeliverArgs carries only the notification id.
type NotificationDeliverArgs struct {
	NotificationID string `json:"notification_id"`
}

// Kind returns the job kind identifier for notification delivery.
func (NotificationDeliverArgs) Kind() string { return "notification_deliver" }

// InsertOpts returns default insert options for delivery jobs. River retries
// with exponential backoff up to MaxAttempts.
func (NotificationDeliverArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: DefaultDeliveryAttempts,
	}
}

// NotificationDeliverWorker delivers one pending notification across its
// channels. Failures are retried by River; when the final attempt fails the
// record is parked as failed and the error never reaches the cascade.
type NotificationDeliverWorker struct {
	river.WorkerDefaults[NotificationDeliverArgs]
	store      NotificationStore
	dispatcher *notification.Dispatcher
}

// NewNotificationDeliverWorker creates a delivery worker.
func NewNotificationDeliverWorker(store NotificationStore, dispatcher *notification.Dispatcher) *NotificationDeliverWorker {
	return &NotificationDeliverWorker{store: store, dispatcher: dispatcher}
}

// Work delivers the notification referenced by the job.
func (w *NotificationDeliverWorker) Work(ctx context.Context, job *river.Job[NotificationDeliverArgs]) error {
	if w == nil || w.store == nil || w.dispatcher == nil {
		return fmt.Errorf("notification deliver worker is not initialized")
	}

	n, err := w.store.GetNotification(ctx, job.Args.NotificationID)
	if err != nil {
		return fmt.Errorf("load notification %s: %w", job.Args.NotificationID, err)
	}
	if n.Status == domain.NotificationSent {
		// A prior attempt delivered but the status write raced the retry.
		return nil
	}

	if err := w.dispatcher.Deliver(ctx, n); err != nil {
		if job.Attempt >= job.MaxAttempts {
			logger.Error("notification delivery exhausted, parking as failed",
				zap.String("notification_id", n.ID),
				zap.Int("attempts", job.Attempt),
				zap.Error(err),
			)
			if markErr := w.store.MarkNotificationFailed(ctx, n.ID, job.Attempt); markErr != nil {
				return fmt.Errorf("park notification %s as failed: %w", n.ID, markErr)
			}
			// Swallow the delivery error: the terminal state is recorded and
			// further retries would be pointless.
			return nil
		}
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}

	if err := w.store.MarkNotificationSent(ctx, n.ID, job.Attempt); err != nil {
		return fmt.Errorf("mark notification %s sent: %w", n.ID, err)
	}

	logger.Info("notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
		zap.Int("channels", len(n.Channels)),
	)
	return nil
}
