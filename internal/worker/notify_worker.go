package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tourbook/internal/domain"
	"tourbook/internal/metrics"
	"tourbook/internal/models"
)

// NotifyWorker drains the notification queue and pushes each notification to
// the delivery sink. Failed deliveries are retried with exponential backoff
// and land in the dead letter queue once the retry budget is spent.
type NotifyWorker struct {
	queue        domain.NotificationQueue
	sink         domain.DeliverySink
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	logger       *zerolog.Logger
}

func NewNotifyWorker(queue domain.NotificationQueue, sink domain.DeliverySink, retry RetryPolicy, logger *zerolog.Logger) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &NotifyWorker{
		queue:        queue,
		sink:         sink,
		retryPolicy:  retry,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to dequeue notification")
			w.sleep(ctx, w.pollInterval)
			continue
		}
		if task == nil {
			w.sleep(ctx, w.pollInterval)
			continue
		}

		w.processTask(ctx, task)
	}
}

func (w *NotifyWorker) processTask(ctx context.Context, task *models.DeliveryTask) {
	if !task.NextAttempt.IsZero() && time.Now().Before(task.NextAttempt) {
		// Not due yet, push it back.
		if err := w.queue.Enqueue(ctx, task); err != nil {
			w.logger.Error().Err(err).
				Str("notification_id", task.Notification.ID).
				Msg("Failed to requeue deferred notification")
		}
		w.sleep(ctx, w.pollInterval)
		return
	}

	err := w.sink.Deliver(ctx, &task.Notification)
	if err == nil {
		metrics.IncNotifyDelivery("delivered")
		return
	}

	task.Attempts++
	if task.Attempts >= w.retryPolicy.MaxRetries {
		metrics.IncNotifyDelivery("dead_letter")
		w.logger.Error().Err(err).
			Str("notification_id", task.Notification.ID).
			Int("attempts", task.Attempts).
			Msg("Notification delivery exhausted retries")
		if dlErr := w.queue.DeadLetter(ctx, task); dlErr != nil {
			w.logger.Error().Err(dlErr).
				Str("notification_id", task.Notification.ID).
				Msg("Failed to push notification to dead letter")
		}
		return
	}

	metrics.IncNotifyDelivery("retry")
	task.NextAttempt = time.Now().Add(w.retryPolicy.NextDelay(task.Attempts))
	w.logger.Warn().Err(err).
		Str("notification_id", task.Notification.ID).
		Int("attempt", task.Attempts).
		Time("next_attempt", task.NextAttempt).
		Msg("Notification delivery failed, scheduling retry")
	if err := w.queue.Enqueue(ctx, task); err != nil {
		w.logger.Error().Err(err).
			Str("notification_id", task.Notification.ID).
			Msg("Failed to requeue notification for retry")
	}
}

func (w *NotifyWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
