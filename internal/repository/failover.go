package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

// FailoverNotificationQueue wraps a primary queue (Redis) with an in-memory
// fallback so notification delivery degrades instead of failing when Redis
// is down. After a minute it probes the primary again.
type FailoverNotificationQueue struct {
	primary   domain.NotificationQueue
	fallback  domain.NotificationQueue
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverNotificationQueue(primary, fallback domain.NotificationQueue, logger *zerolog.Logger) *FailoverNotificationQueue {
	return &FailoverNotificationQueue{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (q *FailoverNotificationQueue) markDown(err error) {
	q.logger.Error().Err(err).Msg("Primary notification queue failed, falling back to memory")
	q.isDown.Store(true)
	q.lastCheck = time.Now()
}

func (q *FailoverNotificationQueue) Enqueue(ctx context.Context, task *models.DeliveryTask) error {
	if !q.isDown.Load() {
		err := q.primary.Enqueue(ctx, task)
		if err == nil {
			return nil
		}
		q.markDown(err)
	}

	return q.fallback.Enqueue(ctx, task)
}

func (q *FailoverNotificationQueue) Dequeue(ctx context.Context) (*models.DeliveryTask, error) {
	if !q.isDown.Load() {
		task, err := q.primary.Dequeue(ctx)
		if err == nil {
			if task != nil {
				return task, nil
			}
			// Primary empty, drain anything stranded in the fallback.
			return q.fallback.Dequeue(ctx)
		}
		q.markDown(err)
	}

	// Try to recover after 1 minute
	if q.isDown.Load() && time.Since(q.lastCheck) > time.Minute {
		task, err := q.primary.Dequeue(ctx)
		if err == nil {
			q.isDown.Store(false)
			if task != nil {
				return task, nil
			}
		} else {
			q.lastCheck = time.Now()
		}
	}

	return q.fallback.Dequeue(ctx)
}

func (q *FailoverNotificationQueue) DeadLetter(ctx context.Context, task *models.DeliveryTask) error {
	if !q.isDown.Load() {
		err := q.primary.DeadLetter(ctx, task)
		if err == nil {
			return nil
		}
		q.markDown(err)
	}

	return q.fallback.DeadLetter(ctx, task)
}
