// Package notify records notifications and hands them to the delivery queue.
// Notification failures never bubble into booking or payment flows; they are
// logged and counted instead.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

// Store persists notification records for the in-app inbox.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

type Emitter struct {
	store  Store
	queue  domain.NotificationQueue
	logger *zerolog.Logger
}

func NewEmitter(store Store, queue domain.NotificationQueue, logger *zerolog.Logger) *Emitter {
	return &Emitter{store: store, queue: queue, logger: logger}
}

// Notify writes the notification record and enqueues it for delivery. Both
// steps are best effort.
func (e *Emitter) Notify(ctx context.Context, userID, title, body, category string, metadata map[string]string) {
	if userID == "" {
		return
	}

	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Category:  category,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if e.store != nil {
		if err := e.store.CreateNotification(ctx, n); err != nil {
			e.logger.Warn().Err(err).
				Str("user_id", userID).
				Str("title", title).
				Msg("Failed to persist notification")
		}
	}

	if e.queue == nil {
		return
	}
	task := &models.DeliveryTask{Notification: *n}
	if err := e.queue.Enqueue(ctx, task); err != nil {
		e.logger.Warn().Err(err).
			Str("notification_id", n.ID).
			Msg("Failed to enqueue notification delivery")
	}
}
