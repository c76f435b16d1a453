package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/internal/models"
)

func newTestQueue(t *testing.T) (*RedisNotificationQueue, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisNotificationQueue(client, "notify:queue", "notify:deadletter"), s
}

func task(id, userID string) *models.DeliveryTask {
	return &models.DeliveryTask{
		Notification: models.Notification{
			ID:        id,
			UserID:    userID,
			Title:     "Booking accepted",
			Category:  models.CategoryBooking,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func TestRedisNotificationQueue(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	t.Run("EnqueueDequeueFIFO", func(t *testing.T) {
		require.NoError(t, queue.Enqueue(ctx, task("n-1", "user-1")))
		require.NoError(t, queue.Enqueue(ctx, task("n-2", "user-2")))

		got, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "n-1", got.Notification.ID)

		got, err = queue.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "n-2", got.Notification.ID)
	})

	t.Run("DequeueEmpty", func(t *testing.T) {
		got, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeadLetter", func(t *testing.T) {
		failed := task("n-3", "user-3")
		failed.Attempts = 5
		require.NoError(t, queue.DeadLetter(ctx, failed))

		// Dead letters never come back through Dequeue.
		got, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestRedisNotificationQueuePreservesAttempts(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	retried := task("n-1", "user-1")
	retried.Attempts = 2
	retried.NextAttempt = time.Now().Add(time.Minute).UTC()
	require.NoError(t, queue.Enqueue(ctx, retried))

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Attempts)
	assert.WithinDuration(t, retried.NextAttempt, got.NextAttempt, time.Second)
}
