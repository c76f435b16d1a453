package repository

import (
	"context"
	"sync"

	"tourbook/internal/models"
)

// MemoryNotificationQueue is the in-process fallback used when Redis is
// unavailable or not configured. Tasks do not survive a restart.
type MemoryNotificationQueue struct {
	mu    sync.Mutex
	tasks []*models.DeliveryTask
	dead  []*models.DeliveryTask
}

func NewMemoryNotificationQueue() *MemoryNotificationQueue {
	return &MemoryNotificationQueue{}
}

func (q *MemoryNotificationQueue) Enqueue(ctx context.Context, task *models.DeliveryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *MemoryNotificationQueue) Dequeue(ctx context.Context) (*models.DeliveryTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, nil
}

func (q *MemoryNotificationQueue) DeadLetter(ctx context.Context, task *models.DeliveryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, task)
	return nil
}

// DeadLetters returns a snapshot of the dead letter list.
func (q *MemoryNotificationQueue) DeadLetters() []*models.DeliveryTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.DeliveryTask, len(q.dead))
	copy(out, q.dead)
	return out
}
