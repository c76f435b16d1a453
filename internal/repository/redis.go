package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tourbook/internal/config"
	"tourbook/internal/models"
)

type RedisNotificationQueue struct {
	client        *redis.Client
	queueKey      string
	deadLetterKey string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisNotificationQueue(client *redis.Client, queueKey, deadLetterKey string) *RedisNotificationQueue {
	return &RedisNotificationQueue{
		client:        client,
		queueKey:      queueKey,
		deadLetterKey: deadLetterKey,
	}
}

func (q *RedisNotificationQueue) Enqueue(ctx context.Context, task *models.DeliveryTask) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery task: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue delivery task: %w", err)
	}
	return nil
}

// Dequeue pops the oldest task. Returns nil when the queue is empty.
func (q *RedisNotificationQueue) Dequeue(ctx context.Context) (*models.DeliveryTask, error) {
	if q.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := q.client.RPop(ctx, q.queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue delivery task: %w", err)
	}

	var task models.DeliveryTask
	if err := json.Unmarshal([]byte(val), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery task: %w", err)
	}
	return &task, nil
}

func (q *RedisNotificationQueue) DeadLetter(ctx context.Context, task *models.DeliveryTask) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery task: %w", err)
	}
	if err := q.client.LPush(ctx, q.deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move task to dead letter: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
