package models

import "time"

// Notification is a per-recipient message created as a side effect of a
// booking or payment transition. The core only writes them.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Category  string            `json:"category"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}

// DeliveryTask wraps a notification on the async delivery queue.
type DeliveryTask struct {
	Notification Notification `json:"notification"`
	Attempts     int          `json:"attempts"`
	NextAttempt  time.Time    `json:"next_attempt,omitempty"`
}
