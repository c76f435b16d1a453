package domain

import (
	"context"
	"time"

	"tourbook/internal/models"
)

// Repository is the persistence surface of the booking core.
type Repository interface {
	CreateBookingWithCapacity(ctx context.Context, booking *models.Booking, maxGroupSize int) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	GetOperatorBookings(ctx context.Context, operatorID string) ([]*models.Booking, error)
	HasActiveBooking(ctx context.Context, userID, tourID string, travelDate time.Time) (bool, error)
	SumParticipants(ctx context.Context, tourID string, travelDate time.Time, statuses []string) (int, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, fromStatuses []string, toStatus string) error
	RejectBookingWithVersion(ctx context.Context, id string, fromVersion int64) error
	SetPaymentIntentRef(ctx context.Context, id, ref string) error
	MarkPaymentSucceeded(ctx context.Context, id, intentRef string, amountPaid int64) (bool, error)
	MarkPaymentFailed(ctx context.Context, id string) (bool, error)
	MarkRefunded(ctx context.Context, id string) (bool, error)
	CompleteDueBookings(ctx context.Context, before time.Time) (int64, error)
	HasReviewableBooking(ctx context.Context, userID, tourID string, before time.Time) (bool, error)
}

// Catalog is the read-only tour source.
type Catalog interface {
	GetTour(ctx context.Context, id string) (*models.Tour, error)
}

// Notifier is the fire-and-forget notification sink. Implementations must
// never fail the triggering transaction.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body, category string, metadata map[string]string)
}

// PaymentGateway bridges to the external payment provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, ref string) (*models.PaymentIntent, error)
	Refund(ctx context.Context, intentRef, reason string) (string, error)
}

// EventPublisher publishes domain events for in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationQueue is the async delivery queue behind the Notifier.
type NotificationQueue interface {
	Enqueue(ctx context.Context, task *models.DeliveryTask) error
	Dequeue(ctx context.Context) (*models.DeliveryTask, error)
	DeadLetter(ctx context.Context, task *models.DeliveryTask) error
}

// DeliverySink pushes a notification to an external channel.
type DeliverySink interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// BookingService drives the booking lifecycle.
type BookingService interface {
	Request(ctx context.Context, actor models.Actor, tourID string, travelDate time.Time, participants int) (*models.Booking, error)
	Decide(ctx context.Context, actor models.Actor, bookingID, decision string) (*models.Booking, error)
	Cancel(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	Get(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	ListForUser(ctx context.Context, actor models.Actor) ([]*models.Booking, error)
	ListForOperator(ctx context.Context, actor models.Actor) ([]*models.Booking, error)
	Availability(ctx context.Context, tourID string, travelDate time.Time) (int, error)
	CompleteDue(ctx context.Context) (int64, error)
	IsEligibleToReview(ctx context.Context, userID, tourID string) (bool, error)
}

// PaymentService reconciles gateway state with booking state.
type PaymentService interface {
	CreateIntent(ctx context.Context, actor models.Actor, bookingID string) (*models.PaymentIntent, error)
	Confirm(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error
	Refund(ctx context.Context, actor models.Actor, bookingID, reason string) (*models.Booking, error)
	Status(ctx context.Context, actor models.Actor, bookingID string) (string, error)
}
