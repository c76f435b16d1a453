package models

// Booking lifecycle. Rejected, cancelled and completed are terminal.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Payment lifecycle, orthogonal to the booking lifecycle.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Actor roles as set by the upstream auth gateway.
const (
	RoleTraveler = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Tour moderation status.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Notification categories.
const (
	CategoryBooking = "booking"
	CategoryPayment = "payment"
	CategorySystem  = "system"
)

// DateLayout is the canonical travel-date format. Travel dates carry no
// time-of-day component.
const DateLayout = "2006-01-02"

const (
	// DefaultMaxAdvanceDays limits how far ahead a travel date may be.
	DefaultMaxAdvanceDays = 365

	// DefaultCurrency is used when the payment config leaves it empty.
	DefaultCurrency = "usd"

	// WorkerQueueSize bounds the in-memory notification delivery queue.
	WorkerQueueSize = 1000
)
