package models

import "time"

// Booking is the core record of the marketplace. Bookings are never
// physically deleted; terminal states are retained for history.
type Booking struct {
	ID               string    `json:"id"`
	TourID           string    `json:"tour_id"`
	UserID           string    `json:"user_id"`
	OperatorID       string    `json:"operator_id"` // tour owner, captured once at booking time
	TravelDate       time.Time `json:"travel_date"` // UTC midnight
	Participants     int       `json:"participants"`
	PriceAtBooking   int64     `json:"price_at_booking"` // minor units, snapshot of tour price
	TotalPrice       int64     `json:"total_price"`      // price_at_booking * participants, immutable
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status"`
	PaymentIntentRef string    `json:"payment_intent_ref,omitempty"`
	AmountPaid       int64     `json:"amount_paid"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// Terminal reports whether the booking admits no further lifecycle
// transitions.
func (b *Booking) Terminal() bool {
	switch b.Status {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// HoldsCapacity reports whether the booking counts against the
// (tour, travel date) participant capacity.
func (b *Booking) HoldsCapacity() bool {
	return b.Status == StatusPending || b.Status == StatusAccepted
}
