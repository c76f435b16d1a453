package domain

import "errors"

// Sentinel errors surfaced by the booking core. The API layer maps them to
// HTTP status codes with errors.Is; services wrap them with context via
// fmt.Errorf("...: %w", err).
var (
	// ErrValidation marks malformed input (participants < 1, missing date).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent tour or booking.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied marks an actor that does not own the resource or
	// lacks the role for the operation. Never a state change.
	ErrAccessDenied = errors.New("access denied")

	// ErrCapacityExceeded is the request-time admission failure: committed
	// participants plus the request would exceed the tour's group size.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrTourFull is the accept-time re-admission failure: the accepted-only
	// participant sum plus this booking would exceed the group size.
	ErrTourFull = errors.New("tour full")

	// ErrDuplicateBooking marks an existing pending/accepted booking for the
	// same user, tour and travel date.
	ErrDuplicateBooking = errors.New("duplicate booking")

	// ErrPastDate rejects travel dates in the past at request time.
	ErrPastDate = errors.New("travel date is in the past")

	// ErrDateTooFar rejects travel dates beyond the booking horizon.
	ErrDateTooFar = errors.New("travel date is too far ahead")

	// ErrDateNotAvailable rejects dates absent from the tour's published
	// availability list.
	ErrDateNotAvailable = errors.New("date not available for this tour")

	// ErrAlreadyProcessed marks a stale transition: the booking has already
	// left the state the caller assumed.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrConcurrentModification marks a lost optimistic-versioning race.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrGatewayUnavailable marks a misconfigured or unreachable payment
	// gateway. Degraded, not fatal, to the rest of the system.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrSignatureInvalid marks an inbound gateway event whose signature
	// did not verify. The event is dropped.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrNotPaid marks a refund attempt against a booking that is not paid.
	ErrNotPaid = errors.New("booking is not paid")

	// ErrNotAccepted marks an intent creation against a booking that has not
	// been accepted by the operator yet.
	ErrNotAccepted = errors.New("booking is not accepted")

	// ErrAlreadyPaid marks an intent creation against an already paid booking.
	ErrAlreadyPaid = errors.New("booking is already paid")
)
