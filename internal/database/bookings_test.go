package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTour(t *testing.T, db *DB, price int64, maxGroupSize int, dates ...time.Time) *models.Tour {
	t.Helper()
	tour := &models.Tour{
		ID:             uuid.NewString(),
		Title:          "Mountain Trek",
		Price:          price,
		MaxGroupSize:   maxGroupSize,
		AvailableDates: dates,
		OperatorID:     "op-1",
		IsActive:       true,
		ApprovalStatus: models.ApprovalApproved,
	}
	require.NoError(t, db.CreateTour(context.Background(), tour))
	return tour
}

func makeBooking(tour *models.Tour, userID string, travelDate time.Time, participants int) *models.Booking {
	return &models.Booking{
		ID:             uuid.NewString(),
		TourID:         tour.ID,
		UserID:         userID,
		OperatorID:     tour.OperatorID,
		TravelDate:     travelDate,
		Participants:   participants,
		PriceAtBooking: tour.Price,
		TotalPrice:     tour.Price * int64(participants),
		Status:         models.StatusPending,
		PaymentStatus:  models.PaymentUnpaid,
	}
}

func TestCreateBookingWithCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 5, date)

	first := makeBooking(tour, "user-1", date, 3)
	assert.NoError(t, db.CreateBookingWithCapacity(ctx, first, tour.MaxGroupSize))
	assert.Equal(t, int64(1), first.Version)

	over := makeBooking(tour, "user-2", date, 3)
	err := db.CreateBookingWithCapacity(ctx, over, tour.MaxGroupSize)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	fits := makeBooking(tour, "user-3", date, 2)
	assert.NoError(t, db.CreateBookingWithCapacity(ctx, fits, tour.MaxGroupSize))

	sum, err := db.SumParticipants(ctx, tour.ID, date, []string{models.StatusPending, models.StatusAccepted})
	assert.NoError(t, err)
	assert.Equal(t, 5, sum)
}

func TestCreateBookingWithCapacity_IgnoresReleasedCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 4, date)

	cancelled := makeBooking(tour, "user-1", date, 4)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, cancelled, tour.MaxGroupSize))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, cancelled.ID, cancelled.Version,
		[]string{models.StatusPending}, models.StatusCancelled))

	// Cancelled seats are free again.
	next := makeBooking(tour, "user-2", date, 4)
	assert.NoError(t, db.CreateBookingWithCapacity(ctx, next, tour.MaxGroupSize))
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	err := db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
		[]string{models.StatusPending}, models.StatusAccepted)
	assert.NoError(t, err)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Equal(t, int64(2), got.Version)

	// Same transition replayed with the stale version: the booking left the
	// source status, so the update is refused as already processed.
	err = db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
		[]string{models.StatusPending}, models.StatusAccepted)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestUpdateBookingStatusWithVersion_VersionRace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	err := db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version+5,
		[]string{models.StatusPending}, models.StatusAccepted)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	err = db.UpdateBookingStatusWithVersion(ctx, "missing", 1,
		[]string{models.StatusPending}, models.StatusAccepted)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRejectBookingClearsPaymentArtifacts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))
	require.NoError(t, db.SetPaymentIntentRef(ctx, booking.ID, "pi_123"))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, "pi_123", got.PaymentIntentRef)

	assert.NoError(t, db.RejectBookingWithVersion(ctx, booking.ID, got.Version))

	got, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, models.PaymentUnpaid, got.PaymentStatus)
	assert.Empty(t, got.PaymentIntentRef)
	assert.Zero(t, got.AmountPaid)
}

func TestMarkPaymentSucceeded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	fresh, err := db.MarkPaymentSucceeded(ctx, booking.ID, "pi_123", 20000)
	assert.NoError(t, err)
	assert.True(t, fresh)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.StatusAccepted, got.Status) // pending auto-accepts on payment
	assert.Equal(t, int64(20000), got.AmountPaid)
	assert.Equal(t, "pi_123", got.PaymentIntentRef)

	// Replay is a no-op, not an error.
	fresh, err = db.MarkPaymentSucceeded(ctx, booking.ID, "pi_123", 20000)
	assert.NoError(t, err)
	assert.False(t, fresh)

	_, err = db.MarkPaymentSucceeded(ctx, "missing", "pi_x", 100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkPaymentSucceeded_SettledBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
		[]string{models.StatusPending}, models.StatusCancelled))

	_, err := db.MarkPaymentSucceeded(ctx, booking.ID, "pi_123", 20000)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestMarkPaymentFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	fresh, err := db.MarkPaymentFailed(ctx, booking.ID)
	assert.NoError(t, err)
	assert.True(t, fresh)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, models.StatusPending, got.Status)

	// A failure event arriving after success must not downgrade paid.
	_, err = db.MarkPaymentSucceeded(ctx, booking.ID, "pi_123", 20000)
	require.NoError(t, err)
	fresh, err = db.MarkPaymentFailed(ctx, booking.ID)
	assert.NoError(t, err)
	assert.False(t, fresh)
}

func TestMarkRefunded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	_, err := db.MarkRefunded(ctx, booking.ID)
	assert.ErrorIs(t, err, domain.ErrNotPaid)

	_, err = db.MarkPaymentSucceeded(ctx, booking.ID, "pi_123", 20000)
	require.NoError(t, err)

	fresh, err := db.MarkRefunded(ctx, booking.ID)
	assert.NoError(t, err)
	assert.True(t, fresh)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, models.StatusCancelled, got.Status)

	fresh, err = db.MarkRefunded(ctx, booking.ID)
	assert.NoError(t, err)
	assert.False(t, fresh)
}

func TestHasActiveBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	booking := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	exists, err := db.HasActiveBooking(ctx, "user-1", tour.ID, date)
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.HasActiveBooking(ctx, "user-2", tour.ID, date)
	assert.NoError(t, err)
	assert.False(t, exists)

	// Terminal bookings do not block a new request.
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
		[]string{models.StatusPending}, models.StatusCancelled))
	exists, err = db.HasActiveBooking(ctx, "user-1", tour.ID, date)
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestCompleteDueBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	past := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, past, future)

	done := makeBooking(tour, "user-1", past, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, done, tour.MaxGroupSize))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, done.ID, done.Version,
		[]string{models.StatusPending}, models.StatusAccepted))

	upcoming := makeBooking(tour, "user-2", future, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, upcoming, tour.MaxGroupSize))

	n, err := db.CompleteDueBookings(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetBooking(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	got, err = db.GetBooking(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestHasReviewableBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	past := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, past)

	booking := makeBooking(tour, "user-1", past, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Pending does not qualify.
	ok, err := db.HasReviewableBooking(ctx, "user-1", tour.ID, cutoff)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
		[]string{models.StatusPending}, models.StatusAccepted))
	ok, err = db.HasReviewableBooking(ctx, "user-1", tour.ID, cutoff)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestGetUserAndOperatorBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 10, date)

	b1 := makeBooking(tour, "user-1", date, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, b1, tour.MaxGroupSize))
	b2 := makeBooking(tour, "user-2", date, 1)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, b2, tour.MaxGroupSize))

	mine, err := db.GetUserBookings(ctx, "user-1")
	assert.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, b1.ID, mine[0].ID)

	ops, err := db.GetOperatorBookings(ctx, tour.OperatorID)
	assert.NoError(t, err)
	assert.Len(t, ops, 2)
}
