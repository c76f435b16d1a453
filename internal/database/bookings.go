package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

const bookingColumns = `id, tour_id, user_id, operator_id, travel_date, participants,
                 price_at_booking, total_price, status, payment_status,
                 payment_intent_ref, amount_paid, created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	var dateStr string
	var intentRef sql.NullString
	err := row.Scan(
		&b.ID, &b.TourID, &b.UserID, &b.OperatorID, &dateStr, &b.Participants,
		&b.PriceAtBooking, &b.TotalPrice, &b.Status, &b.PaymentStatus,
		&intentRef, &b.AmountPaid, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.PaymentIntentRef = intentRef.String

	b.TravelDate, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse travel date %s: %w", dateStr, err)
	}
	return &b, nil
}

// CreateBookingWithCapacity inserts a booking after rechecking the committed
// participant sum inside the same transaction. The Capacity Ledger serializes
// callers per (tour, travel date); this transactional recheck is the second
// line of defense against oversubscription.
func (db *DB) CreateBookingWithCapacity(ctx context.Context, booking *models.Booking, maxGroupSize int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var committed sql.NullInt64
	queryCount := `SELECT SUM(participants) FROM bookings
	               WHERE tour_id = ? AND travel_date = ? AND status IN (?, ?)`
	err = tx.QueryRowContext(ctx, queryCount,
		booking.TourID, booking.TravelDate.Format(models.DateLayout),
		models.StatusPending, models.StatusAccepted).Scan(&committed)
	if err != nil {
		return fmt.Errorf("failed to sum committed participants in tx: %w", err)
	}

	if int(committed.Int64)+booking.Participants > maxGroupSize {
		return domain.ErrCapacityExceeded
	}

	queryInsert := `INSERT INTO bookings (` + bookingColumns + `)
	                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err = tx.ExecContext(ctx, queryInsert,
		booking.ID,
		booking.TourID,
		booking.UserID,
		booking.OperatorID,
		booking.TravelDate.Format(models.DateLayout),
		booking.Participants,
		booking.PriceAtBooking,
		booking.TotalPrice,
		booking.Status,
		booking.PaymentStatus,
		sql.NullString{String: booking.PaymentIntentRef, Valid: booking.PaymentIntentRef != ""},
		booking.AmountPaid,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	return db.queryBookings(ctx, query, userID)
}

func (db *DB) GetOperatorBookings(ctx context.Context, operatorID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE operator_id = ? ORDER BY created_at DESC`
	return db.queryBookings(ctx, query, operatorID)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// HasActiveBooking reports whether the user already holds a pending or
// accepted booking for the same tour and travel date.
func (db *DB) HasActiveBooking(ctx context.Context, userID, tourID string, travelDate time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM bookings
	          WHERE user_id = ? AND tour_id = ? AND travel_date = ? AND status IN (?, ?))`
	var exists bool
	err := db.QueryRowContext(ctx, query,
		userID, tourID, travelDate.Format(models.DateLayout),
		models.StatusPending, models.StatusAccepted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate booking: %w", err)
	}
	return exists, nil
}

// SumParticipants returns the participant total for a (tour, travel date)
// pair across bookings in the given statuses.
func (db *DB) SumParticipants(ctx context.Context, tourID string, travelDate time.Time, statuses []string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT SUM(participants) FROM bookings
	          WHERE tour_id = ? AND travel_date = ? AND status IN (` + placeholders + `)`

	args := []any{tourID, travelDate.Format(models.DateLayout)}
	for _, s := range statuses {
		args = append(args, s)
	}

	var sum sql.NullInt64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum participants: %w", err)
	}
	return int(sum.Int64), nil
}

// UpdateBookingStatusWithVersion applies a status transition guarded by both
// the optimistic version and the set of source statuses the transition is
// legal from. A lost race or a transition out of a terminal state never
// silently overwrites.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, fromStatuses []string, toStatus string) error {
	if len(fromStatuses) == 0 {
		return fmt.Errorf("no source statuses given")
	}

	placeholders := strings.Repeat("?,", len(fromStatuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
	          WHERE id = ? AND version = ? AND status IN (` + placeholders + `)`

	args := []any{toStatus, time.Now(), id, fromVersion}
	for _, s := range fromStatuses {
		args = append(args, s)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.explainStaleUpdate(ctx, id, fromStatuses)
	}
	return nil
}

// RejectBookingWithVersion rejects a pending booking and clears any payment
// artifacts in the same guarded update. A rejected booking must never be
// billable.
func (db *DB) RejectBookingWithVersion(ctx context.Context, id string, fromVersion int64) error {
	query := `UPDATE bookings
	          SET status = ?, payment_status = ?, amount_paid = 0,
	              payment_intent_ref = NULL, version = version + 1, updated_at = ?
	          WHERE id = ? AND version = ? AND status = ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusRejected, models.PaymentUnpaid, time.Now(),
		id, fromVersion, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to reject booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.explainStaleUpdate(ctx, id, []string{models.StatusPending})
	}
	return nil
}

// explainStaleUpdate classifies a zero-row conditional update: missing row,
// illegal source state, or a plain version race.
func (db *DB) explainStaleUpdate(ctx context.Context, id string, fromStatuses []string) error {
	var status string
	err := db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect booking after stale update: %w", err)
	}
	for _, s := range fromStatuses {
		if status == s {
			return domain.ErrConcurrentModification
		}
	}
	return domain.ErrAlreadyProcessed
}

// SetPaymentIntentRef records the gateway correlation id for a booking that
// is not paid yet.
func (db *DB) SetPaymentIntentRef(ctx context.Context, id, ref string) error {
	query := `UPDATE bookings SET payment_intent_ref = ?, version = version + 1, updated_at = ?
	          WHERE id = ? AND payment_status != ?`
	result, err := db.ExecContext(ctx, query, ref, time.Now(), id, models.PaymentPaid)
	if err != nil {
		return fmt.Errorf("failed to set payment intent ref: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// MarkPaymentSucceeded applies a fresh payment success as one guarded
// update: payment becomes paid, a still-pending booking is auto-accepted.
// Returns false with nil error when the booking is already paid, which is
// the idempotent-replay case.
func (db *DB) MarkPaymentSucceeded(ctx context.Context, id, intentRef string, amountPaid int64) (bool, error) {
	query := `UPDATE bookings
	          SET payment_status = ?, amount_paid = ?, payment_intent_ref = ?,
	              status = CASE WHEN status = ? THEN ? ELSE status END,
	              version = version + 1, updated_at = ?
	          WHERE id = ? AND payment_status != ? AND status IN (?, ?)`
	result, err := db.ExecContext(ctx, query,
		models.PaymentPaid, amountPaid, intentRef,
		models.StatusPending, models.StatusAccepted,
		time.Now(),
		id, models.PaymentPaid, models.StatusPending, models.StatusAccepted)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return true, nil
	}

	var paymentStatus string
	err = db.QueryRowContext(ctx, `SELECT payment_status FROM bookings WHERE id = ?`, id).Scan(&paymentStatus)
	if err == sql.ErrNoRows {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect booking after payment update: %w", err)
	}
	if paymentStatus == models.PaymentPaid {
		return false, nil
	}
	return false, domain.ErrAlreadyProcessed
}

// MarkPaymentFailed records a failed charge attempt. The booking status is
// left untouched. Returns false when the payment is already settled.
func (db *DB) MarkPaymentFailed(ctx context.Context, id string) (bool, error) {
	query := `UPDATE bookings SET payment_status = ?, version = version + 1, updated_at = ?
	          WHERE id = ? AND payment_status NOT IN (?, ?)`
	result, err := db.ExecContext(ctx, query,
		models.PaymentFailed, time.Now(),
		id, models.PaymentPaid, models.PaymentRefunded)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkRefunded moves a paid booking to refunded/cancelled. Returns false
// with nil error when the booking is already refunded.
func (db *DB) MarkRefunded(ctx context.Context, id string) (bool, error) {
	query := `UPDATE bookings SET payment_status = ?, status = ?, version = version + 1, updated_at = ?
	          WHERE id = ? AND payment_status = ?`
	result, err := db.ExecContext(ctx, query,
		models.PaymentRefunded, models.StatusCancelled, time.Now(),
		id, models.PaymentPaid)
	if err != nil {
		return false, fmt.Errorf("failed to mark refunded: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return true, nil
	}

	var paymentStatus string
	err = db.QueryRowContext(ctx, `SELECT payment_status FROM bookings WHERE id = ?`, id).Scan(&paymentStatus)
	if err == sql.ErrNoRows {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect booking after refund update: %w", err)
	}
	if paymentStatus == models.PaymentRefunded {
		return false, nil
	}
	return false, domain.ErrNotPaid
}

// CompleteDueBookings transitions accepted bookings whose travel date has
// passed to completed. Returns the number of bookings completed.
func (db *DB) CompleteDueBookings(ctx context.Context, before time.Time) (int64, error) {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
	          WHERE status = ? AND travel_date < ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusCompleted, time.Now(),
		models.StatusAccepted, before.Format(models.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to complete due bookings: %w", err)
	}
	return result.RowsAffected()
}

// HasReviewableBooking reports whether the user holds an accepted or
// completed booking for the tour with a travel date in the past.
func (db *DB) HasReviewableBooking(ctx context.Context, userID, tourID string, before time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM bookings
	          WHERE user_id = ? AND tour_id = ? AND status IN (?, ?) AND travel_date < ?)`
	var exists bool
	err := db.QueryRowContext(ctx, query,
		userID, tourID, models.StatusAccepted, models.StatusCompleted,
		before.Format(models.DateLayout)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check review eligibility: %w", err)
	}
	return exists, nil
}
