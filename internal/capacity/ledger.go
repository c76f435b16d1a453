// Package capacity implements admission control over a tour's per-date
// participant capacity. Admissions for the same (tour, travel date) pair are
// serialized through a keyed mutex so that the read-check-write sequence
// never races with another request for the same pair.
package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tourbook/internal/domain"
	"tourbook/internal/models"

	"github.com/rs/zerolog"
)

// Summer is the storage slice the ledger needs: participant sums and the
// capacity-guarded insert.
type Summer interface {
	SumParticipants(ctx context.Context, tourID string, travelDate time.Time, statuses []string) (int, error)
	CreateBookingWithCapacity(ctx context.Context, booking *models.Booking, maxGroupSize int) error
}

type Ledger struct {
	store  Summer
	logger *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedger(store Summer, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func key(tourID string, travelDate time.Time) string {
	return tourID + "@" + travelDate.Format(models.DateLayout)
}

// lock acquires the per-(tour, date) mutex and returns its release func.
// Lock entries are never evicted; the map is bounded by the number of
// distinct tour/date pairs seen by this process.
func (l *Ledger) lock(tourID string, travelDate time.Time) func() {
	k := key(tourID, travelDate)

	l.mu.Lock()
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Committed returns the participant sum held by pending and accepted
// bookings for the pair.
func (l *Ledger) Committed(ctx context.Context, tourID string, travelDate time.Time) (int, error) {
	return l.store.SumParticipants(ctx, tourID, travelDate,
		[]string{models.StatusPending, models.StatusAccepted})
}

// Available returns the remaining capacity for the pair.
func (l *Ledger) Available(ctx context.Context, tour *models.Tour, travelDate time.Time) (int, error) {
	committed, err := l.Committed(ctx, tour.ID, travelDate)
	if err != nil {
		return 0, err
	}
	available := tour.MaxGroupSize - committed
	if available < 0 {
		available = 0
	}
	return available, nil
}

// Admit runs the request-time admission gate and, on success, inserts the
// booking while holding the pair's mutex. The storage insert rechecks the
// sum inside its transaction.
func (l *Ledger) Admit(ctx context.Context, tour *models.Tour, booking *models.Booking) error {
	unlock := l.lock(tour.ID, booking.TravelDate)
	defer unlock()

	committed, err := l.Committed(ctx, tour.ID, booking.TravelDate)
	if err != nil {
		return fmt.Errorf("admission sum: %w", err)
	}

	if committed+booking.Participants > tour.MaxGroupSize {
		l.logger.Info().
			Str("tour_id", tour.ID).
			Str("travel_date", booking.TravelDate.Format(models.DateLayout)).
			Int("committed", committed).
			Int("requested", booking.Participants).
			Int("max_group_size", tour.MaxGroupSize).
			Msg("admission denied")
		return domain.ErrCapacityExceeded
	}

	return l.store.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize)
}

// ReAdmit runs the accept-time gate: the sum is recomputed over accepted
// bookings only, because pending bookings for the same date may jointly
// oversubscribe the capacity. The apply callback runs while the pair's
// mutex is held.
func (l *Ledger) ReAdmit(ctx context.Context, tour *models.Tour, booking *models.Booking, apply func(context.Context) error) error {
	unlock := l.lock(tour.ID, booking.TravelDate)
	defer unlock()

	acceptedSum, err := l.store.SumParticipants(ctx, tour.ID, booking.TravelDate,
		[]string{models.StatusAccepted})
	if err != nil {
		return fmt.Errorf("re-admission sum: %w", err)
	}

	if acceptedSum+booking.Participants > tour.MaxGroupSize {
		l.logger.Info().
			Str("tour_id", tour.ID).
			Str("booking_id", booking.ID).
			Int("accepted_sum", acceptedSum).
			Int("participants", booking.Participants).
			Int("max_group_size", tour.MaxGroupSize).
			Msg("re-admission denied")
		return domain.ErrTourFull
	}

	return apply(ctx)
}
