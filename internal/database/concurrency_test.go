package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

func TestConcurrentBookingAdmission(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tour := seedTour(t, db, 10000, 1, date)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			booking := makeBooking(tour, "user", date, 1)
			results <- db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize)
		}(i)
	}

	wg.Wait()
	close(results)

	var succeeded, full int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one booking should win the seat")
	assert.Equal(t, numGoroutines-1, full)

	sum, err := db.SumParticipants(ctx, tour.ID, date, []string{models.StatusPending, models.StatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, 1, sum)
}
