package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tourbook/internal/capacity"
	"tourbook/internal/domain"
	"tourbook/internal/events"
	"tourbook/internal/metrics"
	"tourbook/internal/models"
)

// BookingServiceImpl owns the booking lifecycle: request, operator decision,
// cancellation and completion. Capacity admission is delegated to the ledger,
// all persistence to the repository.
type BookingServiceImpl struct {
	repo           domain.Repository
	catalog        domain.Catalog
	ledger         *capacity.Ledger
	notifier       domain.Notifier
	eventBus       domain.EventPublisher
	maxAdvanceDays int
	logger         *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	catalog domain.Catalog,
	ledger *capacity.Ledger,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	maxAdvanceDays int,
	logger *zerolog.Logger,
) *BookingServiceImpl {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	return &BookingServiceImpl{
		repo:           repo,
		catalog:        catalog,
		ledger:         ledger,
		notifier:       notifier,
		eventBus:       eventBus,
		maxAdvanceDays: maxAdvanceDays,
		logger:         logger,
	}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *BookingServiceImpl) validateTravelDate(date time.Time) error {
	now := today()
	if date.Before(now) {
		return domain.ErrPastDate
	}
	if date.After(now.AddDate(0, 0, s.maxAdvanceDays)) {
		return domain.ErrDateTooFar
	}
	return nil
}

// Request validates the booking, snapshots the tour price and admits the
// booking through the capacity ledger. The returned booking is pending until
// the operator decides.
func (s *BookingServiceImpl) Request(ctx context.Context, actor models.Actor, tourID string, travelDate time.Time, participants int) (*models.Booking, error) {
	if actor.ID == "" {
		return nil, domain.ErrAccessDenied
	}
	if tourID == "" {
		return nil, fmt.Errorf("%w: tour id is required", domain.ErrValidation)
	}
	if participants < 1 {
		return nil, fmt.Errorf("%w: participants must be at least 1", domain.ErrValidation)
	}
	if travelDate.IsZero() {
		return nil, fmt.Errorf("%w: travel date is required", domain.ErrValidation)
	}
	travelDate = normalizeDate(travelDate)

	tour, err := s.catalog.GetTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if !tour.Bookable() {
		return nil, domain.ErrNotFound
	}

	if err := s.validateTravelDate(travelDate); err != nil {
		return nil, err
	}
	if !tour.HasDate(travelDate) {
		return nil, domain.ErrDateNotAvailable
	}
	if participants > tour.MaxGroupSize {
		return nil, domain.ErrCapacityExceeded
	}

	exists, err := s.repo.HasActiveBooking(ctx, actor.ID, tourID, travelDate)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing bookings: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateBooking
	}

	booking := &models.Booking{
		ID:             uuid.NewString(),
		TourID:         tour.ID,
		UserID:         actor.ID,
		OperatorID:     tour.OperatorID,
		TravelDate:     travelDate,
		Participants:   participants,
		PriceAtBooking: tour.Price,
		TotalPrice:     tour.Price * int64(participants),
		Status:         models.StatusPending,
		PaymentStatus:  models.PaymentUnpaid,
	}

	if err := s.ledger.Admit(ctx, tour, booking); err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("tour_id", tour.ID).
		Str("user_id", actor.ID).
		Int("participants", participants).
		Msg("Booking requested")

	s.notify(ctx, booking.OperatorID, "New booking request",
		fmt.Sprintf("A booking for %q on %s is awaiting your decision", tour.Title, travelDate.Format(models.DateLayout)),
		models.CategoryBooking, map[string]string{"booking_id": booking.ID})
	s.publish(events.EventBookingRequested, booking, actor.ID)

	return booking, nil
}

// Decide applies the operator's accept or reject decision to a pending
// booking. Acceptance re-checks capacity against accepted bookings only, so a
// burst of optimistic pending requests cannot be accepted past the limit.
func (s *BookingServiceImpl) Decide(ctx context.Context, actor models.Actor, bookingID, decision string) (*models.Booking, error) {
	if decision != models.StatusAccepted && decision != models.StatusRejected {
		return nil, fmt.Errorf("%w: decision must be %q or %q", domain.ErrValidation, models.StatusAccepted, models.StatusRejected)
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, actionDecide, booking); err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPending {
		return nil, domain.ErrAlreadyProcessed
	}

	switch decision {
	case models.StatusAccepted:
		tour, err := s.catalog.GetTour(ctx, booking.TourID)
		if err != nil {
			return nil, err
		}
		err = s.ledger.ReAdmit(ctx, tour, booking, func(ctx context.Context) error {
			return s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
				[]string{models.StatusPending}, models.StatusAccepted)
		})
		if err != nil {
			if errors.Is(err, domain.ErrTourFull) {
				metrics.IncAdmissionRejected("accept")
			}
			return nil, err
		}
	case models.StatusRejected:
		if err := s.repo.RejectBookingWithVersion(ctx, booking.ID, booking.Version); err != nil {
			return nil, err
		}
	}

	metrics.IncDecision(decision)

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", bookingID).
		Str("decision", decision).
		Str("operator_id", actor.ID).
		Msg("Booking decided")

	title := "Booking accepted"
	event := events.EventBookingAccepted
	if decision == models.StatusRejected {
		title = "Booking rejected"
		event = events.EventBookingRejected
	}
	s.notify(ctx, updated.UserID, title,
		fmt.Sprintf("Your booking for %s has been %s", updated.TravelDate.Format(models.DateLayout), decision),
		models.CategoryBooking, map[string]string{"booking_id": updated.ID})
	s.publish(event, updated, actor.ID)

	return updated, nil
}

// Cancel lets the traveler withdraw a pending or accepted booking. Paid
// bookings keep their payment state; refunds are a separate, explicit step.
func (s *BookingServiceImpl) Cancel(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, actionCancel, booking); err != nil {
		return nil, err
	}
	if !booking.HoldsCapacity() {
		return nil, domain.ErrAlreadyProcessed
	}

	err = s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
		[]string{models.StatusPending, models.StatusAccepted}, models.StatusCancelled)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", bookingID).
		Str("user_id", actor.ID).
		Msg("Booking cancelled")

	s.notify(ctx, updated.OperatorID, "Booking cancelled",
		fmt.Sprintf("The booking for %s was cancelled by the traveler", updated.TravelDate.Format(models.DateLayout)),
		models.CategoryBooking, map[string]string{"booking_id": updated.ID})
	s.publish(events.EventBookingCancelled, updated, actor.ID)

	return updated, nil
}

func (s *BookingServiceImpl) Get(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, actionView, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingServiceImpl) ListForUser(ctx context.Context, actor models.Actor) ([]*models.Booking, error) {
	if actor.ID == "" {
		return nil, domain.ErrAccessDenied
	}
	return s.repo.GetUserBookings(ctx, actor.ID)
}

func (s *BookingServiceImpl) ListForOperator(ctx context.Context, actor models.Actor) ([]*models.Booking, error) {
	if actor.ID == "" || actor.Role != models.RoleOperator {
		return nil, domain.ErrAccessDenied
	}
	return s.repo.GetOperatorBookings(ctx, actor.ID)
}

// Availability reports the remaining capacity for a tour date, counting both
// pending and accepted bookings as holding seats.
func (s *BookingServiceImpl) Availability(ctx context.Context, tourID string, date time.Time) (int, error) {
	tour, err := s.catalog.GetTour(ctx, tourID)
	if err != nil {
		return 0, err
	}
	return s.ledger.Available(ctx, tour, normalizeDate(date))
}

// CompleteDue moves accepted bookings whose travel date has passed to
// completed. Invoked by the periodic sweep in the API process.
func (s *BookingServiceImpl) CompleteDue(ctx context.Context) (int64, error) {
	n, err := s.repo.CompleteDueBookings(ctx, today())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("Completed past bookings")
	}
	return n, nil
}

// IsEligibleToReview reports whether the user has an accepted or completed
// booking for the tour with a travel date in the past.
func (s *BookingServiceImpl) IsEligibleToReview(ctx context.Context, userID, tourID string) (bool, error) {
	return s.repo.HasReviewableBooking(ctx, userID, tourID, today())
}

func (s *BookingServiceImpl) notify(ctx context.Context, userID, title, body, category string, metadata map[string]string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, title, body, category, metadata)
}

func (s *BookingServiceImpl) publish(event string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:     booking.ID,
		TourID:        booking.TourID,
		UserID:        booking.UserID,
		OperatorID:    booking.OperatorID,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
		TravelDate:    booking.TravelDate.Format(models.DateLayout),
		Participants:  booking.Participants,
		TotalPrice:    booking.TotalPrice,
		ChangedBy:     changedBy,
	}
	if err := s.eventBus.PublishJSON(event, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("Failed to publish event")
	}
}
