package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tourbook/internal/domain"
	"tourbook/internal/events"
	"tourbook/internal/gateway"
	"tourbook/internal/metrics"
	"tourbook/internal/models"
)

var errAmountMismatch = errors.New("payment amount does not match booking total")

// PaymentServiceImpl reconciles gateway payment state with booking records.
// Every success path funnels through applySuccess, which relies on a guarded
// database transition so replayed webhooks and concurrent confirmations
// settle on exactly one paid booking.
type PaymentServiceImpl struct {
	repo          domain.Repository
	gateway       domain.PaymentGateway
	notifier      domain.Notifier
	eventBus      domain.EventPublisher
	currency      string
	webhookSecret string
	tolerance     time.Duration
	logger        *zerolog.Logger
}

func NewPaymentService(
	repo domain.Repository,
	gw domain.PaymentGateway,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	currency string,
	webhookSecret string,
	tolerance time.Duration,
	logger *zerolog.Logger,
) *PaymentServiceImpl {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &PaymentServiceImpl{
		repo:          repo,
		gateway:       gw,
		notifier:      notifier,
		eventBus:      eventBus,
		currency:      currency,
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
		logger:        logger,
	}
}

// CreateIntent creates a payment intent for an accepted booking, or returns
// the existing open intent so retried checkouts do not pile up charges.
func (s *PaymentServiceImpl) CreateIntent(ctx context.Context, actor models.Actor, bookingID string) (*models.PaymentIntent, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, actionPay, booking); err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if booking.Status != models.StatusAccepted {
		return nil, domain.ErrNotAccepted
	}

	if booking.PaymentIntentRef != "" {
		intent, err := s.gateway.RetrieveIntent(ctx, booking.PaymentIntentRef)
		if err != nil {
			return nil, err
		}
		if intent.Open() {
			return intent, nil
		}
		if intent.Status == models.IntentSucceeded {
			// Gateway says paid but the booking record lagged behind,
			// likely a webhook still in flight. Reconcile now.
			if _, err := s.applySuccess(ctx, booking, intent.Ref, intent.AmountReceived); err != nil {
				return nil, err
			}
			return nil, domain.ErrAlreadyPaid
		}
		// Canceled intent, fall through and create a fresh one.
	}

	intent, err := s.gateway.CreateIntent(ctx, booking.TotalPrice, s.currency, map[string]string{
		"booking_id": booking.ID,
		"tour_id":    booking.TourID,
		"user_id":    booking.UserID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetPaymentIntentRef(ctx, booking.ID, intent.Ref); err != nil {
		return nil, err
	}

	metrics.IncPayment("intent", "created")
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("intent_ref", intent.Ref).
		Int64("amount", booking.TotalPrice).
		Msg("Payment intent created")

	return intent, nil
}

// Confirm is the client-driven reconciliation path: the traveler reports the
// checkout finished and we read the authoritative state from the gateway.
func (s *PaymentServiceImpl) Confirm(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, actionPay, booking); err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return booking, nil
	}
	if booking.PaymentIntentRef == "" {
		return nil, fmt.Errorf("%w: booking has no payment intent", domain.ErrValidation)
	}

	intent, err := s.gateway.RetrieveIntent(ctx, booking.PaymentIntentRef)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case models.IntentSucceeded:
		if _, err := s.applySuccess(ctx, booking, intent.Ref, intent.AmountReceived); err != nil {
			return nil, err
		}
	case models.IntentRequiresPaymentMethod:
		fresh, err := s.repo.MarkPaymentFailed(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if fresh {
			s.afterFailure(ctx, booking, "confirm")
		}
	}

	return s.repo.GetBooking(ctx, bookingID)
}

// HandleGatewayEvent verifies and applies a webhook delivery. Semantic
// no-ops (replays, events for already settled bookings) return nil so the
// gateway stops redelivering; only signature failures surface as errors.
func (s *PaymentServiceImpl) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := gateway.ParseEvent(payload, signature, s.webhookSecret, s.tolerance)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			metrics.IncWebhook("invalid_signature")
		}
		return err
	}

	if event.BookingID == "" {
		metrics.IncWebhook("ignored")
		s.logger.Debug().Str("type", event.Type).Msg("Webhook event without booking reference")
		return nil
	}

	log := s.logger.With().
		Str("type", event.Type).
		Str("booking_id", event.BookingID).
		Str("intent_ref", event.IntentRef).
		Logger()

	switch event.Type {
	case gateway.EventIntentSucceeded:
		booking, err := s.repo.GetBooking(ctx, event.BookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				metrics.IncWebhook("ignored")
				log.Warn().Msg("Webhook for unknown booking")
				return nil
			}
			return err
		}
		fresh, err := s.applySuccess(ctx, booking, event.IntentRef, event.AmountReceived)
		switch {
		case errors.Is(err, errAmountMismatch):
			metrics.IncWebhook("mismatch")
			log.Error().
				Int64("received", event.AmountReceived).
				Int64("expected", booking.TotalPrice).
				Msg("Webhook amount mismatch, not marking paid")
			return nil
		case errors.Is(err, domain.ErrAlreadyProcessed):
			metrics.IncWebhook("ignored")
			log.Warn().Str("status", booking.Status).Msg("Payment succeeded for settled booking")
			return nil
		case err != nil:
			return err
		case fresh:
			metrics.IncWebhook("applied")
		default:
			metrics.IncWebhook("duplicate")
			log.Debug().Msg("Webhook replay, booking already paid")
		}
		return nil

	case gateway.EventIntentFailed:
		booking, err := s.repo.GetBooking(ctx, event.BookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				metrics.IncWebhook("ignored")
				return nil
			}
			return err
		}
		fresh, err := s.repo.MarkPaymentFailed(ctx, booking.ID)
		if err != nil {
			return err
		}
		if fresh {
			metrics.IncWebhook("applied")
			s.afterFailure(ctx, booking, "webhook")
		} else {
			metrics.IncWebhook("duplicate")
		}
		return nil

	default:
		metrics.IncWebhook("ignored")
		return nil
	}
}

// Refund reverses a paid booking. Already refunded bookings are a no-op so
// retried refund requests stay safe.
func (s *PaymentServiceImpl) Refund(ctx context.Context, actor models.Actor, bookingID, reason string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, actionRefund, booking); err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentRefunded {
		return booking, nil
	}
	if booking.PaymentStatus != models.PaymentPaid || booking.PaymentIntentRef == "" {
		return nil, domain.ErrNotPaid
	}

	refundID, err := s.gateway.Refund(ctx, booking.PaymentIntentRef, reason)
	if err != nil {
		return nil, err
	}

	fresh, err := s.repo.MarkRefunded(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if fresh {
		metrics.IncPayment("refund", "applied")
		s.logger.Info().
			Str("booking_id", booking.ID).
			Str("refund_id", refundID).
			Str("refunded_by", actor.ID).
			Msg("Booking refunded")
		s.notify(ctx, updated.UserID, "Refund issued",
			fmt.Sprintf("Your payment for the booking on %s has been refunded", updated.TravelDate.Format(models.DateLayout)),
			models.CategoryPayment, map[string]string{"booking_id": updated.ID})
		s.publishPayment(events.EventPaymentRefunded, updated, actor.ID)
	}

	return updated, nil
}

// Status reports the payment state for a booking. Paid is answered from the
// local record; otherwise the gateway is consulted, falling back to the local
// state when it is unreachable.
func (s *PaymentServiceImpl) Status(ctx context.Context, actor models.Actor, bookingID string) (string, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if err := authorize(actor, actionView, booking); err != nil {
		return "", err
	}

	if booking.PaymentStatus == models.PaymentPaid || booking.PaymentStatus == models.PaymentRefunded {
		return booking.PaymentStatus, nil
	}
	if booking.PaymentIntentRef == "" {
		return booking.PaymentStatus, nil
	}

	intent, err := s.gateway.RetrieveIntent(ctx, booking.PaymentIntentRef)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("booking_id", booking.ID).
			Msg("Gateway unreachable for payment status, serving local state")
		return booking.PaymentStatus, nil
	}
	return intent.Status, nil
}

// applySuccess verifies the received amount and performs the guarded
// paid transition. Returns false with a nil error when the booking was
// already paid, which callers treat as an idempotent replay.
func (s *PaymentServiceImpl) applySuccess(ctx context.Context, booking *models.Booking, intentRef string, amountReceived int64) (bool, error) {
	if amountReceived != booking.TotalPrice {
		return false, fmt.Errorf("%w: received %d, expected %d", errAmountMismatch, amountReceived, booking.TotalPrice)
	}

	fresh, err := s.repo.MarkPaymentSucceeded(ctx, booking.ID, intentRef, amountReceived)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	metrics.IncPayment("charge", "succeeded")
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("intent_ref", intentRef).
		Int64("amount", amountReceived).
		Msg("Payment succeeded")

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		updated = booking
	}

	s.notify(ctx, updated.UserID, "Payment received",
		fmt.Sprintf("Your booking for %s is confirmed and paid", updated.TravelDate.Format(models.DateLayout)),
		models.CategoryPayment, map[string]string{"booking_id": updated.ID})
	s.notify(ctx, updated.OperatorID, "Booking paid",
		fmt.Sprintf("The booking for %s has been paid in full", updated.TravelDate.Format(models.DateLayout)),
		models.CategoryPayment, map[string]string{"booking_id": updated.ID})
	s.publishPayment(events.EventPaymentSucceeded, updated, "gateway")

	return true, nil
}

func (s *PaymentServiceImpl) afterFailure(ctx context.Context, booking *models.Booking, source string) {
	metrics.IncPayment("charge", "failed")
	s.logger.Warn().
		Str("booking_id", booking.ID).
		Str("source", source).
		Msg("Payment failed")
	s.notify(ctx, booking.UserID, "Payment failed",
		"Your payment did not go through. Please try again with a different payment method",
		models.CategoryPayment, map[string]string{"booking_id": booking.ID})
	s.publishPayment(events.EventPaymentFailed, booking, "gateway")
}

func (s *PaymentServiceImpl) notify(ctx context.Context, userID, title, body, category string, metadata map[string]string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, title, body, category, metadata)
}

func (s *PaymentServiceImpl) publishPayment(event string, booking *models.Booking, changedBy string) {
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
