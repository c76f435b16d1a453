package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tourbook/internal/database"
	"tourbook/internal/domain"
	"tourbook/internal/events"
	"tourbook/internal/gateway"
	"tourbook/internal/models"
)

const testWebhookSecret = "whsec_test"

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}
func (m *mockGateway) RetrieveIntent(ctx context.Context, ref string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}
func (m *mockGateway) Refund(ctx context.Context, intentRef, reason string) (string, error) {
	args := m.Called(ctx, intentRef, reason)
	return args.String(0), args.Error(1)
}

type paymentEnv struct {
	db  *database.DB
	gw  *mockGateway
	svc *PaymentServiceImpl
}

func newPaymentEnv(t *testing.T) *paymentEnv {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "payments.db")
	db, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw := new(mockGateway)
	svc := NewPaymentService(db, gw, &recordingNotifier{}, events.NewEventBus(),
		"usd", testWebhookSecret, 5*time.Minute, &logger)
	return &paymentEnv{db: db, gw: gw, svc: svc}
}

func (e *paymentEnv) seedBooking(t *testing.T, status string, totalPrice int64) *models.Booking {
	t.Helper()
	ctx := context.Background()
	date := time.Now().UTC().AddDate(0, 0, 14)
	tour := &models.Tour{
		ID:             uuid.NewString(),
		Title:          "River Rafting",
		Price:          totalPrice / 2,
		MaxGroupSize:   10,
		AvailableDates: []time.Time{date},
		OperatorID:     "op-1",
		IsActive:       true,
		ApprovalStatus: models.ApprovalApproved,
	}
	require.NoError(t, e.db.CreateTour(ctx, tour))

	booking := &models.Booking{
		ID:             uuid.NewString(),
		TourID:         tour.ID,
		UserID:         "user-1",
		OperatorID:     "op-1",
		TravelDate:     date,
		Participants:   2,
		PriceAtBooking: totalPrice / 2,
		TotalPrice:     totalPrice,
		Status:         models.StatusPending,
		PaymentStatus:  models.PaymentUnpaid,
	}
	require.NoError(t, e.db.CreateBookingWithCapacity(ctx, booking, tour.MaxGroupSize))
	if status != models.StatusPending {
		require.NoError(t, e.db.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version,
			[]string{models.StatusPending}, status))
		got, err := e.db.GetBooking(ctx, booking.ID)
		require.NoError(t, err)
		return got
	}
	return booking
}

func signedSucceededEvent(t *testing.T, bookingID, intentRef string, amount int64) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"type": gateway.EventIntentSucceeded,
		"data": map[string]any{
			"object": map[string]any{
				"id":              intentRef,
				"amount_received": amount,
				"metadata":        map[string]string{"booking_id": bookingID},
			},
		},
	})
	require.NoError(t, err)
	return payload, gateway.SignPayload(payload, testWebhookSecret, time.Now())
}

func TestCreateIntentRequiresAcceptedBooking(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()
	traveler := models.Actor{ID: "user-1", Role: models.RoleTraveler}

	pending := env.seedBooking(t, models.StatusPending, 5000)
	_, err := env.svc.CreateIntent(ctx, traveler, pending.ID)
	assert.ErrorIs(t, err, domain.ErrNotAccepted)

	accepted := env.seedBooking(t, models.StatusAccepted, 5000)
	env.gw.On("CreateIntent", mock.Anything, int64(5000), "usd", mock.Anything).
		Return(&models.PaymentIntent{Ref: "pi_1", ClientSecret: "cs_1", Status: models.IntentRequiresPaymentMethod, Amount: 5000}, nil)

	intent, err := env.svc.CreateIntent(ctx, traveler, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.Ref)

	got, err := env.db.GetBooking(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", got.PaymentIntentRef)
}

func TestCreateIntentReturnsExistingOpenIntent(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()
	traveler := models.Actor{ID: "user-1", Role: models.RoleTraveler}

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	require.NoError(t, env.db.SetPaymentIntentRef(ctx, booking.ID, "pi_open"))

	env.gw.On("RetrieveIntent", mock.Anything, "pi_open").
		Return(&models.PaymentIntent{Ref: "pi_open", Status: models.IntentProcessing, Amount: 5000}, nil)

	intent, err := env.svc.CreateIntent(ctx, traveler, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_open", intent.Ref)
	env.gw.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateIntentDeniedForOtherUsers(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	_, err := env.svc.CreateIntent(ctx, models.Actor{ID: "user-2", Role: models.RoleTraveler}, booking.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestHandleGatewayEventReplayIsIdempotent(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	payload, sig := signedSucceededEvent(t, booking.ID, "pi_1", 5000)

	require.NoError(t, env.svc.HandleGatewayEvent(ctx, payload, sig))

	got, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, int64(5000), got.AmountPaid)
	versionAfterFirst := got.Version

	// Redelivery acknowledges without a second transition.
	require.NoError(t, env.svc.HandleGatewayEvent(ctx, payload, sig))

	got, err = env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, versionAfterFirst, got.Version)
}

func TestHandleGatewayEventAutoAcceptsPending(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusPending, 5000)
	payload, sig := signedSucceededEvent(t, booking.ID, "pi_1", 5000)

	require.NoError(t, env.svc.HandleGatewayEvent(ctx, payload, sig))

	got, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestHandleGatewayEventRejectsBadSignature(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	payload, _ := signedSucceededEvent(t, booking.ID, "pi_1", 5000)

	err := env.svc.HandleGatewayEvent(ctx, payload, gateway.SignPayload(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	got, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentUnpaid, got.PaymentStatus)
}

func TestHandleGatewayEventAmountMismatch(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	payload, sig := signedSucceededEvent(t, booking.ID, "pi_1", 100)

	// Mismatch is acknowledged so the gateway stops retrying, but the
	// booking must not be marked paid.
	require.NoError(t, env.svc.HandleGatewayEvent(ctx, payload, sig))

	got, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentUnpaid, got.PaymentStatus)
	assert.Zero(t, got.AmountPaid)
}

func TestHandleGatewayEventPaymentFailed(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	payload, err := json.Marshal(map[string]any{
		"type": gateway.EventIntentFailed,
		"data": map[string]any{
			"object": map[string]any{
				"id":       "pi_1",
				"metadata": map[string]string{"booking_id": booking.ID},
			},
		},
	})
	require.NoError(t, err)
	sig := gateway.SignPayload(payload, testWebhookSecret, time.Now())

	require.NoError(t, env.svc.HandleGatewayEvent(ctx, payload, sig))

	got, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, models.StatusAccepted, got.Status)
}

func TestConfirmAppliesGatewayState(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()
	traveler := models.Actor{ID: "user-1", Role: models.RoleTraveler}

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	require.NoError(t, env.db.SetPaymentIntentRef(ctx, booking.ID, "pi_1"))

	env.gw.On("RetrieveIntent", mock.Anything, "pi_1").
		Return(&models.PaymentIntent{Ref: "pi_1", Status: models.IntentSucceeded, Amount: 5000, AmountReceived: 5000}, nil)

	got, err := env.svc.Confirm(ctx, traveler, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	// Already paid: answered locally, no second gateway call.
	env.gw.ExpectedCalls = nil
	got, err = env.svc.Confirm(ctx, traveler, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestRefundIsIdempotent(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	_, err := env.svc.Refund(ctx, admin, booking.ID, "requested_by_customer")
	assert.ErrorIs(t, err, domain.ErrNotPaid)

	fresh, err := env.db.MarkPaymentSucceeded(ctx, booking.ID, "pi_1", 5000)
	require.NoError(t, err)
	require.True(t, fresh)

	env.gw.On("Refund", mock.Anything, "pi_1", "requested_by_customer").Return("re_1", nil).Once()

	got, err := env.svc.Refund(ctx, admin, booking.ID, "requested_by_customer")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, models.StatusCancelled, got.Status)

	// Second refund returns the settled booking without touching the gateway.
	got, err = env.svc.Refund(ctx, admin, booking.ID, "requested_by_customer")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	env.gw.AssertNumberOfCalls(t, "Refund", 1)
}

func TestRefundDeniedForTraveler(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	_, err := env.svc.Refund(ctx, models.Actor{ID: "user-1", Role: models.RoleTraveler}, booking.ID, "")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestStatusFastPathSkipsGateway(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()
	traveler := models.Actor{ID: "user-1", Role: models.RoleTraveler}

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	fresh, err := env.db.MarkPaymentSucceeded(ctx, booking.ID, "pi_1", 5000)
	require.NoError(t, err)
	require.True(t, fresh)

	status, err := env.svc.Status(ctx, traveler, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, status)
	env.gw.AssertNotCalled(t, "RetrieveIntent", mock.Anything, mock.Anything)
}

func TestStatusFallsBackWhenGatewayDown(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()
	traveler := models.Actor{ID: "user-1", Role: models.RoleTraveler}

	booking := env.seedBooking(t, models.StatusAccepted, 5000)
	require.NoError(t, env.db.SetPaymentIntentRef(ctx, booking.ID, "pi_1"))

	env.gw.On("RetrieveIntent", mock.Anything, "pi_1").Return(nil, domain.ErrGatewayUnavailable)

	status, err := env.svc.Status(ctx, traveler, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentUnpaid, status)
}
