package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

// SignatureHeader carries the gateway webhook signature.
const SignatureHeader = "X-Gateway-Signature"

const maxBodySize = 64 << 10

func actorFrom(r *http.Request) models.Actor {
	role := strings.TrimSpace(r.Header.Get("X-User-Role"))
	if role == "" {
		role = models.RoleTraveler
	}
	return models.Actor{
		ID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
		Role: role,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		TourID       string `json:"tour_id"`
		TravelDate   string `json:"travel_date"`
		Participants int    `json:"participants"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	travelDate, err := time.Parse(models.DateLayout, body.TravelDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid travel_date; expected YYYY-MM-DD")
		return
	}

	booking, err := s.bookings.Request(r.Context(), actorFrom(r), body.TourID, travelDate, body.Participants)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")

	switch {
	case rest == "my":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		bookings, err := s.bookings.ListForUser(r.Context(), actorFrom(r))
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})

	case rest == "operator":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		bookings, err := s.bookings.ListForOperator(r.Context(), actorFrom(r))
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})

	case strings.HasSuffix(rest, "/status"):
		s.handleBookingDecision(w, r, strings.TrimSuffix(rest, "/status"))

	case strings.HasSuffix(rest, "/cancel"):
		s.handleBookingCancel(w, r, strings.TrimSuffix(rest, "/cancel"))

	default:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if rest == "" || strings.Contains(rest, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		booking, err := s.bookings.Get(r.Context(), actorFrom(r), rest)
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, booking)
	}
}

func (s *HTTPServer) handleBookingDecision(w http.ResponseWriter, r *http.Request, bookingID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	booking, err := s.bookings.Decide(r.Context(), actorFrom(r), bookingID, body.Status)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingCancel(w http.ResponseWriter, r *http.Request, bookingID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	booking, err := s.bookings.Cancel(r.Context(), actorFrom(r), bookingID)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		BookingID string `json:"booking_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	intent, err := s.payments.CreateIntent(r.Context(), actorFrom(r), body.BookingID)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *HTTPServer) handlePaymentByBooking(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/payments/")

	switch {
	case strings.HasSuffix(rest, "/confirm"):
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		bookingID := strings.TrimSuffix(rest, "/confirm")
		booking, err := s.payments.Confirm(r.Context(), actorFrom(r), bookingID)
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, booking)

	case strings.HasSuffix(rest, "/status"):
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		bookingID := strings.TrimSuffix(rest, "/status")
		status, err := s.payments.Status(r.Context(), actorFrom(r), bookingID)
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"payment_status": status})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		BookingID string `json:"booking_id"`
		Reason    string `json:"reason"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	booking, err := s.payments.Refund(r.Context(), actorFrom(r), body.BookingID, body.Reason)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = s.payments.HandleGatewayEvent(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *HTTPServer) handleTourAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tours/")
	if !strings.HasSuffix(rest, "/availability") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	tourID := strings.TrimSuffix(rest, "/availability")
	if tourID == "" || strings.Contains(tourID, "/") {
		writeError(w, http.StatusBadRequest, "tour id is required")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	available, err := s.bookings.Availability(r.Context(), tourID, date)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tour_id":   tourID,
		"date":      dateStr,
		"available": available,
	})
}

func (s *HTTPServer) handleReviewEligibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	tourID := strings.TrimSpace(r.URL.Query().Get("tour_id"))
	if tourID == "" {
		writeError(w, http.StatusBadRequest, "tour_id is required")
		return
	}

	eligible, err := s.bookings.IsEligibleToReview(r.Context(), actor.ID, tourID)
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"eligible": eligible})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
