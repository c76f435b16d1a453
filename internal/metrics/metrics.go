package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "bookings_created_total",
			Help:      "Booking requests admitted.",
		},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "booking_decisions_total",
			Help:      "Operator decisions by outcome.",
		},
		[]string{"decision"},
	)

	admissionRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "admission_rejections_total",
			Help:      "Capacity admissions denied, by gate.",
		},
		[]string{"gate"},
	)

	paymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "payment_events_total",
			Help:      "Payment transitions by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "webhook_deliveries_total",
			Help:      "Inbound gateway events by result.",
		},
		[]string{"result"},
	)

	notifyDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourbook",
			Name:      "notification_deliveries_total",
			Help:      "Notification delivery attempts by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingDecisions,
			admissionRejected,
			paymentEvents,
			webhookDeliveries,
			notifyDeliveries,
		)
	})
}

// IncHTTP counts a handled request for an endpoint/status pair.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

// IncBookingCreated counts an admitted booking request.
func IncBookingCreated() {
	bookingsCreated.Inc()
}

// IncDecision counts an operator decision outcome.
func IncDecision(decision string) {
	bookingDecisions.WithLabelValues(decision).Inc()
}

// IncAdmissionRejected counts a denied admission for a gate
// ("request" or "accept").
func IncAdmissionRejected(gate string) {
	admissionRejected.WithLabelValues(gate).Inc()
}

// IncPayment counts a payment transition.
func IncPayment(eventType, outcome string) {
	paymentEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncWebhook counts an inbound gateway event result
// ("applied", "duplicate", "mismatch", "invalid_signature", "ignored").
func IncWebhook(result string) {
	webhookDeliveries.WithLabelValues(result).Inc()
}

// IncNotifyDelivery counts a delivery worker attempt result.
func IncNotifyDelivery(result string) {
	notifyDeliveries.WithLabelValues(result).Inc()
}
