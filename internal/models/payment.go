package models

// Payment intent statuses as reported by the gateway.
const (
	IntentSucceeded             = "succeeded"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentProcessing            = "processing"
	IntentCanceled              = "canceled"
)

// PaymentIntent is the gateway's handle for an in-progress charge attempt.
type PaymentIntent struct {
	Ref            string `json:"ref"`
	ClientSecret   string `json:"client_secret,omitempty"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	Currency       string `json:"currency"`
}

// Open reports whether the intent can still be confirmed by the client.
func (p *PaymentIntent) Open() bool {
	switch p.Status {
	case IntentSucceeded, IntentCanceled:
		return false
	}
	return true
}

// Actor identifies the caller of a mutating operation, as authenticated by
// the upstream gateway.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
