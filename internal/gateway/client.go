// Package gateway implements the payment-provider client and inbound event
// verification. The provider speaks a Stripe-shaped REST API: form-encoded
// requests, bearer auth, JSON responses, and HMAC-signed webhook payloads.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tourbook/internal/config"
	"tourbook/internal/domain"
	"tourbook/internal/models"

	"github.com/rs/zerolog"
)

const refundReasonDefault = "requested_by_customer"

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewClient(cfg config.PaymentConfig, logger *zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL:    base,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether the client can reach a gateway at all.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.secretKey != ""
}

type intentResponse struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"client_secret"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	Currency       string `json:"currency"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent opens a charge attempt for the amount in minor units.
// Metadata keys are attached for webhook correlation.
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var resp intentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &resp); err != nil {
		return nil, err
	}
	return intentFromResponse(&resp), nil
}

// RetrieveIntent fetches the live intent state for reconciliation after a
// missed webhook.
func (c *Client) RetrieveIntent(ctx context.Context, ref string) (*models.PaymentIntent, error) {
	var resp intentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(ref), nil, &resp); err != nil {
		return nil, err
	}
	return intentFromResponse(&resp), nil
}

// Refund issues a refund against the intent. A gateway report that the
// charge is already refunded is treated as done, not as an error.
func (c *Client) Refund(ctx context.Context, intentRef, reason string) (string, error) {
	if reason == "" {
		reason = refundReasonDefault
	}

	form := url.Values{}
	form.Set("payment_intent", intentRef)
	form.Set("reason", reason)

	var resp refundResponse
	err := c.do(ctx, http.MethodPost, "/v1/refunds", form, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "charge_already_refunded" {
			c.logger.Info().Str("intent_ref", intentRef).Msg("gateway reports charge already refunded")
			return "", nil
		}
		return "", err
	}
	return resp.ID, nil
}

// APIError is a structured rejection from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if !c.Configured() {
		return domain.ErrGatewayUnavailable
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("gateway request failed")
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Error.Code, Message: apiErr.Error.Message}
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func intentFromResponse(resp *intentResponse) *models.PaymentIntent {
	return &models.PaymentIntent{
		Ref:            resp.ID,
		ClientSecret:   resp.ClientSecret,
		Status:         resp.Status,
		Amount:         resp.Amount,
		AmountReceived: resp.AmountReceived,
		Currency:       resp.Currency,
	}
}
