package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"marketplace-escrow/config"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client implements ports.GatewayClient against the external payment
// processor's REST API. Transient failures (transport errors, 5xx) are
// retried with exponential backoff inside resty; 4xx responses are permanent
// and surface immediately.
type Client struct {
	http          *resty.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	log           zerolog.Logger
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &Client{
		http:          http,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		log:           log,
	}
}

type sessionRequest struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Reference  string `json:"reference"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

type sessionResponse struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	URL           string `json:"url"`
}

type refundRequest struct {
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type payoutRequest struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type payoutResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Message string `json:"message"`
}

// CreateCheckoutSession requests a hosted payment session for the escrow
// amount and returns the session/intent linkage.
func (c *Client) CreateCheckoutSession(ctx context.Context, p *domain.Payment) (*ports.CheckoutSession, error) {
	var out sessionResponse
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sessionRequest{
			Amount:     p.Amount,
			Currency:   p.Currency,
			Reference:  p.ID.String(),
			SuccessURL: c.successURL,
			CancelURL:  c.cancelURL,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/checkout/sessions")
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("create session: %w", err))
	}
	if err := c.classify(resp, apiErr, "create session"); err != nil {
		return nil, err
	}

	return &ports.CheckoutSession{
		SessionID:   out.ID,
		IntentID:    out.PaymentIntent,
		CheckoutURL: out.URL,
	}, nil
}

// IssueRefund asks the processor to refund part or all of a charge.
func (c *Client) IssueRefund(ctx context.Context, intentID string, amount int64, currency, reason string) (string, error) {
	var out refundResponse
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(refundRequest{
			PaymentIntent: intentID,
			Amount:        amount,
			Currency:      currency,
			Reason:        reason,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/refunds")
	if err != nil {
		return "", apperror.ErrGatewayUnavailable(fmt.Errorf("issue refund: %w", err))
	}
	if err := c.classify(resp, apiErr, "issue refund"); err != nil {
		return "", err
	}
	return out.ID, nil
}

// IssuePayout transfers escrowed funds to the provider.
func (c *Client) IssuePayout(ctx context.Context, payeeID uuid.UUID, amount int64, currency string) (string, error) {
	var out payoutResponse
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payoutRequest{
			Destination: payeeID.String(),
			Amount:      amount,
			Currency:    currency,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/payouts")
	if err != nil {
		return "", apperror.ErrGatewayUnavailable(fmt.Errorf("issue payout: %w", err))
	}
	if err := c.classify(resp, apiErr, "issue payout"); err != nil {
		return "", err
	}
	return out.ID, nil
}

// VerifySignature checks the processor-supplied signature header against the
// raw body using HMAC-SHA256 and constant-time comparison.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature for a payload. Exposed for tests and tooling
// that simulate gateway deliveries.
func (c *Client) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// classify maps a non-2xx gateway response onto the error taxonomy.
// resty has already exhausted retries by the time a 5xx reaches here.
func (c *Client) classify(resp *resty.Response, apiErr apiError, op string) error {
	if !resp.IsError() {
		return nil
	}

	err := fmt.Errorf("%s: gateway returned %d: %s", op, resp.StatusCode(), apiErr.Message)
	c.log.Warn().
		Int("status", resp.StatusCode()).
		Str("op", op).
		Str("gateway_message", apiErr.Message).
		Msg("gateway call failed")

	if resp.StatusCode() >= 500 {
		return apperror.ErrGatewayUnavailable(err)
	}
	return apperror.ErrGatewayRejected(err)
}
