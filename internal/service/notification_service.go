package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"marketplace-escrow/config"
	"marketplace-escrow/internal/core/domain"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// notifyRetryIntervals spaces out redelivery attempts after a failed push.
var notifyRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	5 * time.Minute,
}

// transitionPayload is the JSON structure pushed to the notification
// collaborator on every committed ledger transition.
type transitionPayload struct {
	Event     string  `json:"event"`
	PaymentID string  `json:"payment_id"`
	OfferID   string  `json:"offer_id"`
	Status    string  `json:"status"`
	Amount    int64   `json:"amount"`
	Currency  string  `json:"currency"`
	Reason    *string `json:"reason,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// PushNotifier implements ports.Notifier by POSTing signed transition events
// to the notification collaborator. Delivery is fire-and-forget: failures are
// logged and retried in the background, never propagated to the ledger.
type PushNotifier struct {
	http   *resty.Client
	url    string
	secret []byte
	log    zerolog.Logger
}

// NewPushNotifier creates a notifier from configuration. An empty URL
// disables delivery entirely.
func NewPushNotifier(cfg config.NotifierConfig, log zerolog.Logger) *PushNotifier {
	return &PushNotifier{
		http:   resty.New().SetTimeout(cfg.Timeout),
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		log:    log,
	}
}

// PaymentTransition pushes one committed transition asynchronously.
func (n *PushNotifier) PaymentTransition(_ context.Context, p *domain.Payment, event string) {
	if n.url == "" {
		return
	}

	var reason *string
	switch p.Status {
	case domain.PaymentStatusDisputed:
		reason = p.DisputeReason
	case domain.PaymentStatusCancelled:
		reason = p.CancelReason
	}

	payload := transitionPayload{
		Event:     event,
		PaymentID: p.ID.String(),
		OfferID:   p.OfferID.String(),
		Status:    string(p.Status),
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	}

	go n.deliverWithRetries(payload)
}

// deliverWithRetries attempts delivery, backing off between attempts.
func (n *PushNotifier) deliverWithRetries(payload transitionPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Str("payment_id", payload.PaymentID).Msg("notify: failed to marshal payload")
		return
	}
	signature := n.sign(body)

	for attempt := 0; attempt <= len(notifyRetryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(notifyRetryIntervals[attempt-1])
		}

		resp, err := n.http.R().
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Notification-Signature", signature).
			SetBody(body).
			Post(n.url)
		if err != nil {
			n.log.Warn().Err(err).
				Str("payment_id", payload.PaymentID).
				Int("attempt", attempt+1).
				Msg("notify: delivery failed")
			continue
		}
		if resp.IsSuccess() {
			n.log.Debug().
				Str("payment_id", payload.PaymentID).
				Str("event", payload.Event).
				Int("attempt", attempt+1).
				Msg("notify: delivered")
			return
		}

		n.log.Warn().
			Str("payment_id", payload.PaymentID).
			Int("attempt", attempt+1).
			Int("status", resp.StatusCode()).
			Msg("notify: non-2xx response, retrying")
	}

	n.log.Error().Str("payment_id", payload.PaymentID).Msg("notify: all retry attempts exhausted")
}

func (n *PushNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
