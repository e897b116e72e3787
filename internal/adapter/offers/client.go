package offers

import (
	"context"
	"fmt"

	"marketplace-escrow/config"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Client implements ports.OfferProvider against the marketplace core's
// internal offers API.
type Client struct {
	http *resty.Client
}

// NewClient creates an offers client from configuration.
func NewClient(cfg config.OffersConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout)
	return &Client{http: http}
}

type offerResponse struct {
	ID         uuid.UUID `json:"id"`
	SeekerID   uuid.UUID `json:"seeker_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Price      int64     `json:"price"`
	Currency   string    `json:"currency"`
	Accepted   bool      `json:"accepted"`
	Completed  bool      `json:"completed"`
}

// GetOffer fetches the accepted/completed signal for an offer.
func (c *Client) GetOffer(ctx context.Context, offerID uuid.UUID) (*ports.Offer, error) {
	var out offerResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/offers/%s", offerID))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch offer: %w", err))
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, apperror.InternalError(fmt.Errorf("fetch offer: offers service returned %d", resp.StatusCode()))
	}

	return &ports.Offer{
		ID:         out.ID,
		SeekerID:   out.SeekerID,
		ProviderID: out.ProviderID,
		Price:      out.Price,
		Currency:   out.Currency,
		Accepted:   out.Accepted,
		Completed:  out.Completed,
	}, nil
}
