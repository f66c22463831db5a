package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mfujino/sellbridge/internal/domain/listing"
)

// OfferClient talks to the target-marketplace offer service over JSON REST.
// It implements listing.OfferService.
type OfferClient struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewOfferClient creates a client for the target-marketplace offer service
func NewOfferClient(baseURL, token string) *OfferClient {
	return newOfferClient(&http.Client{Timeout: 30 * time.Second}, baseURL, token)
}

// newOfferClient is the internal constructor; tests inject the http.Client
// and baseURL.
func newOfferClient(client *http.Client, baseURL, token string) *OfferClient {
	return &OfferClient{
		client:  client,
		baseURL: baseURL,
		token:   token,
	}
}

type offerPayload struct {
	OfferID    string `json:"offer_id"`
	SKU        string `json:"sku"`
	Status     string `json:"status"`
	Price      int64  `json:"price"`
	ViewCount  int64  `json:"view_count"`
	WatchCount int64  `json:"watch_count"`
}

type listOffersPayload struct {
	Offers []offerPayload `json:"offers"`
}

// Withdraw takes the offer off the target marketplace
func (c *OfferClient) Withdraw(ctx context.Context, offerID string) error {
	return c.post(ctx, fmt.Sprintf("/sell/offer/%s/withdraw", url.PathEscape(offerID)))
}

// Publish puts the offer (back) on the target marketplace
func (c *OfferClient) Publish(ctx context.Context, offerID string) error {
	return c.post(ctx, fmt.Sprintf("/sell/offer/%s/publish", url.PathEscape(offerID)))
}

// GetOffer fetches the marketplace's current view of one offer
func (c *OfferClient) GetOffer(ctx context.Context, offerID string) (*listing.RemoteOffer, error) {
	var payload offerPayload
	if err := c.get(ctx, fmt.Sprintf("/sell/offer/%s", url.PathEscape(offerID)), &payload); err != nil {
		return nil, err
	}
	return payload.toDomain(), nil
}

// ListOffers fetches the full authoritative offer set for one marketplace family
func (c *OfferClient) ListOffers(ctx context.Context, family string) ([]*listing.RemoteOffer, error) {
	var payload listOffersPayload
	path := "/sell/offer?family=" + url.QueryEscape(family)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}

	offers := make([]*listing.RemoteOffer, 0, len(payload.Offers))
	for _, o := range payload.Offers {
		offers = append(offers, o.toDomain())
	}
	return offers, nil
}

func (p offerPayload) toDomain() *listing.RemoteOffer {
	return &listing.RemoteOffer{
		OfferID:    p.OfferID,
		SKU:        p.SKU,
		Status:     mapOfferStatus(p.Status),
		Price:      p.Price,
		ViewCount:  p.ViewCount,
		WatchCount: p.WatchCount,
	}
}

// mapOfferStatus translates marketplace status vocabulary into ours.
// Unrecognized statuses map to failed so drift is visible, not hidden.
func mapOfferStatus(status string) listing.Status {
	switch status {
	case "PUBLISHED", "ACTIVE":
		return listing.StatusActive
	case "WITHDRAWN", "ENDED":
		return listing.StatusWithdrawn
	case "SOLD":
		return listing.StatusSold
	case "COMPLETED":
		return listing.StatusCompleted
	default:
		return listing.StatusFailed
	}
}

func (c *OfferClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("offer service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("offer service returned %s", resp.Status)
	}
	return nil
}

func (c *OfferClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("offer service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("offer service returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode offer service response: %w", err)
	}
	return nil
}
