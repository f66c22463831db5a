package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mfujino/sellbridge/internal/domain/listing"
)

// FreemarketClient implements listing.SourceService for the fixed-price
// sourcing marketplace, which exposes a JSON API.
type FreemarketClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewFreemarketClient creates the production freemarket-side client
func NewFreemarketClient(baseURL, apiKey string) *FreemarketClient {
	return newFreemarketClient(&http.Client{Timeout: 30 * time.Second}, baseURL, apiKey)
}

func newFreemarketClient(client *http.Client, baseURL, apiKey string) *FreemarketClient {
	return &FreemarketClient{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type freemarketItemPayload struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
	Price  int64  `json:"price"`
}

type freemarketListPayload struct {
	Items []freemarketItemPayload `json:"items"`
}

// GetItem fetches one item from the freemarket API
func (c *FreemarketClient) GetItem(ctx context.Context, sourceID string) (*listing.RemoteSourceItem, error) {
	var payload freemarketItemPayload
	if err := c.get(ctx, "/v1/items/"+url.PathEscape(sourceID), &payload); err != nil {
		return nil, err
	}
	return payload.toDomain(), nil
}

// ListItems fetches a batch of items in one call
func (c *FreemarketClient) ListItems(ctx context.Context, sourceIDs []string) ([]*listing.RemoteSourceItem, error) {
	var payload freemarketListPayload
	path := "/v1/items?ids=" + url.QueryEscape(strings.Join(sourceIDs, ","))
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}

	items := make([]*listing.RemoteSourceItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, it.toDomain())
	}
	return items, nil
}

// Purchase buys the item at its listed price
func (c *FreemarketClient) Purchase(ctx context.Context, sourceID string) error {
	return c.post(ctx, "/v1/purchases", map[string]string{"item_id": sourceID})
}

// RegisterSale records the completed resale against the original purchase
func (c *FreemarketClient) RegisterSale(ctx context.Context, sku string) error {
	return c.post(ctx, "/v1/sales", map[string]string{"sku": sku})
}

func (p freemarketItemPayload) toDomain() *listing.RemoteSourceItem {
	item := &listing.RemoteSourceItem{
		SourceID: p.ItemID,
		Price:    p.Price,
	}
	// Only on_sale items are buyable. sold_out/trading mean the item went to
	// some buyer, not necessarily us; whether WE bought it is local state, so
	// the remote view never reports purchased.
	switch p.Status {
	case "on_sale":
		item.Status = listing.SourceStatusPurchasable
	default:
		item.Status = listing.SourceStatusUnpurchasable
	}
	return item
}

func (c *FreemarketClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("freemarket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("freemarket API returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode freemarket response: %w", err)
	}
	return nil
}

func (c *FreemarketClient) post(ctx context.Context, path string, body map[string]string) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("freemarket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("freemarket API returned %s", resp.Status)
	}
	return nil
}
