package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mfujino/sellbridge/internal/domain/listing"
)

// AuctionClient implements listing.SourceService for the auction-style
// sourcing marketplace. Item state is scraped from the public item pages;
// purchases and sale registration go through the local bidding agent's
// JSON API, since the marketplace itself has no public write API.
type AuctionClient struct {
	client   *http.Client
	pageURL  string
	agentURL string
}

// NewAuctionClient creates the production auction-side client
func NewAuctionClient(pageURL, agentURL string) *AuctionClient {
	return newAuctionClient(&http.Client{Timeout: 30 * time.Second}, pageURL, agentURL)
}

// newAuctionClient is the internal constructor; tests inject the http.Client
// and both base URLs.
func newAuctionClient(client *http.Client, pageURL, agentURL string) *AuctionClient {
	return &AuctionClient{
		client:   client,
		pageURL:  pageURL,
		agentURL: agentURL,
	}
}

// GetItem scrapes one auction page and returns the marketplace's current
// view of the item
func (c *AuctionClient) GetItem(ctx context.Context, sourceID string) (*listing.RemoteSourceItem, error) {
	url := fmt.Sprintf("%s/jp/auction/%s", c.pageURL, sourceID)

	doc, err := fetchHTML(ctx, c.client, url)
	if err != nil {
		return nil, err
	}

	item, err := c.extractItem(doc, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to extract item info: %w", err)
	}
	return item, nil
}

// ListItems scrapes each page in turn. The auction marketplace has no bulk
// endpoint, so the list call is a sequential fan-out over GetItem.
func (c *AuctionClient) ListItems(ctx context.Context, sourceIDs []string) ([]*listing.RemoteSourceItem, error) {
	items := make([]*listing.RemoteSourceItem, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		item, err := c.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch item %s: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Purchase asks the bidding agent to buy the item at its current price
func (c *AuctionClient) Purchase(ctx context.Context, sourceID string) error {
	return c.postAgent(ctx, "/v1/purchases", map[string]string{"auction_id": sourceID})
}

// RegisterSale notifies the agent that the resale completed so it can close
// out the transaction on the sourcing side
func (c *AuctionClient) RegisterSale(ctx context.Context, sku string) error {
	return c.postAgent(ctx, "/v1/sales", map[string]string{"sku": sku})
}

// nextData is the item page's embedded Next.js state. Only the fields the
// reconciler needs are mapped.
type nextData struct {
	Props struct {
		PageProps struct {
			InitialState struct {
				Item struct {
					Detail struct {
						Item struct {
							Price      int64  `json:"price"`
							TaxinPrice int64  `json:"taxinPrice"`
							Status     string `json:"status"`
							EndTime    string `json:"endTime"` // ISO 8601
						} `json:"item"`
					} `json:"detail"`
				} `json:"item"`
			} `json:"initialState"`
		} `json:"pageProps"`
	} `json:"props"`
}

func (c *AuctionClient) extractItem(doc *goquery.Document, sourceID string) (*listing.RemoteSourceItem, error) {
	scriptContent := doc.Find("script#__NEXT_DATA__").Text()
	if scriptContent == "" {
		return nil, fmt.Errorf("next data script not found")
	}

	var data nextData
	if err := json.Unmarshal([]byte(scriptContent), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next data: %w", err)
	}

	itemData := data.Props.PageProps.InitialState.Item.Detail.Item

	item := &listing.RemoteSourceItem{
		SourceID: sourceID,
	}

	if itemData.TaxinPrice > 0 {
		item.Price = itemData.TaxinPrice
	} else {
		item.Price = itemData.Price
	}

	// An open auction can still be bought; anything else cannot. Whether we
	// already bought it is local state and never scraped.
	switch itemData.Status {
	case "open":
		item.Status = listing.SourceStatusPurchasable
	default:
		item.Status = listing.SourceStatusUnpurchasable
	}

	if t, err := time.Parse(time.RFC3339, itemData.EndTime); err == nil {
		item.EndAt = &t
	}

	return item, nil
}

func (c *AuctionClient) postAgent(ctx context.Context, path string, body map[string]string) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.agentURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bidding agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bidding agent returned %s", resp.Status)
	}
	return nil
}
