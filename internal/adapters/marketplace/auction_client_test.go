package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfujino/sellbridge/internal/domain/listing"
)

func auctionPage(status string, price int64, endTime string) string {
	return fmt.Sprintf(`<html><head>
		<script id="__NEXT_DATA__">{"props":{"pageProps":{"initialState":{"item":{"detail":{"item":{
			"price":%d,"taxinPrice":%d,"status":%q,"endTime":%q
		}}}}}}}</script>
	</head><body></body></html>`, price, price, status, endTime)
}

func TestAuctionClient_GetItem_OpenAuction(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jp/auction/a100", r.URL.Path)
		_, _ = io.WriteString(w, auctionPage("open", 13000, "2026-09-03T21:00:00+09:00"))
	}))
	defer server.Close()

	client := newAuctionClient(server.Client(), server.URL, server.URL)

	item, err := client.GetItem(context.Background(), "a100")
	require.NoError(t, err)
	assert.Equal(t, "a100", item.SourceID)
	assert.Equal(t, listing.SourceStatusPurchasable, item.Status)
	assert.Equal(t, int64(13000), item.Price)
	require.NotNil(t, item.EndAt)
	assert.Equal(t, 2026, item.EndAt.Year())
}

func TestAuctionClient_GetItem_ClosedAuctionIsUnpurchasable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, auctionPage("closed", 13000, ""))
	}))
	defer server.Close()

	client := newAuctionClient(server.Client(), server.URL, server.URL)

	item, err := client.GetItem(context.Background(), "a100")
	require.NoError(t, err)
	assert.Equal(t, listing.SourceStatusUnpurchasable, item.Status)
	assert.Nil(t, item.EndAt)
}

func TestAuctionClient_GetItem_MissingNextData(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body>maintenance</body></html>")
	}))
	defer server.Close()

	client := newAuctionClient(server.Client(), server.URL, server.URL)

	_, err := client.GetItem(context.Background(), "a100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "next data script not found")
}

func TestAuctionClient_ListItems_FansOutPerItem(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, auctionPage("open", 500, ""))
	}))
	defer server.Close()

	client := newAuctionClient(server.Client(), server.URL, server.URL)

	items, err := client.ListItems(context.Background(), []string{"a1", "a2", "a3"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a2", items[1].SourceID)
}

func TestAuctionClient_Purchase_CallsAgent(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/purchases", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newAuctionClient(server.Client(), server.URL, server.URL)

	require.NoError(t, client.Purchase(context.Background(), "a100"))
	assert.Equal(t, map[string]string{"auction_id": "a100"}, gotBody)
}

func TestAuctionClient_RegisterSale_AgentFailureSurfaces(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := newAuctionClient(server.Client(), server.URL, server.URL)

	err := client.RegisterSale(context.Background(), "SKU-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}
