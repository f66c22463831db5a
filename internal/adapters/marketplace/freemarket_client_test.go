package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfujino/sellbridge/internal/domain/listing"
)

func TestFreemarketClient_GetItem(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/items/m55", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"item_id":"m55","status":"on_sale","price":8400}`))
	}))
	defer server.Close()

	client := newFreemarketClient(server.Client(), server.URL, "test-key")

	item, err := client.GetItem(context.Background(), "m55")
	require.NoError(t, err)
	assert.Equal(t, "m55", item.SourceID)
	assert.Equal(t, listing.SourceStatusPurchasable, item.Status)
	assert.Equal(t, int64(8400), item.Price)
}

func TestFreemarketClient_ListItems_MapsStatuses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m1,m2,m3", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"items":[
			{"item_id":"m1","status":"on_sale","price":100},
			{"item_id":"m2","status":"sold_out","price":200},
			{"item_id":"m3","status":"stop","price":300}
		]}`))
	}))
	defer server.Close()

	client := newFreemarketClient(server.Client(), server.URL, "test-key")

	items, err := client.ListItems(context.Background(), []string{"m1", "m2", "m3"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, listing.SourceStatusPurchasable, items[0].Status)
	assert.Equal(t, listing.SourceStatusUnpurchasable, items[1].Status)
	assert.Equal(t, listing.SourceStatusUnpurchasable, items[2].Status)
}

// An item that sold to another buyer must never come back as relistable
// inventory: sold_out maps to unpurchasable, which blocks the freemarket
// relist precondition.
func TestFreemarketClient_SoldToAnotherBuyerBlocksRelist(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"item_id":"m55","status":"sold_out","price":8400}`))
	}))
	defer server.Close()

	client := newFreemarketClient(server.Client(), server.URL, "test-key")

	item, err := client.GetItem(context.Background(), "m55")
	require.NoError(t, err)
	require.Equal(t, listing.SourceStatusUnpurchasable, item.Status)

	_, err = listing.Validate(listing.VariantFreemarket, listing.StatusWithdrawn, item.Status, listing.ActionRelist)
	var transitionErr *listing.TransitionError
	require.ErrorAs(t, err, &transitionErr)
}

func TestFreemarketClient_Purchase_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newFreemarketClient(server.Client(), server.URL, "test-key")

	err := client.Purchase(context.Background(), "m55")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
