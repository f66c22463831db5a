package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfujino/sellbridge/internal/domain/pricing"
)

func TestHTTPRateProvider_Rates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rates/JPY", r.URL.Path)
		_, _ = w.Write([]byte(`{"rate":150.0}`))
	}))
	defer server.Close()

	provider := newHTTPRateProvider(server.Client(), server.URL, 0.3, 0.10, 0.05, 0)

	cfg, err := provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.0, cfg.ExchangeRate)
	assert.Equal(t, 0.3, cfg.MarginRate)
	assert.Equal(t, 0.10, cfg.SellingFeeRate)
	assert.Equal(t, 0.05, cfg.InternationalFeeRate)
}

func TestHTTPRateProvider_RejectsUnusableSnapshot(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rate":0}`))
	}))
	defer server.Close()

	provider := newHTTPRateProvider(server.Client(), server.URL, 0.3, 0.10, 0.05, 0)

	_, err := provider.Rates(context.Background())
	require.ErrorIs(t, err, pricing.ErrConfiguration)
}

func TestStaticRateProvider(t *testing.T) {
	t.Parallel()

	provider := NewStaticRateProvider(pricing.RateConfig{
		MarginRate:           0.3,
		SellingFeeRate:       0.10,
		InternationalFeeRate: 0.05,
		ExchangeRate:         150,
	})

	cfg, err := provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.0, cfg.ExchangeRate)

	bad := NewStaticRateProvider(pricing.RateConfig{SellingFeeRate: 1.5, ExchangeRate: 150})
	_, err = bad.Rates(context.Background())
	require.ErrorIs(t, err, pricing.ErrInvalidRate)
}
