package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mfujino/sellbridge/internal/domain/pricing"
)

// HTTPRateProvider fetches the current fee/tax/exchange snapshot from the
// rates service. Every call hits the service: the pricing core requires a
// fresh point-in-time snapshot per calculation, so nothing is cached here.
type HTTPRateProvider struct {
	client  *http.Client
	baseURL string

	// fee and tax rates are operator configuration, not market data; only
	// the exchange rate comes from the service
	marginRate     float64
	sellingFeeRate float64
	intlFeeRate    float64
	taxRate        float64
}

// NewHTTPRateProvider creates the production rate provider
func NewHTTPRateProvider(baseURL string, margin, sellingFee, intlFee, tax float64) *HTTPRateProvider {
	return newHTTPRateProvider(&http.Client{Timeout: 10 * time.Second}, baseURL, margin, sellingFee, intlFee, tax)
}

func newHTTPRateProvider(client *http.Client, baseURL string, margin, sellingFee, intlFee, tax float64) *HTTPRateProvider {
	return &HTTPRateProvider{
		client:         client,
		baseURL:        baseURL,
		marginRate:     margin,
		sellingFeeRate: sellingFee,
		intlFeeRate:    intlFee,
		taxRate:        tax,
	}
}

type ratePayload struct {
	// Yen per one target-currency unit
	Rate float64 `json:"rate"`
}

// Rates returns the snapshot for one calculation
func (p *HTTPRateProvider) Rates(ctx context.Context) (pricing.RateConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/rates/JPY", nil)
	if err != nil {
		return pricing.RateConfig{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pricing.RateConfig{}, fmt.Errorf("rate service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pricing.RateConfig{}, fmt.Errorf("rate service returned %s", resp.Status)
	}

	var payload ratePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return pricing.RateConfig{}, fmt.Errorf("failed to decode rate response: %w", err)
	}

	cfg := pricing.RateConfig{
		MarginRate:           p.marginRate,
		SellingFeeRate:       p.sellingFeeRate,
		InternationalFeeRate: p.intlFeeRate,
		TaxRate:              p.taxRate,
		ExchangeRate:         payload.Rate,
	}
	if err := cfg.Validate(); err != nil {
		return pricing.RateConfig{}, fmt.Errorf("rate service produced an unusable snapshot: %w", err)
	}
	return cfg, nil
}

// StaticRateProvider serves a fixed snapshot. Used when the rate service is
// unavailable or in local development.
type StaticRateProvider struct {
	cfg pricing.RateConfig
}

// NewStaticRateProvider creates a provider that always returns cfg
func NewStaticRateProvider(cfg pricing.RateConfig) *StaticRateProvider {
	return &StaticRateProvider{cfg: cfg}
}

// Rates returns the fixed snapshot
func (p *StaticRateProvider) Rates(_ context.Context) (pricing.RateConfig, error) {
	if err := p.cfg.Validate(); err != nil {
		return pricing.RateConfig{}, err
	}
	return p.cfg, nil
}
