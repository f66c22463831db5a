package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mfujino/sellbridge/internal/adapters/marketplace"
	"github.com/mfujino/sellbridge/internal/domain/listing"
	"github.com/mfujino/sellbridge/internal/domain/pricing"
)

// Config is the process configuration, read from the environment
type Config struct {
	ListenAddr  string
	DatabaseURL string
	RabbitURL   string
	RedisURL    string

	OfferAPIURL   string
	OfferAPIToken string
	Family        string

	AuctionPageURL   string
	AuctionAgentURL  string
	FreemarketAPIURL string
	FreemarketAPIKey string

	RateAPIURL string

	MarginRate           float64
	SellingFeeRate       float64
	InternationalFeeRate float64
	TaxRate              float64

	// ExchangeRate is the static fallback when RATE_API_URL is unset
	ExchangeRate float64

	ReconcileInterval time.Duration
}

// Load reads and validates the process configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RabbitURL:   os.Getenv("RABBITMQ_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		OfferAPIURL:   os.Getenv("OFFER_API_URL"),
		OfferAPIToken: os.Getenv("OFFER_API_TOKEN"),
		Family:        getenv("MARKETPLACE_FAMILY", "ebay"),

		AuctionPageURL:   os.Getenv("AUCTION_PAGE_URL"),
		AuctionAgentURL:  os.Getenv("AUCTION_AGENT_URL"),
		FreemarketAPIURL: os.Getenv("FREEMARKET_API_URL"),
		FreemarketAPIKey: os.Getenv("FREEMARKET_API_KEY"),

		RateAPIURL: os.Getenv("RATE_API_URL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.RabbitURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is not set")
	}

	var err error
	if cfg.MarginRate, err = getfloat("MARGIN_RATE", 0.3); err != nil {
		return nil, err
	}
	if cfg.SellingFeeRate, err = getfloat("SELLING_FEE_RATE", 0.10); err != nil {
		return nil, err
	}
	if cfg.InternationalFeeRate, err = getfloat("INTERNATIONAL_FEE_RATE", 0.05); err != nil {
		return nil, err
	}
	if cfg.TaxRate, err = getfloat("TAX_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.ExchangeRate, err = getfloat("EXCHANGE_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.RateAPIURL == "" && cfg.ExchangeRate <= 0 {
		return nil, fmt.Errorf("either RATE_API_URL or EXCHANGE_RATE must be set")
	}

	interval := getenv("RECONCILE_INTERVAL", "5m")
	if cfg.ReconcileInterval, err = time.ParseDuration(interval); err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL %q: %w", interval, err)
	}

	return cfg, nil
}

// RateProvider builds the fee/tax/exchange snapshot source: the rate service
// when configured, a static snapshot otherwise
func (c *Config) RateProvider() listing.RateProvider {
	if c.RateAPIURL != "" {
		return marketplace.NewHTTPRateProvider(c.RateAPIURL, c.MarginRate, c.SellingFeeRate, c.InternationalFeeRate, c.TaxRate)
	}
	return marketplace.NewStaticRateProvider(pricing.RateConfig{
		MarginRate:           c.MarginRate,
		SellingFeeRate:       c.SellingFeeRate,
		InternationalFeeRate: c.InternationalFeeRate,
		TaxRate:              c.TaxRate,
		ExchangeRate:         c.ExchangeRate,
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getfloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
