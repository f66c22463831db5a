package pricing

import (
	"fmt"
	"math"
)

// Validation errors
var (
	ErrInvalidRate   = fmt.Errorf("fee and tax rates must be within [0, 1) and margin rate must not be negative")
	ErrConfiguration = fmt.Errorf("exchange rate must be positive")
)

// RateConfig is the point-in-time fee/tax/exchange snapshot used for one
// calculation. It is fetched fresh per calculation and never cached.
type RateConfig struct {
	// MarginRate is the target fractional profit over cost basis
	MarginRate float64

	// SellingFeeRate is deducted by the target marketplace from sale proceeds
	SellingFeeRate float64

	// InternationalFeeRate is the cross-border surcharge on sale proceeds
	InternationalFeeRate float64

	// TaxRate is applied on top of the marketplace fees (consumption tax on
	// fees, not on the sale price)
	TaxRate float64

	// ExchangeRate is source-currency units per one target-currency unit
	// (e.g. yen per dollar)
	ExchangeRate float64
}

// Validate rejects rates the calculation cannot meaningfully run with.
// These are local failures and are never retried.
func (c RateConfig) Validate() error {
	for _, rate := range []float64{c.SellingFeeRate, c.InternationalFeeRate, c.TaxRate} {
		if rate < 0 || rate >= 1 {
			return ErrInvalidRate
		}
	}
	if c.MarginRate < 0 {
		return ErrInvalidRate
	}
	if c.deductionRate() >= 1 {
		return ErrInvalidRate
	}
	if c.ExchangeRate <= 0 {
		return ErrConfiguration
	}
	return nil
}

// deductionRate is the fraction of the listing price the seller never sees:
// marketplace fees plus tax charged on those fees.
func (c RateConfig) deductionRate() float64 {
	return (c.SellingFeeRate + c.InternationalFeeRate) * (1 + c.TaxRate)
}

// Breakdown is the derived pricing value object. All amounts are integral in
// their currency's smallest handled unit: target currency in cents, source
// currency in yen. Rounding happens exactly once, when these fields are
// produced; intermediate math stays in float64.
type Breakdown struct {
	// ListingPrice is the target-marketplace price in cents
	ListingPrice int64

	// ListingPriceSource is the listing price converted to yen for display
	ListingPriceSource int64

	// Profit is the final profit in cents: net proceeds minus cost basis
	Profit int64

	// ProfitSource is the final profit in yen
	ProfitSource int64
}

// Quote derives the minimum listing price (in target-currency cents) whose
// net proceeds, after marketplace fees and tax, cover the cost basis plus the
// configured margin. costBasis is source price plus shipping, in yen.
func Quote(cfg RateConfig, costBasis int64) (Breakdown, error) {
	if err := cfg.Validate(); err != nil {
		return Breakdown{}, err
	}

	keep := 1 - cfg.deductionRate()
	requiredYen := float64(costBasis) * (1 + cfg.MarginRate)

	// Minimum price in cents such that price * keep >= required net, rounded
	// up so the margin target is met, never undershot.
	priceCents := int64(math.Ceil(requiredYen * 100 / (keep * cfg.ExchangeRate)))

	return breakdown(cfg, costBasis, priceCents), nil
}

// Reprice recomputes profit for an operator-edited listing price. The price
// is taken as given, not re-derived: profit must always reflect the price
// actually set, not the originally suggested one.
func Reprice(cfg RateConfig, costBasis int64, listingPrice int64) (Breakdown, error) {
	if err := cfg.Validate(); err != nil {
		return Breakdown{}, err
	}
	return breakdown(cfg, costBasis, listingPrice), nil
}

func breakdown(cfg RateConfig, costBasis int64, priceCents int64) Breakdown {
	grossYen := float64(priceCents) * cfg.ExchangeRate / 100
	netYen := grossYen * (1 - cfg.deductionRate())
	profitYen := netYen - float64(costBasis)

	return Breakdown{
		ListingPrice:       priceCents,
		ListingPriceSource: int64(math.Round(grossYen)),
		Profit:             int64(math.Round(profitYen * 100 / cfg.ExchangeRate)),
		ProfitSource:       int64(math.Round(profitYen)),
	}
}
