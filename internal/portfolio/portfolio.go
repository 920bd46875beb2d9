// Package portfolio owns the user's holdings and applies resolved quotes to
// them. The relationship with the resolver is pull-only: the store calls
// Refresh, the resolver never reaches back in.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceState distinguishes a holding that has never been priced from one
// whose last refresh failed and one carrying a usable value. It replaces nil
// pointers overloaded with several meanings.
type PriceState int

const (
	// PricePending means no refresh has been attempted yet.
	PricePending PriceState = iota
	// PriceFailed means the last refresh exhausted every source.
	PriceFailed
	// PriceLive means the price came from a live provider.
	PriceLive
	// PriceCached means the price came from the cache fallback and may be
	// stale.
	PriceCached
)

func (s PriceState) String() string {
	switch s {
	case PriceFailed:
		return "failed"
	case PriceLive:
		return "live"
	case PriceCached:
		return "cached"
	default:
		return "pending"
	}
}

// Holding is one position. CurrentPrice and PreviousClose are written by
// refreshes; the user supplies the rest.
type Holding struct {
	Symbol        string           `json:"symbol"`
	Quantity      decimal.Decimal  `json:"quantity"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	PreviousClose *decimal.Decimal `json:"previous_close,omitempty"`
	PriceState    PriceState       `json:"price_state"`
	PriceSource   string           `json:"price_source,omitempty"`
	LastUpdated   time.Time        `json:"last_updated"`
}

// MarketValue is quantity times the current price. The bool is false until a
// price is available.
func (h Holding) MarketValue() (decimal.Decimal, bool) {
	if h.CurrentPrice == nil {
		return decimal.Decimal{}, false
	}
	return h.Quantity.Mul(*h.CurrentPrice), true
}

// DayChange is the per-position change since the previous close.
func (h Holding) DayChange() (decimal.Decimal, bool) {
	if h.CurrentPrice == nil || h.PreviousClose == nil {
		return decimal.Decimal{}, false
	}
	return h.CurrentPrice.Sub(*h.PreviousClose).Mul(h.Quantity), true
}

// GainLoss is the unrealized gain against the purchase price.
func (h Holding) GainLoss() (decimal.Decimal, bool) {
	if h.CurrentPrice == nil || h.PurchasePrice == nil {
		return decimal.Decimal{}, false
	}
	return h.CurrentPrice.Sub(*h.PurchasePrice).Mul(h.Quantity), true
}
