package quote

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceCache marks quotes served from the cache fallback rather than a live
// provider. Callers use it together with Timestamp to flag stale data.
const SourceCache = "cache"

// Quote is the normalized price snapshot returned by all providers.
// Price is always positive: adapters translate a zero or missing price into a
// malformed-response failure instead of emitting a quote.
type Quote struct {
	Symbol        string           `json:"symbol"`
	Price         decimal.Decimal  `json:"price"`
	PreviousClose *decimal.Decimal `json:"previous_close,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ChangePercent *decimal.Decimal `json:"change_percent,omitempty"`
	Source        string           `json:"source"`
	Timestamp     time.Time        `json:"timestamp"`
}

// FillChange derives Change and ChangePercent from Price and PreviousClose
// when the provider did not supply them. A missing or zero previous close
// leaves them unset.
func (q *Quote) FillChange() {
	if q.PreviousClose == nil || q.PreviousClose.Sign() <= 0 {
		return
	}
	if q.Change == nil {
		c := q.Price.Sub(*q.PreviousClose)
		q.Change = &c
	}
	if q.ChangePercent == nil {
		pct := q.Change.Div(*q.PreviousClose).Mul(decimal.NewFromInt(100))
		q.ChangePercent = &pct
	}
}

// SearchResult is one symbol-search hit.
type SearchResult struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// Provider is the capability interface implemented by every upstream source.
// Adapters perform the network call and payload normalization only; cache
// writes and health bookkeeping belong to the resolver. Timeouts arrive via
// the context deadline.
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	SearchSymbols(ctx context.Context, query string) ([]SearchResult, error)
}

// NormalizeSymbol upper-cases and trims a ticker so cache keys and provider
// requests agree on one spelling.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
