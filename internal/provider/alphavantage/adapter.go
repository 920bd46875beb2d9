// Package alphavantage adapts the Alpha Vantage REST API to the shared
// provider interface. It is the highest-priority source: fast, real time,
// but heavily metered on the free tier.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deepticker/internal/quote"
)

// Name is the provider id used for health tracking, cache tagging and
// credential lookup.
const Name = "alphavantage"

// Adapter implements quote.Provider on top of Client.
type Adapter struct {
	name   string
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{name: Name, client: client}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Quote{}, quote.NewError(a.name, quote.KindInvalidRequest, errors.New("empty symbol"))
	}

	gq, err := a.client.GetGlobalQuote(ctx, symbol)
	if err != nil {
		return quote.Quote{}, a.classify(err)
	}
	if gq == nil {
		return quote.Quote{}, quote.NewError(a.name, quote.KindNotFound, fmt.Errorf("symbol %s unknown", symbol))
	}

	price, err := decimal.NewFromString(strings.TrimSpace(gq.Price))
	if err != nil || price.Sign() <= 0 {
		// A zero or unparseable price is "no data", never a real quote.
		return quote.Quote{}, quote.NewError(a.name, quote.KindMalformedResponse, fmt.Errorf("unusable price %q", gq.Price))
	}

	q := quote.Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    a.name,
		Timestamp: time.Now().UTC(),
	}
	if prev, err := decimal.NewFromString(strings.TrimSpace(gq.PreviousClose)); err == nil && prev.Sign() > 0 {
		q.PreviousClose = &prev
	}
	if ch, err := decimal.NewFromString(strings.TrimSpace(gq.Change)); err == nil {
		q.Change = &ch
	}
	if pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(gq.ChangePercent), "%")); err == nil {
		q.ChangePercent = &pct
	}
	q.FillChange()
	return q, nil
}

func (a *Adapter) SearchSymbols(ctx context.Context, query string) ([]quote.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, quote.NewError(a.name, quote.KindInvalidRequest, errors.New("empty query"))
	}

	matches, err := a.client.SymbolSearch(ctx, query)
	if err != nil {
		return nil, a.classify(err)
	}
	out := make([]quote.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Symbol == "" {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.Symbol
		}
		out = append(out, quote.SearchResult{Symbol: quote.NormalizeSymbol(m.Symbol), DisplayName: name})
	}
	return out, nil
}

func (a *Adapter) classify(err error) error {
	switch {
	case errors.Is(err, ErrThrottled):
		return quote.NewError(a.name, quote.KindRateLimited, err)
	case errors.Is(err, ErrUnauthorized):
		return quote.NewError(a.name, quote.KindAuth, err)
	case errors.Is(err, ErrRejected):
		return quote.NewError(a.name, quote.KindInvalidRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		return quote.NewError(a.name, quote.KindTimeout, err)
	default:
		return quote.NewError(a.name, quote.KindMalformedResponse, err)
	}
}
