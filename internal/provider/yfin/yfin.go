// Package yfin serves quotes from Yahoo's public finance API via
// github.com/piquette/finance-go. It needs no credentials, which makes it the
// fallback of last resort before the cache. It has no search endpoint.
package yfin

import (
	"context"
	"errors"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	fquote "github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"deepticker/internal/quote"
)

// Name is the provider id used for health tracking and cache tagging.
const Name = "yfin"

type Provider struct {
	name string
}

func New() *Provider {
	return &Provider{name: Name}
}

func (p *Provider) Name() string { return p.name }

// FetchQuote runs the finance-go call in a goroutine because the library does
// not take a context. A call abandoned at the deadline writes its late result
// into the buffered channel and the goroutine exits; the result is discarded.
func (p *Provider) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Quote{}, quote.NewError(p.name, quote.KindInvalidRequest, errors.New("empty symbol"))
	}

	type outcome struct {
		q   *finance.Quote
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		q, err := fquote.Get(symbol)
		ch <- outcome{q, err}
	}()

	select {
	case <-ctx.Done():
		return quote.Quote{}, quote.NewError(p.name, quote.KindTimeout, ctx.Err())
	case o := <-ch:
		if o.err != nil {
			return quote.Quote{}, quote.NewError(p.name, quote.KindMalformedResponse, o.err)
		}
		if o.q == nil {
			return quote.Quote{}, quote.NewError(p.name, quote.KindNotFound, fmt.Errorf("symbol %s unknown", symbol))
		}
		return p.toQuote(symbol, o.q)
	}
}

func (p *Provider) toQuote(symbol string, fq *finance.Quote) (quote.Quote, error) {
	if fq.RegularMarketPrice <= 0 {
		return quote.Quote{}, quote.NewError(p.name, quote.KindMalformedResponse, fmt.Errorf("unusable price %v", fq.RegularMarketPrice))
	}
	q := quote.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(fq.RegularMarketPrice),
		Source:    p.name,
		Timestamp: time.Now().UTC(),
	}
	if fq.RegularMarketTime > 0 {
		q.Timestamp = time.Unix(int64(fq.RegularMarketTime), 0).UTC()
	}
	if fq.RegularMarketPreviousClose > 0 {
		prev := decimal.NewFromFloat(fq.RegularMarketPreviousClose)
		q.PreviousClose = &prev
	}
	if fq.RegularMarketChange != 0 {
		ch := decimal.NewFromFloat(fq.RegularMarketChange)
		q.Change = &ch
	}
	if fq.RegularMarketChangePercent != 0 {
		pct := decimal.NewFromFloat(fq.RegularMarketChangePercent)
		q.ChangePercent = &pct
	}
	q.FillChange()
	return q, nil
}

// SearchSymbols always fails: the public endpoint has no search. The search
// resolver treats it like any other provider failure and moves on.
func (p *Provider) SearchSymbols(ctx context.Context, query string) ([]quote.SearchResult, error) {
	return nil, quote.NewError(p.name, quote.KindInvalidRequest, errors.New("search not supported"))
}
