// Package rapidyahoo adapts the Yahoo Finance API hosted on RapidAPI. It is
// the secondary quote source and the primary symbol-search source.
package rapidyahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deepticker/internal/httpx"
	"deepticker/internal/quote"
)

// Name is the provider id used for health tracking, cache tagging and
// credential lookup.
const Name = "rapidyahoo"

type Config struct {
	Name   string // display name, default: rapidyahoo
	Host   string // RapidAPI host, default: yh-finance.p.rapidapi.com
	APIKey string
	Region string // default: US
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = Name
	}
	if cfg.Host == "" {
		cfg.Host = "yh-finance.p.rapidapi.com"
	}
	if cfg.Region == "" {
		cfg.Region = "US"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

type yahooQuote struct {
	Symbol                     string  `json:"symbol"`
	ShortName                  string  `json:"shortName"`
	LongName                   string  `json:"longName"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketChange        float64 `json:"regularMarketChange"`
	RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
	RegularMarketTime          int64   `json:"regularMarketTime"`
}

type quotesPayload struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
		Error  any          `json:"error"`
	} `json:"quoteResponse"`
}

func (p *Provider) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Quote{}, quote.NewError(p.cfg.Name, quote.KindInvalidRequest, errors.New("empty symbol"))
	}

	u := fmt.Sprintf("https://%s/market/v2/get-quotes?region=%s&symbols=%s",
		p.cfg.Host, url.QueryEscape(p.cfg.Region), url.QueryEscape(symbol))

	var payload quotesPayload
	if err := p.getJSON(ctx, u, &payload); err != nil {
		return quote.Quote{}, err
	}
	for _, yq := range payload.QuoteResponse.Result {
		if quote.NormalizeSymbol(yq.Symbol) != symbol {
			continue
		}
		return p.toQuote(symbol, yq)
	}
	return quote.Quote{}, quote.NewError(p.cfg.Name, quote.KindNotFound, fmt.Errorf("symbol %s not in response", symbol))
}

func (p *Provider) toQuote(symbol string, yq yahooQuote) (quote.Quote, error) {
	if yq.RegularMarketPrice <= 0 {
		return quote.Quote{}, quote.NewError(p.cfg.Name, quote.KindMalformedResponse, fmt.Errorf("unusable price %v", yq.RegularMarketPrice))
	}
	q := quote.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(yq.RegularMarketPrice),
		Source:    p.cfg.Name,
		Timestamp: time.Now().UTC(),
	}
	if yq.RegularMarketTime > 0 {
		q.Timestamp = time.Unix(yq.RegularMarketTime, 0).UTC()
	}
	if yq.RegularMarketPreviousClose > 0 {
		prev := decimal.NewFromFloat(yq.RegularMarketPreviousClose)
		q.PreviousClose = &prev
	}
	if yq.RegularMarketChange != 0 {
		ch := decimal.NewFromFloat(yq.RegularMarketChange)
		q.Change = &ch
	}
	if yq.RegularMarketChangePercent != 0 {
		pct := decimal.NewFromFloat(yq.RegularMarketChangePercent)
		q.ChangePercent = &pct
	}
	q.FillChange()
	return q, nil
}

type searchPayload struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

func (p *Provider) SearchSymbols(ctx context.Context, query string) ([]quote.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, quote.NewError(p.cfg.Name, quote.KindInvalidRequest, errors.New("empty query"))
	}

	u := fmt.Sprintf("https://%s/auto-complete?region=%s&q=%s",
		p.cfg.Host, url.QueryEscape(p.cfg.Region), url.QueryEscape(query))

	var payload searchPayload
	if err := p.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	out := make([]quote.SearchResult, 0, len(payload.Quotes))
	for _, hit := range payload.Quotes {
		if hit.Symbol == "" {
			continue
		}
		name := hit.ShortName
		if name == "" {
			name = hit.LongName
		}
		if name == "" {
			name = hit.Symbol
		}
		out = append(out, quote.SearchResult{Symbol: quote.NormalizeSymbol(hit.Symbol), DisplayName: name})
	}
	return out, nil
}

func (p *Provider) getJSON(ctx context.Context, u string, out any) error {
	if p.cfg.APIKey == "" {
		return quote.NewError(p.cfg.Name, quote.KindAuth, errors.New("missing RapidAPI key"))
	}

	resp, err := p.client.Get(ctx, u, map[string]string{
		"X-RapidAPI-Key":  p.cfg.APIKey,
		"X-RapidAPI-Host": p.cfg.Host,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return quote.NewError(p.cfg.Name, quote.KindTimeout, err)
		}
		return quote.NewError(p.cfg.Name, quote.KindMalformedResponse, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return quote.NewError(p.cfg.Name, quote.KindAuth, fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusTooManyRequests:
		return quote.NewError(p.cfg.Name, quote.KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusBadRequest, http.StatusNotFound:
		return quote.NewError(p.cfg.Name, quote.KindInvalidRequest, fmt.Errorf("status %d", resp.StatusCode))
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return quote.NewError(p.cfg.Name, quote.KindMalformedResponse, fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return quote.NewError(p.cfg.Name, quote.KindMalformedResponse, fmt.Errorf("decode: %w", err))
	}
	return nil
}
