// Package ratelimit wraps providers with client-side request pacing. The
// free tiers of the quote APIs meter all endpoints together, so FetchQuote
// and SearchSymbols share one gate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"deepticker/internal/quote"
)

// MinInterval wraps a provider and enforces a minimum time between upstream
// calls. Concurrent callers wait until the interval has elapsed since the
// last call, or return early if the context is canceled.
type MinInterval struct {
	P        quote.Provider
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	if err := m.wait(ctx); err != nil {
		return quote.Quote{}, err
	}
	q, err := m.P.FetchQuote(ctx, symbol)
	m.stamp()
	return q, err
}

func (m *MinInterval) SearchSymbols(ctx context.Context, query string) ([]quote.SearchResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	res, err := m.P.SearchSymbols(ctx, query)
	m.stamp()
	return res, err
}

func (m *MinInterval) wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) stamp() {
	if m.Interval <= 0 {
		return
	}
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}
