package ratelimit

import (
	"context"
	"sync"
	"time"

	"deepticker/internal/quote"
)

// TokenBucket is a stdlib-only token bucket limiter.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// wait blocks until one token is available or the context is canceled.
func (tb *TokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.last).Seconds()
		if elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()
		waitDur := time.Duration(deficit / tb.rate * 1e9)
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Limited wraps a Provider and gates every call through a token bucket.
type Limited struct {
	P  quote.Provider
	TB *TokenBucket
}

func (l *Limited) Name() string { return l.P.Name() }

func (l *Limited) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	if l.TB != nil {
		if err := l.TB.wait(ctx); err != nil {
			return quote.Quote{}, err
		}
	}
	return l.P.FetchQuote(ctx, symbol)
}

func (l *Limited) SearchSymbols(ctx context.Context, query string) ([]quote.SearchResult, error) {
	if l.TB != nil {
		if err := l.TB.wait(ctx); err != nil {
			return nil, err
		}
	}
	return l.P.SearchSymbols(ctx, query)
}
