// Package resolver orchestrates quote fetching across providers: priority
// order with retry and backoff, health-based suppression, cache write-through
// on success and stale-cache fallback when every source fails.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"deepticker/internal/health"
	"deepticker/internal/quote"
	"deepticker/internal/quotecache"
)

// Config controls timeouts, retries and cache policy.
type Config struct {
	// ProviderTimeout bounds each upstream call.
	ProviderTimeout time.Duration
	// MaxRetries is the number of extra attempts against the same provider
	// after a transient failure (timeout or garbled payload).
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	// DefaultExpiry is the cache TTL for providers not listed in
	// ExpiryByProvider.
	DefaultExpiry time.Duration
	// ExpiryByProvider assigns per-provider cache TTLs: fast sources get
	// short windows, slow fallbacks longer ones.
	ExpiryByProvider map[string]time.Duration
	// MaxConcurrent caps the batch fan-out. 0 means one task per symbol.
	MaxConcurrent int
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.DefaultExpiry <= 0 {
		c.DefaultExpiry = 5 * time.Minute
	}
	return c
}

// Result is the per-symbol outcome of a Refresh. Exactly one of Quote and
// Err is meaningful.
type Result struct {
	Quote quote.Quote
	Err   error
}

// Resolver is the one place that implements the provider-priority fallback
// chain. All collaborators are injected; there is no package-level state.
type Resolver struct {
	providers []quote.Provider // descending priority
	cache     quotecache.Store
	health    *health.Tracker
	cfg       Config
	log       *logrus.Entry

	mu         sync.Mutex
	lastSource string
	lastAt     time.Time
}

func New(providers []quote.Provider, cache quotecache.Store, tracker *health.Tracker, cfg Config, log *logrus.Logger) *Resolver {
	return &Resolver{
		providers: providers,
		cache:     cache,
		health:    tracker,
		cfg:       cfg.withDefaults(),
		log:       log.WithField("component", "resolver"),
	}
}

// Refresh resolves a batch of symbols. Symbols are fetched independently and
// concurrently, so one symbol exhausting every provider never fails its
// siblings; the returned map always has an entry per requested symbol.
func (r *Resolver) Refresh(ctx context.Context, symbols []string) map[string]Result {
	results := make(map[string]Result, len(symbols))
	uniq := dedupe(symbols)
	if len(uniq) == 0 {
		return results
	}

	var mu sync.Mutex
	var g errgroup.Group
	if r.cfg.MaxConcurrent > 0 {
		g.SetLimit(r.cfg.MaxConcurrent)
	}
	for _, sym := range uniq {
		sym := sym
		g.Go(func() error {
			res := r.resolveOne(ctx, sym)
			mu.Lock()
			results[sym] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// resolveOne walks the providers in priority order, then the cache.
func (r *Resolver) resolveOne(ctx context.Context, symbol string) Result {
	for _, p := range r.providers {
		if !r.health.Enabled(p.Name()) {
			r.log.WithFields(logrus.Fields{"provider": p.Name(), "symbol": symbol}).Debug("provider disabled, skipping")
			continue
		}

		q, err := r.fetchWithRetry(ctx, p, symbol)
		if err == nil {
			r.health.RecordSuccess(p.Name())
			expiry := r.expiryFor(p.Name())
			if cerr := r.cache.Put(ctx, q, expiry); cerr != nil {
				r.log.WithError(cerr).WithField("symbol", symbol).Warn("cache write failed")
			}
			r.noteSuccess(q)
			return Result{Quote: q}
		}

		kind := quote.KindOf(err)
		if kind.Systemic() {
			r.health.RecordFailure(p.Name(), kind)
		}
		r.log.WithError(err).WithFields(logrus.Fields{
			"provider": p.Name(),
			"symbol":   symbol,
			"kind":     kind.String(),
		}).Warn("provider failed, falling through")

		if ctx.Err() != nil {
			break
		}
	}

	// Cache is the last resort; staleness is preferable to no data.
	if e, ok, err := r.cache.Get(ctx, symbol); err == nil && ok {
		q := e.Quote
		q.Source = quote.SourceCache
		// Timestamp stays the original fetch time so callers can see how
		// stale the value is.
		r.log.WithFields(logrus.Fields{"symbol": symbol, "stored_at": e.StoredAt}).Info("serving cached quote")
		return Result{Quote: q}
	}

	return Result{Err: fmt.Errorf("%s: %w", symbol, quote.ErrAllSourcesFailed)}
}

// fetchWithRetry calls one provider with the configured timeout, retrying
// transient failures with exponential backoff. Rate-limit, auth and
// not-found outcomes return immediately.
func (r *Resolver) fetchWithRetry(ctx context.Context, p quote.Provider, symbol string) (quote.Quote, error) {
	delay := r.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		q, err := p.FetchQuote(cctx, symbol)
		cancel()
		if err == nil {
			if q.Price.Sign() > 0 {
				return q, nil
			}
			// Adapters normalize zero prices already; an escapee is still
			// "no data".
			err = quote.NewError(p.Name(), quote.KindMalformedResponse, errors.New("zero price"))
		}
		lastErr = err

		if !quote.KindOf(err).Retryable() || attempt >= r.cfg.MaxRetries {
			return quote.Quote{}, lastErr
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return quote.Quote{}, lastErr
		case <-t.C:
		}
		delay *= 2
	}
}

func (r *Resolver) expiryFor(provider string) time.Duration {
	if d, ok := r.cfg.ExpiryByProvider[provider]; ok && d > 0 {
		return d
	}
	return r.cfg.DefaultExpiry
}

// noteSuccess publishes the most recent successful source for telemetry.
func (r *Resolver) noteSuccess(q quote.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q.Timestamp.After(r.lastAt) {
		r.lastSource = q.Source
		r.lastAt = q.Timestamp
	}
}

// LastSuccess reports the source and time of the most recent live fetch.
func (r *Resolver) LastSuccess() (source string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSource, r.lastAt
}

var tickerRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.:-]{0,9}$`)

// Search tries each provider's symbol search once, in priority order, and
// returns the first non-empty hit list. Failures and empty lists fall
// through silently; search is advisory, so there is no retry loop. When
// everything comes back empty and the query looks like a ticker, a direct
// quote fetch validates it and synthesizes a single result. Users frequently
// type a known ticker that the search endpoints do not index well.
func (r *Resolver) Search(ctx context.Context, query string) ([]quote.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	for _, p := range r.providers {
		if !r.health.Enabled(p.Name()) {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		res, err := p.SearchSymbols(cctx, query)
		cancel()
		if err != nil {
			kind := quote.KindOf(err)
			if kind.Systemic() {
				r.health.RecordFailure(p.Name(), kind)
			}
			r.log.WithError(err).WithFields(logrus.Fields{"provider": p.Name(), "query": query}).Debug("search failed, falling through")
			continue
		}
		if len(res) > 0 {
			return res, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	if tickerRe.MatchString(query) {
		sym := quote.NormalizeSymbol(query)
		if res := r.resolveOne(ctx, sym); res.Err == nil {
			return []quote.SearchResult{{Symbol: sym, DisplayName: sym}}, nil
		}
	}
	return nil, nil
}

func dedupe(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = quote.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
