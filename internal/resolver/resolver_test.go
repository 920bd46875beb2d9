package resolver

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"deepticker/internal/health"
	"deepticker/internal/quote"
	"deepticker/internal/quotecache"
)

type fetchOutcome struct {
	q   quote.Quote
	err error
}

// scripted is a provider whose per-symbol responses are consumed in order;
// the last one repeats.
type scripted struct {
	name string

	mu          sync.Mutex
	quoteScript map[string][]fetchOutcome
	fetchCount  map[string]int
	searchHits  []quote.SearchResult
	searchErr   error
	searchCount int
}

func newScripted(name string) *scripted {
	return &scripted{
		name:        name,
		quoteScript: make(map[string][]fetchOutcome),
		fetchCount:  make(map[string]int),
	}
}

func (s *scripted) script(symbol string, outs ...fetchOutcome) *scripted {
	s.quoteScript[symbol] = outs
	return s
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCount[symbol]++
	outs := s.quoteScript[symbol]
	if len(outs) == 0 {
		return quote.Quote{}, quote.NewError(s.name, quote.KindNotFound, errors.New("unscripted symbol"))
	}
	o := outs[0]
	if len(outs) > 1 {
		s.quoteScript[symbol] = outs[1:]
	}
	return o.q, o.err
}

func (s *scripted) SearchSymbols(ctx context.Context, query string) ([]quote.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCount++
	return s.searchHits, s.searchErr
}

func (s *scripted) fetches(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCount[symbol]
}

func ok(provider, symbol string, price int64) fetchOutcome {
	return fetchOutcome{q: quote.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromInt(price),
		Source:    provider,
		Timestamp: time.Now().UTC(),
	}}
}

func fail(provider string, kind quote.Kind) fetchOutcome {
	return fetchOutcome{err: quote.NewError(provider, kind, errors.New("scripted failure"))}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() Config {
	return Config{
		ProviderTimeout: time.Second,
		MaxRetries:      2,
		RetryBaseDelay:  time.Millisecond,
		DefaultExpiry:   5 * time.Minute,
	}
}

func newResolver(t *testing.T, cfg Config, providers ...quote.Provider) (*Resolver, *quotecache.Memory, *health.Tracker) {
	t.Helper()
	cache := quotecache.NewMemory(0, 0)
	t.Cleanup(func() { cache.Close() })
	tracker := health.NewTracker(10 * time.Minute)
	return New(providers, cache, tracker, cfg, quietLogger()), cache, tracker
}

func TestRefresh_TopProviderWins(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL", ok("alphavantage", "AAPL", 211))
	p2 := newScripted("rapidyahoo").script("AAPL", ok("rapidyahoo", "AAPL", 210))
	r, cache, _ := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	got := res["AAPL"]
	if got.Err != nil {
		t.Fatalf("refresh: %v", got.Err)
	}
	if got.Quote.Source != "alphavantage" {
		t.Fatalf("source = %s, want alphavantage", got.Quote.Source)
	}
	if p2.fetches("AAPL") != 0 {
		t.Fatal("lower-priority provider should not be consulted")
	}

	// Success is written through to the cache.
	e, okC, _ := cache.Get(context.Background(), "AAPL")
	if !okC {
		t.Fatal("cache entry missing after successful fetch")
	}
	if time.Since(e.StoredAt) > time.Minute {
		t.Fatalf("storedAt = %v, want ~now", e.StoredAt)
	}

	src, at := r.LastSuccess()
	if src != "alphavantage" || at.IsZero() {
		t.Fatalf("LastSuccess = %s %v", src, at)
	}
}

func TestRefresh_FallsThroughToNextProvider(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL", fail("alphavantage", quote.KindNotFound))
	p2 := newScripted("rapidyahoo").script("AAPL", ok("rapidyahoo", "AAPL", 210))
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	if res["AAPL"].Err != nil {
		t.Fatalf("refresh: %v", res["AAPL"].Err)
	}
	if res["AAPL"].Quote.Source != "rapidyahoo" {
		t.Fatalf("source = %s", res["AAPL"].Quote.Source)
	}
	// notFound is never retried against the same provider.
	if n := p1.fetches("AAPL"); n != 1 {
		t.Fatalf("p1 fetches = %d, want 1", n)
	}
}

func TestRefresh_RateLimitSuppressesProviderForAllSymbols(t *testing.T) {
	p1 := newScripted("alphavantage").
		script("AAPL", fail("alphavantage", quote.KindRateLimited)).
		script("MSFT", ok("alphavantage", "MSFT", 400))
	p2 := newScripted("rapidyahoo").
		script("AAPL", ok("rapidyahoo", "AAPL", 210)).
		script("MSFT", ok("rapidyahoo", "MSFT", 401))
	r, _, tracker := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	if res["AAPL"].Quote.Source != "rapidyahoo" {
		t.Fatalf("source = %s", res["AAPL"].Quote.Source)
	}
	if tracker.Enabled("alphavantage") {
		t.Fatal("rate-limited provider must be disabled")
	}
	// No retry against a rate-limited provider.
	if n := p1.fetches("AAPL"); n != 1 {
		t.Fatalf("p1 fetches = %d, want 1", n)
	}

	// The very next call, for a different symbol, skips provider 1 entirely.
	res = r.Refresh(context.Background(), []string{"MSFT"})
	if res["MSFT"].Quote.Source != "rapidyahoo" {
		t.Fatalf("MSFT source = %s", res["MSFT"].Quote.Source)
	}
	if n := p1.fetches("MSFT"); n != 0 {
		t.Fatalf("suppressed provider was consulted %d times", n)
	}
}

func TestRefresh_AuthFailureSuppressesProvider(t *testing.T) {
	p1 := newScripted("rapidyahoo").script("AAPL", fail("rapidyahoo", quote.KindAuth))
	p2 := newScripted("yfin").script("AAPL", ok("yfin", "AAPL", 209))
	r, _, tracker := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	if res["AAPL"].Quote.Source != "yfin" {
		t.Fatalf("source = %s", res["AAPL"].Quote.Source)
	}
	if tracker.Enabled("rapidyahoo") {
		t.Fatal("provider with a bad credential must be disabled")
	}
}

func TestRefresh_RetriesTransientThenSucceeds(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL",
		fail("alphavantage", quote.KindTimeout),
		fail("alphavantage", quote.KindTimeout),
		ok("alphavantage", "AAPL", 211),
	)
	p2 := newScripted("rapidyahoo").script("AAPL", ok("rapidyahoo", "AAPL", 210))
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	if res["AAPL"].Err != nil {
		t.Fatalf("refresh: %v", res["AAPL"].Err)
	}
	if res["AAPL"].Quote.Source != "alphavantage" {
		t.Fatalf("source = %s, want alphavantage (no fallback within retry budget)", res["AAPL"].Quote.Source)
	}
	if n := p1.fetches("AAPL"); n != 3 {
		t.Fatalf("p1 fetches = %d, want 3", n)
	}
	if p2.fetches("AAPL") != 0 {
		t.Fatal("no fallback expected")
	}
}

func TestRefresh_RetryBudgetExhaustedFallsThrough(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL", fail("alphavantage", quote.KindMalformedResponse))
	p2 := newScripted("rapidyahoo").script("AAPL", ok("rapidyahoo", "AAPL", 210))
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	if res["AAPL"].Quote.Source != "rapidyahoo" {
		t.Fatalf("source = %s", res["AAPL"].Quote.Source)
	}
	// 1 attempt + MaxRetries extra ones.
	if n := p1.fetches("AAPL"); n != 3 {
		t.Fatalf("p1 fetches = %d, want 3", n)
	}
}

func TestRefresh_ZeroPriceQuoteIsRejected(t *testing.T) {
	zero := fetchOutcome{q: quote.Quote{Symbol: "AAPL", Source: "alphavantage", Timestamp: time.Now()}}
	p1 := newScripted("alphavantage").script("AAPL", zero, zero, zero)
	p2 := newScripted("rapidyahoo").script("AAPL", ok("rapidyahoo", "AAPL", 210))
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res := r.Refresh(context.Background(), []string{"AAPL"})
	if res["AAPL"].Err != nil {
		t.Fatalf("refresh: %v", res["AAPL"].Err)
	}
	if res["AAPL"].Quote.Source != "rapidyahoo" {
		t.Fatalf("a zero price must never surface as a quote, got source %s", res["AAPL"].Quote.Source)
	}
}

func TestRefresh_CacheFallbackWhenAllProvidersFail(t *testing.T) {
	p1 := newScripted("alphavantage")
	cfg := testConfig()
	cfg.MaxRetries = 0
	r, cache, _ := newResolver(t, cfg, p1)

	seeded := quote.Quote{
		Symbol:    "AAPL",
		Price:     decimal.NewFromInt(205),
		Source:    "alphavantage",
		Timestamp: time.Now().Add(-time.Hour).UTC(),
	}
	// Already expired: cache serves stale data as the last resort.
	if err := cache.Put(context.Background(), seeded, time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res := r.Refresh(context.Background(), []string{"AAPL"})
	got := res["AAPL"]
	if got.Err != nil {
		t.Fatalf("expected cached fallback, got %v", got.Err)
	}
	if got.Quote.Source != quote.SourceCache {
		t.Fatalf("source = %s, want %s", got.Quote.Source, quote.SourceCache)
	}
	if !got.Quote.Price.Equal(decimal.NewFromInt(205)) {
		t.Fatalf("price = %v", got.Quote.Price)
	}
	if !got.Quote.Timestamp.Equal(seeded.Timestamp) {
		t.Fatal("cached fallback must keep the original timestamp")
	}
}

func TestRefresh_AllSourcesFailedIsolatedPerSymbol(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL", ok("alphavantage", "AAPL", 211))
	cfg := testConfig()
	cfg.MaxRetries = 0
	r, _, _ := newResolver(t, cfg, p1)

	res := r.Refresh(context.Background(), []string{"AAPL", "ZZZZ"})
	if res["AAPL"].Err != nil {
		t.Fatalf("AAPL should succeed: %v", res["AAPL"].Err)
	}
	if !errors.Is(res["ZZZZ"].Err, quote.ErrAllSourcesFailed) {
		t.Fatalf("ZZZZ err = %v, want ErrAllSourcesFailed", res["ZZZZ"].Err)
	}
}

func TestRefresh_NotFoundOnOneProviderResolvedByNext(t *testing.T) {
	// Provider A quotes AAPL but does not know ZZZZ; provider B knows ZZZZ.
	pa := newScripted("alphavantage").
		script("AAPL", ok("alphavantage", "AAPL", 211)).
		script("ZZZZ", fail("alphavantage", quote.KindNotFound))
	pb := newScripted("rapidyahoo").
		script("ZZZZ", ok("rapidyahoo", "ZZZZ", 7))
	cfg := testConfig()
	cfg.ExpiryByProvider = map[string]time.Duration{
		"alphavantage": 5 * time.Minute,
		"rapidyahoo":   10 * time.Minute,
	}
	r, cache, _ := newResolver(t, cfg, pa, pb)

	res := r.Refresh(context.Background(), []string{"AAPL", "ZZZZ"})
	if res["AAPL"].Quote.Source != "alphavantage" {
		t.Fatalf("AAPL source = %s", res["AAPL"].Quote.Source)
	}
	if res["ZZZZ"].Quote.Source != "rapidyahoo" {
		t.Fatalf("ZZZZ source = %s", res["ZZZZ"].Quote.Source)
	}

	// Both symbols are cached independently with their provider's expiry.
	ea, okA, _ := cache.Get(context.Background(), "AAPL")
	ez, okZ, _ := cache.Get(context.Background(), "ZZZZ")
	if !okA || !okZ {
		t.Fatal("both symbols should be cached")
	}
	if ea.Expiry != 5*time.Minute || ez.Expiry != 10*time.Minute {
		t.Fatalf("expiries = %v %v", ea.Expiry, ez.Expiry)
	}
}

func TestRefresh_IdempotentHealthAccounting(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL", fail("alphavantage", quote.KindNotFound))
	p2 := newScripted("rapidyahoo").script("AAPL", ok("rapidyahoo", "AAPL", 210))
	r, _, tracker := newResolver(t, testConfig(), p1, p2)

	for i := 0; i < 2; i++ {
		res := r.Refresh(context.Background(), []string{"AAPL"})
		if res["AAPL"].Err != nil {
			t.Fatalf("refresh %d: %v", i, res["AAPL"].Err)
		}
	}
	// notFound never disables a provider, however often it happens.
	if !tracker.Enabled("alphavantage") {
		t.Fatal("provider wrongly disabled")
	}
	if n := p1.fetches("AAPL"); n != 2 {
		t.Fatalf("p1 fetches = %d, want exactly one per Refresh", n)
	}
}

func TestRefresh_DedupesAndNormalizesSymbols(t *testing.T) {
	p1 := newScripted("alphavantage").script("AAPL", ok("alphavantage", "AAPL", 211))
	r, _, _ := newResolver(t, testConfig(), p1)

	res := r.Refresh(context.Background(), []string{"aapl", " AAPL ", ""})
	if len(res) != 1 {
		t.Fatalf("len(res) = %d: %+v", len(res), res)
	}
	if res["AAPL"].Err != nil {
		t.Fatalf("refresh: %v", res["AAPL"].Err)
	}
	if n := p1.fetches("AAPL"); n != 1 {
		t.Fatalf("p1 fetches = %d, want 1", n)
	}
}

func TestRefresh_EmptyBatch(t *testing.T) {
	r, _, _ := newResolver(t, testConfig(), newScripted("alphavantage"))
	res := r.Refresh(context.Background(), nil)
	if len(res) != 0 {
		t.Fatalf("expected empty result map, got %+v", res)
	}
}

func TestSearch_FirstNonEmptyWins(t *testing.T) {
	p1 := newScripted("alphavantage") // returns empty list
	p2 := newScripted("rapidyahoo")
	p2.searchHits = []quote.SearchResult{{Symbol: "AAPL", DisplayName: "Apple Inc."}}
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res, err := r.Search(context.Background(), "Apple")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Symbol != "AAPL" {
		t.Fatalf("res = %+v", res)
	}
	// Provider 1 is consulted once and discarded silently.
	if p1.searchCount != 1 {
		t.Fatalf("p1 searches = %d", p1.searchCount)
	}
}

func TestSearch_FailuresFallThroughWithoutRetry(t *testing.T) {
	p1 := newScripted("alphavantage")
	p1.searchErr = quote.NewError("alphavantage", quote.KindTimeout, errors.New("slow"))
	p2 := newScripted("rapidyahoo")
	p2.searchHits = []quote.SearchResult{{Symbol: "AAPL", DisplayName: "Apple Inc."}}
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res, err := r.Search(context.Background(), "Apple")
	if err != nil || len(res) != 1 {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if p1.searchCount != 1 {
		t.Fatalf("search is single-attempt, got %d calls", p1.searchCount)
	}
}

func TestSearch_RateLimitedSearchSuppressesProvider(t *testing.T) {
	p1 := newScripted("alphavantage")
	p1.searchErr = quote.NewError("alphavantage", quote.KindRateLimited, errors.New("throttled"))
	p2 := newScripted("rapidyahoo")
	p2.searchHits = []quote.SearchResult{{Symbol: "AAPL", DisplayName: "Apple Inc."}}
	r, _, tracker := newResolver(t, testConfig(), p1, p2)

	if _, err := r.Search(context.Background(), "Apple"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if tracker.Enabled("alphavantage") {
		t.Fatal("rate-limited search should suppress the provider")
	}
}

func TestSearch_TickerValidationFallback(t *testing.T) {
	// Both searches come back empty, but the query is a plausible ticker and
	// a direct quote fetch validates it.
	p1 := newScripted("alphavantage").script("BRK.B", ok("alphavantage", "BRK.B", 470))
	p2 := newScripted("rapidyahoo")
	r, _, _ := newResolver(t, testConfig(), p1, p2)

	res, err := r.Search(context.Background(), "brk.b")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Symbol != "BRK.B" || res[0].DisplayName != "BRK.B" {
		t.Fatalf("res = %+v", res)
	}
}

func TestSearch_NoValidationForProse(t *testing.T) {
	p1 := newScripted("alphavantage")
	r, _, _ := newResolver(t, testConfig(), p1)

	res, err := r.Search(context.Background(), "some long company name")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("res = %+v", res)
	}
	if n := p1.fetches("SOME LONG COMPANY NAME"); n != 0 {
		t.Fatal("prose queries must not trigger a quote fetch")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	p1 := newScripted("alphavantage")
	r, _, _ := newResolver(t, testConfig(), p1)
	res, err := r.Search(context.Background(), "   ")
	if err != nil || len(res) != 0 {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if p1.searchCount != 0 {
		t.Fatal("no provider call expected for an empty query")
	}
}
