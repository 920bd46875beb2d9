package portfolio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"deepticker/internal/quote"
	"deepticker/internal/resolver"
)

// Refresher is the slice of the resolver the store needs.
type Refresher interface {
	Refresh(ctx context.Context, symbols []string) map[string]resolver.Result
}

// ErrNotHeld is returned when operating on a symbol that is not in the
// portfolio.
var ErrNotHeld = errors.New("symbol not held")

// Store is the in-process portfolio. All mutation goes through the store's
// lock; refreshes fetch outside the lock and apply under it.
type Store struct {
	refresher Refresher
	log       *logrus.Entry

	mu       sync.RWMutex
	holdings map[string]Holding
}

func NewStore(refresher Refresher, log *logrus.Logger) *Store {
	return &Store{
		refresher: refresher,
		log:       log.WithField("component", "portfolio"),
		holdings:  make(map[string]Holding),
	}
}

// Add registers a holding, replacing any existing position in the same
// symbol. The price state starts pending until the next refresh.
func (s *Store) Add(symbol string, quantity decimal.Decimal, purchasePrice *decimal.Decimal) (Holding, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return Holding{}, errors.New("empty symbol")
	}
	if quantity.Sign() <= 0 {
		return Holding{}, errors.New("quantity must be positive")
	}
	h := Holding{
		Symbol:        symbol,
		Quantity:      quantity,
		PurchasePrice: purchasePrice,
		PriceState:    PricePending,
	}
	s.mu.Lock()
	// Keep the last known price when the user edits an existing position.
	if old, ok := s.holdings[symbol]; ok {
		h.CurrentPrice = old.CurrentPrice
		h.PreviousClose = old.PreviousClose
		h.PriceState = old.PriceState
		h.PriceSource = old.PriceSource
		h.LastUpdated = old.LastUpdated
	}
	s.holdings[symbol] = h
	s.mu.Unlock()
	return h, nil
}

func (s *Store) Remove(symbol string) error {
	symbol = quote.NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holdings[symbol]; !ok {
		return ErrNotHeld
	}
	delete(s.holdings, symbol)
	return nil
}

func (s *Store) Get(symbol string) (Holding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holdings[quote.NormalizeSymbol(symbol)]
	return h, ok
}

// Holdings returns the positions sorted by symbol.
func (s *Store) Holdings() []Holding {
	s.mu.RLock()
	out := make([]Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, h)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TotalValue sums the market value of every priced holding.
func (s *Store) TotalValue() decimal.Decimal {
	total := decimal.Decimal{}
	for _, h := range s.Holdings() {
		if v, ok := h.MarketValue(); ok {
			total = total.Add(v)
		}
	}
	return total
}

// RefreshAll resolves quotes for every held symbol and applies them.
// Failures are isolated per symbol: a holding whose sources are all down
// keeps its last known price and is marked failed. The returned map carries
// the per-symbol errors; an empty map means every holding refreshed.
func (s *Store) RefreshAll(ctx context.Context) map[string]error {
	s.mu.RLock()
	symbols := make([]string, 0, len(s.holdings))
	for sym := range s.holdings {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()

	failures := make(map[string]error)
	if len(symbols) == 0 {
		return failures
	}

	results := s.refresher.Refresh(ctx, symbols)

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, res := range results {
		h, ok := s.holdings[sym]
		if !ok {
			// Removed while the refresh was in flight.
			continue
		}
		if res.Err != nil {
			failures[sym] = res.Err
			h.PriceState = PriceFailed
			s.holdings[sym] = h
			s.log.WithError(res.Err).WithField("symbol", sym).Warn("holding refresh failed")
			continue
		}
		q := res.Quote
		price := q.Price
		h.CurrentPrice = &price
		h.PreviousClose = q.PreviousClose
		h.PriceSource = q.Source
		h.LastUpdated = q.Timestamp
		if q.Source == quote.SourceCache {
			h.PriceState = PriceCached
		} else {
			h.PriceState = PriceLive
		}
		s.holdings[sym] = h
	}
	return failures
}

// LastUpdated reports the most recent refresh time across holdings.
func (s *Store) LastUpdated() time.Time {
	var latest time.Time
	for _, h := range s.Holdings() {
		if h.LastUpdated.After(latest) {
			latest = h.LastUpdated
		}
	}
	return latest
}
