package quotecache

import (
	"context"
	"sync"
	"time"

	"deepticker/internal/quote"
)

// Memory is an in-process Store. A background janitor deletes entries that
// have been expired for longer than the retention window; this is an
// opportunistic cleanup, not a correctness mechanism, since reads recheck
// expiry themselves.
type Memory struct {
	retention time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	items map[string]Entry

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory builds a memory store. sweepEvery > 0 starts the janitor;
// retention is how long an expired entry stays readable as stale fallback
// before the sweep removes it (0 means entries are swept as soon as they
// expire).
func NewMemory(sweepEvery, retention time.Duration) *Memory {
	m := &Memory{
		retention: retention,
		now:       time.Now,
		items:     make(map[string]Entry),
		done:      make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.janitor(sweepEvery)
	}
	return m
}

func (m *Memory) Put(ctx context.Context, q quote.Quote, expiry time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[quote.NormalizeSymbol(q.Symbol)] = Entry{
		Quote:    q,
		StoredAt: m.now(),
		Expiry:   expiry,
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, symbol string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[quote.NormalizeSymbol(symbol)]
	return e, ok, nil
}

func (m *Memory) Delete(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, quote.NormalizeSymbol(symbol))
	return nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// Len reports the number of entries, fresh or stale.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			m.sweep(m.now())
		}
	}
}

// sweep removes entries whose expiry plus retention has passed.
func (m *Memory) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, e := range m.items {
		if now.Sub(e.StoredAt) > e.Expiry+m.retention {
			delete(m.items, sym)
		}
	}
}
