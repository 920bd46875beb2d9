package resolver

import (
	"context"
	"sync"
	"time"

	"deepticker/internal/quote"
)

// SearchFunc is the search operation debounced by SearchDebouncer.
type SearchFunc func(ctx context.Context, query string) ([]quote.SearchResult, error)

// SearchDebouncer coalesces live-typed queries. Each Submit cancels the
// pending one, so only the last query inside the window reaches the search
// function, and a result that arrives after it has been superseded is
// discarded rather than delivered.
type SearchDebouncer struct {
	delay  time.Duration
	search SearchFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSearchDebouncer(delay time.Duration, search SearchFunc) *SearchDebouncer {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &SearchDebouncer{delay: delay, search: search}
}

// Submit schedules query and delivers the outcome to deliver unless a newer
// Submit supersedes it first. deliver runs on the debouncer's goroutine.
func (d *SearchDebouncer) Submit(ctx context.Context, query string, deliver func(query string, results []quote.SearchResult, err error)) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		t := time.NewTimer(d.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		results, err := d.search(ctx, query)
		if ctx.Err() != nil {
			// Superseded while in flight; drop the late result.
			return
		}
		deliver(query, results, err)
	}()
}

// Stop cancels any pending or in-flight search.
func (d *SearchDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
