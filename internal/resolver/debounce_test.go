package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"deepticker/internal/quote"
)

type delivery struct {
	query   string
	results []quote.SearchResult
	err     error
}

type collector struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (c *collector) deliver(query string, results []quote.SearchResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, delivery{query, results, err})
}

func (c *collector) all() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}

func TestDebouncer_DeliversAfterWindow(t *testing.T) {
	search := func(ctx context.Context, query string) ([]quote.SearchResult, error) {
		return []quote.SearchResult{{Symbol: "AAPL", DisplayName: "Apple Inc."}}, nil
	}
	d := NewSearchDebouncer(10*time.Millisecond, search)
	defer d.Stop()

	var c collector
	d.Submit(context.Background(), "Apple", c.deliver)

	deadline := time.After(2 * time.Second)
	for {
		if got := c.all(); len(got) == 1 {
			if got[0].query != "Apple" || len(got[0].results) != 1 {
				t.Fatalf("delivery = %+v", got[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("no delivery within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDebouncer_NewSubmitSupersedesPending(t *testing.T) {
	var mu sync.Mutex
	var searched []string
	search := func(ctx context.Context, query string) ([]quote.SearchResult, error) {
		mu.Lock()
		searched = append(searched, query)
		mu.Unlock()
		return nil, nil
	}
	d := NewSearchDebouncer(50*time.Millisecond, search)
	defer d.Stop()

	var c collector
	// Typed quickly inside one debounce window: only the last query runs.
	d.Submit(context.Background(), "A", c.deliver)
	d.Submit(context.Background(), "AP", c.deliver)
	d.Submit(context.Background(), "APP", c.deliver)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	gotSearched := append([]string(nil), searched...)
	mu.Unlock()
	if len(gotSearched) != 1 || gotSearched[0] != "APP" {
		t.Fatalf("searched = %v, want only APP", gotSearched)
	}
	got := c.all()
	if len(got) != 1 || got[0].query != "APP" {
		t.Fatalf("deliveries = %+v", got)
	}
}

func TestDebouncer_LateResultDiscardedWhenSuperseded(t *testing.T) {
	release := make(chan struct{})
	search := func(ctx context.Context, query string) ([]quote.SearchResult, error) {
		if query == "slow" {
			<-release
		}
		return []quote.SearchResult{{Symbol: "X", DisplayName: query}}, nil
	}
	d := NewSearchDebouncer(time.Millisecond, search)
	defer d.Stop()

	var c collector
	d.Submit(context.Background(), "slow", c.deliver)
	// Let the slow search start before superseding it.
	time.Sleep(50 * time.Millisecond)
	d.Submit(context.Background(), "fast", c.deliver)
	close(release)

	time.Sleep(100 * time.Millisecond)
	for _, del := range c.all() {
		if del.query == "slow" {
			t.Fatal("superseded search result must be discarded")
		}
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	search := func(ctx context.Context, query string) ([]quote.SearchResult, error) {
		return nil, nil
	}
	d := NewSearchDebouncer(50*time.Millisecond, search)

	var c collector
	d.Submit(context.Background(), "Apple", c.deliver)
	d.Stop()

	time.Sleep(150 * time.Millisecond)
	if got := c.all(); len(got) != 0 {
		t.Fatalf("deliveries after Stop = %+v", got)
	}
}
