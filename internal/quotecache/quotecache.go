// Package quotecache stores resolved quotes with per-entry expiry. Expired
// entries are ignored by fresh reads but kept around: the resolver serves
// them as a last resort when every provider fails, so staleness is checked at
// read time rather than enforced by deletion.
package quotecache

import (
	"context"
	"time"

	"deepticker/internal/quote"
)

// Entry wraps a cached quote with its freshness window.
type Entry struct {
	Quote    quote.Quote   `json:"quote"`
	StoredAt time.Time     `json:"stored_at"`
	Expiry   time.Duration `json:"expiry"`
}

// Expired reports whether the entry is past its freshness window at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.Expiry
}

// Store is the cache consulted by the resolver. Get returns the entry for a
// symbol whether or not it is fresh; callers decide if a stale entry is
// acceptable via Entry.Expired. A newer Put for the same symbol supersedes
// the previous entry entirely.
type Store interface {
	Put(ctx context.Context, q quote.Quote, expiry time.Duration) error
	Get(ctx context.Context, symbol string) (Entry, bool, error)
	Delete(ctx context.Context, symbol string) error
	Close() error
}
