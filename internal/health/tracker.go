// Package health tracks temporary provider suppression. A provider that
// signals rate limiting or an auth problem is disabled for a cooldown so the
// resolver stops burning calls against it; transient faults never change
// health state.
package health

import (
	"sync"
	"time"

	"deepticker/internal/quote"
)

// DefaultCooldown is how long a provider stays disabled after a systemic
// failure unless configured otherwise.
const DefaultCooldown = 10 * time.Minute

type Tracker struct {
	cooldown time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[string]time.Time // provider -> disabledUntil
}

func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		cooldown: cooldown,
		now:      time.Now,
		states:   make(map[string]time.Time),
	}
}

// Enabled reports whether the provider may be called. Re-enablement is lazy:
// an elapsed cooldown flips the provider back to enabled here, at call time.
func (t *Tracker) Enabled(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	until, ok := t.states[provider]
	if !ok {
		return true
	}
	if !t.now().Before(until) {
		delete(t.states, provider)
		return true
	}
	return false
}

// RecordFailure disables the provider for the cooldown when the failure kind
// is systemic. Timeouts, parse failures and unknown symbols are not grounds
// for disabling a provider.
func (t *Tracker) RecordFailure(provider string, kind quote.Kind) {
	if !kind.Systemic() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[provider] = t.now().Add(t.cooldown)
}

// RecordSuccess is a no-op on health state; re-enablement happens via the
// lazy expiry check in Enabled.
func (t *Tracker) RecordSuccess(provider string) {}

// DisabledUntil reports the suppression deadline for a provider, if any.
func (t *Tracker) DisabledUntil(provider string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	until, ok := t.states[provider]
	if !ok || !t.now().Before(until) {
		return time.Time{}, false
	}
	return until, true
}
