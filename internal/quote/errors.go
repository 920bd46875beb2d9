package quote

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a provider failure. The resolver's fallback policy keys off
// it: transient kinds are retried against the same provider, systemic kinds
// suppress the provider for a cooldown, and the rest fall through to the next
// provider immediately.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidRequest
	KindTimeout
	KindRateLimited
	KindNotFound
	KindMalformedResponse
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindMalformedResponse:
		return "malformed_response"
	case KindAuth:
		return "auth_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether the failure is worth retrying against the same
// provider. A single timeout or garbled payload is transient; everything else
// either cannot succeed on retry or must not be retried.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindMalformedResponse
}

// Systemic reports whether the failure indicates the provider itself is
// unusable for a while, not just this one call.
func (k Kind) Systemic() bool {
	return k == KindRateLimited || k == KindAuth
}

// ProviderError is the error type returned by provider adapters.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func NewError(provider string, kind Kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an adapter error. Context deadline
// errors count as timeouts even when the adapter did not classify them.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// ErrAllSourcesFailed is the terminal per-symbol failure: every provider was
// exhausted and the cache held nothing. It is the only error the resolver
// surfaces to callers.
var ErrAllSourcesFailed = errors.New("all quote sources failed")
