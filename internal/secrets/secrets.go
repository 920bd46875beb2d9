// Package secrets resolves API credentials by provider id. It is the only
// place that knows where keys live; the rest of the code asks for them by
// name.
package secrets

import (
	"os"
	"strings"
)

// Store resolves API keys for providers.
type Store interface {
	APIKey(provider string) (string, bool)
}

// Env reads keys from the environment: provider "alphavantage" maps to
// ALPHAVANTAGE_API_KEY.
type Env struct{}

func (Env) APIKey(provider string) (string, bool) {
	name := strings.ToUpper(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, provider)) + "_API_KEY"
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// Static is a fixed key set, used in tests and one-shot tools.
type Static map[string]string

func (s Static) APIKey(provider string) (string, bool) {
	v, ok := s[provider]
	return v, ok && v != ""
}
