// Package pipeline assembles the quote stack from config: provider adapters
// with their rate limiters, the cache backend, the health tracker and the
// resolver. Both binaries build the same pipeline.
package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"deepticker/internal/config"
	"deepticker/internal/health"
	"deepticker/internal/httpx"
	"deepticker/internal/provider/alphavantage"
	"deepticker/internal/provider/rapidyahoo"
	"deepticker/internal/provider/ratelimit"
	"deepticker/internal/provider/yfin"
	"deepticker/internal/quote"
	"deepticker/internal/quotecache"
	"deepticker/internal/resolver"
	"deepticker/internal/secrets"
)

type Pipeline struct {
	Resolver  *resolver.Resolver
	Cache     quotecache.Store
	Health    *health.Tracker
	Providers []quote.Provider
}

// Build wires the pipeline in fallback order: Alpha Vantage first, then the
// RapidAPI Yahoo mirror, then the unauthenticated Yahoo client. Providers
// whose credentials are missing are skipped with a warning rather than
// failing startup.
func Build(cfg config.Config, keys secrets.Store, log *logrus.Logger) (*Pipeline, error) {
	var providers []quote.Provider
	expiries := map[string]time.Duration{}

	if cfg.AlphaVantage.Enabled {
		if key, ok := keys.APIKey(alphavantage.Name); ok {
			hc := httpx.New(cfg.Resolver.ProviderTimeout())
			opts := []alphavantage.ClientOption{alphavantage.WithHTTPClient(hc.HTTP)}
			if cfg.AlphaVantage.Endpoint != "" {
				opts = append(opts, alphavantage.WithBaseURL(cfg.AlphaVantage.Endpoint))
			}
			client, err := alphavantage.NewClient(key, opts...)
			if err != nil {
				return nil, fmt.Errorf("alphavantage client: %w", err)
			}
			var p quote.Provider = alphavantage.NewAdapter(client)
			if iv := cfg.AlphaVantage.MinRequestIntervalSec; iv > 0 {
				p = &ratelimit.MinInterval{P: p, Interval: time.Duration(iv) * time.Second}
			}
			providers = append(providers, p)
			expiries[alphavantage.Name] = time.Duration(cfg.AlphaVantage.CacheTTLSec) * time.Second
		} else {
			log.Warnf("provider %s enabled but no API key found, skipping", alphavantage.Name)
		}
	}

	if cfg.RapidYahoo.Enabled {
		if key, ok := keys.APIKey(rapidyahoo.Name); ok {
			p := rapidyahoo.New(rapidyahoo.Config{
				Host:   cfg.RapidYahoo.Host,
				APIKey: key,
				Region: cfg.RapidYahoo.Region,
			}, httpx.New(cfg.Resolver.ProviderTimeout()))
			var wrapped quote.Provider = p
			if rpm := cfg.RapidYahoo.MaxRequestsPerMinute; rpm > 0 {
				wrapped = &ratelimit.Limited{
					P:  p,
					TB: ratelimit.NewTokenBucket(float64(rpm)/60.0, cfg.RapidYahoo.Burst),
				}
			}
			providers = append(providers, wrapped)
			expiries[rapidyahoo.Name] = time.Duration(cfg.RapidYahoo.CacheTTLSec) * time.Second
		} else {
			log.Warnf("provider %s enabled but no API key found, skipping", rapidyahoo.Name)
		}
	}

	if cfg.YFin.Enabled {
		providers = append(providers, yfin.New())
		expiries[yfin.Name] = time.Duration(cfg.YFin.CacheTTLSec) * time.Second
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no quote providers configured")
	}

	cache, err := buildCache(cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	tracker := health.NewTracker(cfg.Resolver.HealthCooldown())
	res := resolver.New(providers, cache, tracker, resolver.Config{
		ProviderTimeout:  cfg.Resolver.ProviderTimeout(),
		MaxRetries:       cfg.Resolver.MaxRetries,
		RetryBaseDelay:   cfg.Resolver.RetryBaseDelay(),
		DefaultExpiry:    cfg.Resolver.DefaultCacheTTL(),
		ExpiryByProvider: expiries,
		MaxConcurrent:    cfg.Resolver.MaxConcurrent,
	}, log)

	return &Pipeline{
		Resolver:  res,
		Cache:     cache,
		Health:    tracker,
		Providers: providers,
	}, nil
}

func (p *Pipeline) Close() error {
	return p.Cache.Close()
}

func buildCache(cfg config.Cache, log *logrus.Logger) (quotecache.Store, error) {
	switch cfg.Backend {
	case "redis":
		store, err := quotecache.NewRedis(quotecache.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Retention: cfg.Retention(),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return store, nil
	case "", "memory":
		return quotecache.NewMemory(cfg.SweepInterval(), cfg.Retention()), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
