// Package config loads service configuration from an optional JSON file with
// environment overrides on top. API keys are deliberately absent: they come
// from the secret store.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Server struct {
	Port              string `json:"port" env:"PORT"`
	RequestTimeoutSec int    `json:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC"`
}

type Logging struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

type Resolver struct {
	ProviderTimeoutSec int `json:"provider_timeout_sec" env:"PROVIDER_TIMEOUT_SEC"`
	MaxRetries         int `json:"max_retries" env:"RESOLVER_MAX_RETRIES"`
	RetryBaseDelayMs   int `json:"retry_base_delay_ms" env:"RESOLVER_RETRY_BASE_DELAY_MS"`
	HealthCooldownSec  int `json:"health_cooldown_sec" env:"HEALTH_COOLDOWN_SEC"`
	MaxConcurrent      int `json:"max_concurrent" env:"RESOLVER_MAX_CONCURRENT"`
	DefaultCacheTTLSec int `json:"default_cache_ttl_sec" env:"DEFAULT_CACHE_TTL_SEC"`
}

type Cache struct {
	Backend          string `json:"backend" env:"CACHE_BACKEND"` // memory | redis
	SweepIntervalSec int    `json:"sweep_interval_sec" env:"CACHE_SWEEP_INTERVAL_SEC"`
	RetentionHours   int    `json:"retention_hours" env:"CACHE_RETENTION_HOURS"`
	RedisAddr        string `json:"redis_addr" env:"CACHE_REDIS_ADDR"`
	RedisPassword    string `json:"-" env:"CACHE_REDIS_PASSWORD"`
	RedisDB          int    `json:"redis_db" env:"CACHE_REDIS_DB"`
}

type AlphaVantage struct {
	Enabled               bool   `json:"enabled" env:"ALPHAVANTAGE_ENABLED"`
	Endpoint              string `json:"endpoint" env:"ALPHAVANTAGE_ENDPOINT"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" env:"ALPHAVANTAGE_MIN_INTERVAL_SEC"`
	CacheTTLSec           int    `json:"cache_ttl_sec" env:"ALPHAVANTAGE_CACHE_TTL_SEC"`
}

type RapidYahoo struct {
	Enabled              bool   `json:"enabled" env:"RAPIDYAHOO_ENABLED"`
	Host                 string `json:"host" env:"RAPIDYAHOO_HOST"`
	Region               string `json:"region" env:"RAPIDYAHOO_REGION"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" env:"RAPIDYAHOO_MAX_RPM"`
	Burst                int    `json:"burst" env:"RAPIDYAHOO_BURST"`
	CacheTTLSec          int    `json:"cache_ttl_sec" env:"RAPIDYAHOO_CACHE_TTL_SEC"`
}

type YFin struct {
	Enabled     bool `json:"enabled" env:"YFIN_ENABLED"`
	CacheTTLSec int  `json:"cache_ttl_sec" env:"YFIN_CACHE_TTL_SEC"`
}

type Config struct {
	Server       Server       `json:"server"`
	Logging      Logging      `json:"logging"`
	Resolver     Resolver     `json:"resolver"`
	Cache        Cache        `json:"cache"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
	RapidYahoo   RapidYahoo   `json:"rapidyahoo"`
	YFin         YFin         `json:"yfin"`
}

func Default() Config {
	return Config{
		Server:  Server{Port: "8080", RequestTimeoutSec: 15},
		Logging: Logging{Level: "info", Format: "text"},
		Resolver: Resolver{
			ProviderTimeoutSec: 10,
			MaxRetries:         2,
			RetryBaseDelayMs:   500,
			HealthCooldownSec:  600,
			MaxConcurrent:      8,
			DefaultCacheTTLSec: 300,
		},
		Cache: Cache{
			Backend:          "memory",
			SweepIntervalSec: 60,
			RetentionHours:   24,
			RedisAddr:        "localhost:6379",
		},
		AlphaVantage: AlphaVantage{
			Enabled: true,
			// Free tier allows 5 requests per minute.
			MinRequestIntervalSec: 12,
			CacheTTLSec:           300,
		},
		RapidYahoo: RapidYahoo{
			Enabled:              true,
			Host:                 "yh-finance.p.rapidapi.com",
			Region:               "US",
			MaxRequestsPerMinute: 30,
			Burst:                5,
			CacheTTLSec:          300,
		},
		YFin: YFin{
			Enabled:     true,
			CacheTTLSec: 600,
		},
	}
}

// Load reads JSON config from path. If path is empty it falls back to
// config.json in the working directory, then defaults. Environment variables
// override file values.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return cfg, fmt.Errorf("apply env: %w", err)
	}
	return cfg, nil
}

// The JSON/env surface uses plain integers; everything downstream wants
// time.Duration.

func (s Server) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

func (r Resolver) ProviderTimeout() time.Duration {
	return time.Duration(r.ProviderTimeoutSec) * time.Second
}

func (r Resolver) RetryBaseDelay() time.Duration {
	return time.Duration(r.RetryBaseDelayMs) * time.Millisecond
}

func (r Resolver) HealthCooldown() time.Duration {
	return time.Duration(r.HealthCooldownSec) * time.Second
}

func (r Resolver) DefaultCacheTTL() time.Duration {
	return time.Duration(r.DefaultCacheTTLSec) * time.Second
}

func (c Cache) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c Cache) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
