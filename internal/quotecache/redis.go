package quotecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"deepticker/internal/quote"
)

const redisKeyPrefix = "deepticker:quote:"

// Redis is a Store backed by a Redis server, for deployments that want the
// cache to survive process restarts. The Redis TTL is the entry expiry plus a
// retention window so entries remain readable as stale fallback after their
// freshness window ends.
type Redis struct {
	client    *redis.Client
	retention time.Duration
	log       *logrus.Entry
}

// RedisOptions configures the Redis store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Retention is how long entries outlive their expiry. Defaults to 24h.
	Retention time.Duration
}

func NewRedis(opts RedisOptions, log *logrus.Logger) (*Redis, error) {
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		client:    client,
		retention: opts.Retention,
		log:       log.WithField("component", "quotecache.redis"),
	}, nil
}

func (r *Redis) Put(ctx context.Context, q quote.Quote, expiry time.Duration) error {
	e := Entry{Quote: q, StoredAt: time.Now(), Expiry: expiry}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	key := redisKeyPrefix + quote.NormalizeSymbol(q.Symbol)
	if err := r.client.Set(ctx, key, b, expiry+r.retention).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, symbol string) (Entry, bool, error) {
	key := redisKeyPrefix + quote.NormalizeSymbol(symbol)
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		// A corrupt entry is useless; drop it so the next Put starts clean.
		r.log.WithError(err).WithField("key", key).Warn("dropping undecodable cache entry")
		_ = r.client.Del(ctx, key).Err()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (r *Redis) Delete(ctx context.Context, symbol string) error {
	return r.client.Del(ctx, redisKeyPrefix+quote.NormalizeSymbol(symbol)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
