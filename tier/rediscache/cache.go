package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis client failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	// DefaultPrefix namespaces session keys.
	DefaultPrefix = "sess"
	// DefaultGrace is added to the idle lifetime when computing key TTLs.
	DefaultGrace = time.Minute
)

// Cache stores session records in Redis.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a cache over client. ttl is the key lifetime applied on every Set; zero
// disables key expiry.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{redis: client, prefix: prefix, ttl: ttl}
}

// TTLFor returns the key lifetime for sessions idling at most expirationSeconds.
func TTLFor(expirationSeconds int64, grace time.Duration) time.Duration {
	if expirationSeconds <= 0 {
		return 0
	}
	if grace < 0 {
		grace = 0
	}
	return time.Duration(expirationSeconds)*time.Second + grace
}

func (c *Cache) key(id string) string {
	return c.prefix + ":" + id
}

// Get reads the record stored under id.
func (c *Cache) Get(ctx context.Context, id string) (session.Record, bool, error) {
	raw, err := c.redis.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.Record{}, false, nil
		}
		return session.Record{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := session.DecodeRecord(id, raw)
	if err != nil {
		return session.Record{}, false, err
	}
	return rec, true, nil
}

// Set writes rec under id and resets its TTL.
func (c *Cache) Set(ctx context.Context, id string, rec session.Record) error {
	raw, err := session.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(id), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes id. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Exists reports whether id is present.
func (c *Cache) Exists(ctx context.Context, id string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Ping measures the round trip to Redis.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
