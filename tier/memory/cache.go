package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/goSession/session"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of cached sessions.
const DefaultCacheSize = 10000

// Cache is an LRU-bounded cache tier. Entries are stored encoded, so callers never share
// maps with the cache.
type Cache struct {
	entries *lru.Cache[string, []byte]

	mu   sync.RWMutex
	fail error
}

// NewCache returns a cache holding at most size sessions.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Cache{entries: entries}
}

// SetUnavailable makes every operation fail with err until called again with nil.
func (c *Cache) SetUnavailable(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *Cache) fault() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fail
}

// Get implements session.Cache.
func (c *Cache) Get(_ context.Context, id string) (session.Record, bool, error) {
	if err := c.fault(); err != nil {
		return session.Record{}, false, err
	}
	raw, ok := c.entries.Get(id)
	if !ok {
		return session.Record{}, false, nil
	}
	rec, err := session.DecodeRecord(id, raw)
	if err != nil {
		return session.Record{}, false, err
	}
	return rec, true, nil
}

// Set implements session.Cache.
func (c *Cache) Set(_ context.Context, id string, rec session.Record) error {
	if err := c.fault(); err != nil {
		return err
	}
	raw, err := session.EncodeRecord(rec)
	if err != nil {
		return err
	}
	c.entries.Add(id, raw)
	return nil
}

// Delete implements session.Cache.
func (c *Cache) Delete(_ context.Context, id string) error {
	if err := c.fault(); err != nil {
		return err
	}
	c.entries.Remove(id)
	return nil
}

// Exists implements session.Cache.
func (c *Cache) Exists(_ context.Context, id string) (bool, error) {
	if err := c.fault(); err != nil {
		return false, err
	}
	return c.entries.Contains(id), nil
}

// Evict drops id without going through the store, simulating cache loss.
func (c *Cache) Evict(id string) {
	c.entries.Remove(id)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	return c.entries.Len()
}
