package travel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache keeps recent search results in process
type Cache struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// NewCache creates a ristretto-backed cache. maxCostBytes is the maximum total
// size of cached values in bytes.
func NewCache(maxCostBytes int64, ttl time.Duration) (*Cache, error) {
	counters := maxCostBytes / 100 * 10 // ~10x expected items
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Load decodes the value stored under key into out
func (c *Cache) Load(_ context.Context, key string, out any) bool {
	if c == nil {
		return false
	}
	data, found := c.c.Get(key)
	if !found {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Store encodes value and keeps it for the cache TTL
func (c *Cache) Store(_ context.Context, key string, value any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.c.SetWithTTL(key, data, int64(len(data)), c.ttl)
	c.c.Wait()
}

// Close shuts down the cache and releases resources
func (c *Cache) Close() {
	if c != nil {
		c.c.Close()
	}
}
