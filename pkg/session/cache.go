package session

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// Cache holds credential records by public id in front of the token store.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached record. ok is false on a miss.
	Get(ctx context.Context, publicID string) (token *auth.SessionToken, ok bool, err error)
	Set(ctx context.Context, token *auth.SessionToken) error
	Delete(ctx context.Context, publicIDs ...string) error
	Close() error
}

const (
	// DefaultCacheSize bounds the in-process cache
	DefaultCacheSize = 10000
	// DefaultCacheTTL bounds how long a record is served without a store read
	DefaultCacheTTL = 5 * time.Minute

	cacheTypeMemory = "memory"
	cacheTypeRedis  = "redis"
)

// MemoryCache is an expiring in-process LRU
type MemoryCache struct {
	cache   *lru.LRU[string, *auth.SessionToken]
	metrics *observability.Metrics
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an LRU holding at most size records for ttl each
func NewMemoryCache(size int, ttl time.Duration, metrics *observability.Metrics) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		cache:   lru.NewLRU[string, *auth.SessionToken](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *MemoryCache) Get(ctx context.Context, publicID string) (*auth.SessionToken, bool, error) {
	token, ok := c.cache.Get(publicID)
	c.metrics.RecordCache(cacheTypeMemory, ok)
	if !ok {
		return nil, false, nil
	}
	cp := *token
	return &cp, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, token *auth.SessionToken) error {
	cp := *token
	c.cache.Add(token.PublicID, &cp)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, publicIDs ...string) error {
	for _, id := range publicIDs {
		c.cache.Remove(id)
	}
	return nil
}

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

func (c *MemoryCache) Close() error {
	c.cache.Purge()
	return nil
}
