package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/observability"
)

const redisKeyPrefix = "tasktrack:session:"

// RedisCache shares credential records between instances. Revocation on one
// instance is visible to all of them.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

var _ Cache = (*RedisCache)(nil)

// cachedToken is the stored form. auth.SessionToken hides the hash from JSON.
type cachedToken struct {
	ID         int64     `json:"id"`
	PublicID   string    `json:"public_id"`
	UserID     int64     `json:"user_id"`
	SecretHash string    `json:"secret_hash"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRedisCache wraps an existing client. The client is owned by the caller.
func NewRedisCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, metrics: metrics}
}

func redisKey(publicID string) string {
	return redisKeyPrefix + publicID
}

func (c *RedisCache) Get(ctx context.Context, publicID string) (*auth.SessionToken, bool, error) {
	data, err := c.client.Get(ctx, redisKey(publicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.RecordCache(cacheTypeRedis, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var ct cachedToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached token: %w", err)
	}
	c.metrics.RecordCache(cacheTypeRedis, true)

	return &auth.SessionToken{
		ID:         ct.ID,
		PublicID:   ct.PublicID,
		UserID:     ct.UserID,
		SecretHash: ct.SecretHash,
		Name:       ct.Name,
		CreatedAt:  ct.CreatedAt,
	}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, token *auth.SessionToken) error {
	data, err := json.Marshal(cachedToken{
		ID:         token.ID,
		PublicID:   token.PublicID,
		UserID:     token.UserID,
		SecretHash: token.SecretHash,
		Name:       token.Name,
		CreatedAt:  token.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(token.PublicID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, publicIDs ...string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	keys := make([]string, len(publicIDs))
	for i, id := range publicIDs {
		keys[i] = redisKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Close is a no-op; the client is shared with the health checker
func (c *RedisCache) Close() error {
	return nil
}
