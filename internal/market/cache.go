package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"signalist/internal/models"
)

// QuoteCache keeps the last good quote map so a failed refresh can fall back
// to it.
type QuoteCache interface {
	Load(ctx context.Context) (models.Quotes, bool, error)
	Store(ctx context.Context, quotes models.Quotes) error
}

const redisQuotesKey = "signalist:quotes:last"

type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	return &RedisQuoteCache{client: client, ttl: ttl}
}

func (c *RedisQuoteCache) Load(ctx context.Context) (models.Quotes, bool, error) {
	data, err := c.client.Get(ctx, redisQuotesKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cached quotes: %w", err)
	}

	var quotes models.Quotes
	if err := json.Unmarshal(data, &quotes); err != nil {
		// A damaged entry is the same as no entry.
		return nil, false, nil
	}
	return quotes, true, nil
}

func (c *RedisQuoteCache) Store(ctx context.Context, quotes models.Quotes) error {
	data, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("encode quotes: %w", err)
	}
	if err := c.client.Set(ctx, redisQuotesKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store cached quotes: %w", err)
	}
	return nil
}

type MemoryQuoteCache struct {
	mu     sync.RWMutex
	quotes models.Quotes
}

func NewMemoryQuoteCache() *MemoryQuoteCache {
	return &MemoryQuoteCache{}
}

func (c *MemoryQuoteCache) Load(_ context.Context) (models.Quotes, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.quotes == nil {
		return nil, false, nil
	}
	return Merge(nil, c.quotes), true, nil
}

func (c *MemoryQuoteCache) Store(_ context.Context, quotes models.Quotes) error {
	c.mu.Lock()
	c.quotes = Merge(nil, quotes)
	c.mu.Unlock()
	return nil
}
