package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache stores summaries of ended sessions, which never change.
type SummaryCache interface {
	Get(ctx context.Context, sessionID string) (Summary, bool, error)
	Put(ctx context.Context, sum Summary) error
}

// RedisSummaryCache keeps summaries as JSON strings under prefix+sessionID.
type RedisSummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSummaryCache creates a cache whose entries expire after ttl (0 keeps them forever).
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	return &RedisSummaryCache{client: client, prefix: "checkin:summary:", ttl: ttl}
}

func (c *RedisSummaryCache) Get(ctx context.Context, sessionID string) (Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, err
	}
	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return Summary{}, false, err
	}
	return sum, true, nil
}

func (c *RedisSummaryCache) Put(ctx context.Context, sum Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+sum.SessionID, raw, c.ttl).Err()
}
