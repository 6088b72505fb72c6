package polls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aura-polls/backend/internal/models"
)

// ResultsKeyPrefix prefixes the Redis key holding a poll's cached tally.
const ResultsKeyPrefix = "poll:results:"

// RedisResultsCache caches computed results in Redis with a TTL.
type RedisResultsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultsCache creates a Redis results cache. ttl <= 0 disables expiry.
func NewResultsCache(client *redis.Client, ttl time.Duration) *RedisResultsCache {
	return &RedisResultsCache{client: client, ttl: ttl}
}

func resultsKey(pollID uuid.UUID) string {
	return ResultsKeyPrefix + pollID.String()
}

// Get returns cached results. ok is false on a miss.
func (c *RedisResultsCache) Get(ctx context.Context, pollID uuid.UUID) (results []models.PollResult, ok bool, err error) {
	raw, err := c.client.Get(ctx, resultsKey(pollID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get results: %w", err)
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, fmt.Errorf("decode results: %w", err)
	}
	return results, true, nil
}

// Set stores results for the configured TTL.
func (c *RedisResultsCache) Set(ctx context.Context, pollID uuid.UUID, results []models.PollResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := c.client.Set(ctx, resultsKey(pollID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set results: %w", err)
	}
	return nil
}

// Invalidate drops cached results for a poll.
func (c *RedisResultsCache) Invalidate(ctx context.Context, pollID uuid.UUID) error {
	if err := c.client.Del(ctx, resultsKey(pollID)).Err(); err != nil {
		return fmt.Errorf("del results: %w", err)
	}
	return nil
}
