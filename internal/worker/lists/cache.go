package lists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/redis/go-redis/v9"
)

// CachedSource keeps list snapshots in Redis so that every run does not hit the provider.
// Redis failures fall through to the wrapped source.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps next with a Redis cache
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(storeID *int64) string {
	if storeID == nil {
		return "mailup:lists:global"
	}
	return "mailup:lists:" + strconv.FormatInt(*storeID, 10)
}

func (c *CachedSource) Lists(ctx context.Context, storeID *int64) ([]domain.List, error) {
	key := cacheKey(storeID)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var lists []domain.List
		if err := json.Unmarshal([]byte(val), &lists); err == nil {
			return lists, nil
		}
		c.logger.Warn("Discarding unreadable list cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("List cache unavailable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	lists, err := c.next.Lists(ctx, storeID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(lists)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lists: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache lists",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	return lists, nil
}
