package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/types"
)

const statusTTL = 30 * time.Second

// StatusCache memoizes provider connectivity probes per (clinic,
// channel) so a burst of dispatches does not hammer the provider status
// endpoints. A nil cache is valid and falls through to the probe.
type StatusCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewStatusCache creates a connectivity cache backed by redis
func NewStatusCache(client *redis.Client, log *zap.Logger) *StatusCache {
	return &StatusCache{client: client, log: log}
}

func statusKey(clinicID types.ID, ch Channel) string {
	return fmt.Sprintf("provider:status:%s:%s", clinicID, ch)
}

// Connected answers whether the channel's provider is connected for the
// clinic, consulting the cache before running probe. Cache failures
// degrade to a direct probe; a probe result is cached best-effort.
func (c *StatusCache) Connected(ctx context.Context, clinicID types.ID, ch Channel, probe func(context.Context) (bool, error)) (bool, error) {
	if c == nil || c.client == nil {
		return probe(ctx)
	}

	key := statusKey(clinicID, ch)
	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	if err != redis.Nil {
		c.log.Warn("provider status cache read failed",
			zap.String("key", key),
			zap.Error(err))
	}

	connected, err := probe(ctx)
	if err != nil {
		return false, err
	}

	cached := "0"
	if connected {
		cached = "1"
	}
	if err := c.client.Set(ctx, key, cached, statusTTL).Err(); err != nil {
		c.log.Warn("provider status cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}

	return connected, nil
}

// Invalidate drops the cached status for a clinic's channel, forcing the
// next dispatch to probe the provider again.
func (c *StatusCache) Invalidate(ctx context.Context, clinicID types.ID, ch Channel) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statusKey(clinicID, ch)).Err(); err != nil {
		c.log.Warn("provider status cache invalidation failed", zap.Error(err))
	}
}
