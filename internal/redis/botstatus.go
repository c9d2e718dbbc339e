package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BotStatusCache is the cached presence line of the server bot. The game
// server recomputes and stores it on the next read after invalidation.
type BotStatusCache struct {
	client *redis.Client
	key    string
}

// NewBotStatusCache creates the cache handle
func NewBotStatusCache(client *redis.Client, prefix string) *BotStatusCache {
	return &BotStatusCache{
		client: client,
		key:    prefix + "bot:status",
	}
}

// Invalidate drops the cached status
func (c *BotStatusCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("invalidating bot status: %w", err)
	}
	return nil
}
