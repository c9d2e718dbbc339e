package housekeeping

import (
	"context"
	"log/slog"
)

// BotStatusRefresher drops the cached bot status so it is rerolled on next read
type BotStatusRefresher struct {
	cache  BotStatusCache
	logger *slog.Logger
}

func NewBotStatusRefresher(cache BotStatusCache, logger *slog.Logger) *BotStatusRefresher {
	return &BotStatusRefresher{
		cache:  cache,
		logger: logger.With("job", "bot_status"),
	}
}

func (r *BotStatusRefresher) Run(ctx context.Context) error {
	if err := r.cache.Invalidate(ctx); err != nil {
		return err
	}
	r.logger.Debug("bot status invalidated")
	return nil
}
