package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// GhostReaper logs out sessions whose client stopped pinging
type GhostReaper struct {
	sessions  SessionDirectory
	threshold time.Duration
	now       Clock
	logger    *slog.Logger
}

// NewGhostReaper creates a reaper that disconnects sessions idle for longer
// than threshold
func NewGhostReaper(sessions SessionDirectory, threshold time.Duration, logger *slog.Logger) *GhostReaper {
	return &GhostReaper{
		sessions:  sessions,
		threshold: threshold,
		now:       time.Now,
		logger:    logger.With("job", "ghost_reaper"),
	}
}

// Run does one pass against a single snapshot of the clock
func (r *GhostReaper) Run(ctx context.Context) error {
	now := r.now()

	players, err := r.sessions.Online(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	var errs []error
	for _, p := range players {
		idle := now.Sub(p.LastActivity)
		if idle <= r.threshold {
			continue
		}
		if err := r.sessions.Logout(ctx, p.ID); err != nil {
			if errors.Is(err, domain.ErrPlayerNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("logging out %s: %w", p.String(), err))
			continue
		}
		metrics.GhostsDisconnectedTotal.Inc()
		r.logger.Info("auto-disconnected ghost", "player", p.String(), "idle", idle.Round(time.Second))
	}
	return errors.Join(errs...)
}
