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

// DonationReaper revokes donation privileges once their period ends
type DonationReaper struct {
	records  RecordStore
	sessions SessionDirectory
	message  string
	now      Clock
	logger   *slog.Logger
}

// NewDonationReaper creates the reaper; message is sent to online players
func NewDonationReaper(records RecordStore, sessions SessionDirectory, message string, logger *slog.Logger) *DonationReaper {
	return &DonationReaper{
		records:  records,
		sessions: sessions,
		message:  message,
		now:      time.Now,
		logger:   logger.With("job", "donation_expiry"),
	}
}

// Run does one pass. Records that fail are logged and skipped; the joined
// I/O errors are returned so the pass counts as failed.
func (r *DonationReaper) Run(ctx context.Context) error {
	now := r.now()

	ids, err := r.records.ExpiredDonors(ctx, now)
	if err != nil {
		return fmt.Errorf("listing expired donors: %w", err)
	}
	r.logger.Debug("removing expired donation privileges", "candidates", len(ids))

	var errs []error
	for _, id := range ids {
		if err := r.expire(ctx, id, now); err != nil {
			if errors.Is(err, domain.ErrPlayerNotFound) {
				r.logger.Warn("skipping unresolved donor", "player_id", id, "error", err)
				continue
			}
			r.logger.Error("failed to expire donor", "player_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *DonationReaper) expire(ctx context.Context, id int64, now time.Time) error {
	p, err := resolvePlayer(ctx, r.sessions, r.records, id)
	if err != nil {
		return err
	}

	priv, changed, err := r.records.RevokeDonor(ctx, id, now)
	if err != nil {
		return err
	}
	if !changed {
		// renewed or revoked since the listing
		return nil
	}
	p.Privileges = priv
	p.DonorEnd = time.Time{}

	if p.Online {
		if err := r.sessions.SetPrivileges(ctx, id, priv); err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
			return fmt.Errorf("mirroring privileges of %s: %w", p, err)
		}
		if err := r.sessions.Notify(ctx, id, r.message); err != nil {
			return fmt.Errorf("notifying %s: %w", p, err)
		}
	}

	metrics.DonorsExpiredTotal.Inc()
	r.logger.Info("supporter status expired", "player", p.String(), "online", p.Online)
	return nil
}

// resolvePlayer prefers the live session and falls back to the record store
func resolvePlayer(ctx context.Context, sessions SessionDirectory, records RecordStore, id int64) (*domain.Player, error) {
	p, err := sessions.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return nil, fmt.Errorf("resolving player %d: %w", id, err)
	}

	p, err = records.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolving player %d: %w", id, err)
	}
	p.Online = false
	return p, nil
}
