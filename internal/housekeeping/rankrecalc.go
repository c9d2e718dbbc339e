package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// RankRecalcStarted is announced to staff at the start of every pass
const RankRecalcStarted = "Auto rank recalculation started."

// RankRecalculator rebuilds the global and regional leaderboards from stats
type RankRecalculator struct {
	records      RecordStore
	leaderboards LeaderboardStore
	operator     OperatorChannel
	channel      string
	logger       *slog.Logger
}

func NewRankRecalculator(records RecordStore, leaderboards LeaderboardStore, operator OperatorChannel, channel string, logger *slog.Logger) *RankRecalculator {
	return &RankRecalculator{
		records:      records,
		leaderboards: leaderboards,
		operator:     operator,
		channel:      channel,
		logger:       logger.With("job", "rank_recalc"),
	}
}

// Run does one pass. Restricted accounts are skipped but not removed from
// boards they already sit on.
func (r *RankRecalculator) Run(ctx context.Context) error {
	r.operator.Announce(r.channel, RankRecalcStarted)

	rows, err := r.records.RankRows(ctx)
	if err != nil {
		return fmt.Errorf("listing rank rows: %w", err)
	}

	var (
		errs    []error
		written int
		skipped int
	)
	for _, row := range rows {
		if !row.Privileges.Has(domain.PrivNormal) {
			skipped++
			continue
		}
		if err := r.write(ctx, row); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}

	r.logger.Info("rank recalculation finished",
		"rows", len(rows),
		"written", written,
		"skipped", skipped,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

func (r *RankRecalculator) write(ctx context.Context, row domain.RankRow) error {
	if err := r.leaderboards.Upsert(ctx, domain.GlobalLeaderboardKey(row.Mode), row.UserID, row.Performance); err != nil {
		return fmt.Errorf("ranking %d in mode %d: %w", row.UserID, row.Mode, err)
	}
	metrics.LeaderboardWritesTotal.Inc()

	if err := r.leaderboards.Upsert(ctx, domain.RegionLeaderboardKey(row.Mode, row.Region()), row.UserID, row.Performance); err != nil {
		return fmt.Errorf("ranking %d in mode %d region %s: %w", row.UserID, row.Mode, row.Region(), err)
	}
	metrics.LeaderboardWritesTotal.Inc()
	return nil
}
