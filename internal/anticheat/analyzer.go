package anticheat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// Analysis is the replay analysis capability the checks read from
type Analysis interface {
	Decode(ctx context.Context, scoreID int64, raw []byte) (*domain.Replay, error)
	UnstableRate(ctx context.Context, replay *domain.Replay) (float64, error)
	MeanFrameTime(ctx context.Context, replay *domain.Replay) (float64, error)
	FrameTimes(ctx context.Context, replay *domain.Replay, corrected bool) ([]float64, error)
	Snaps(ctx context.Context, replay *domain.Replay) ([]domain.Snap, error)
	FrameTimeGraph(ctx context.Context, replay *domain.Replay) ([]byte, error)
}

// ReplayFetcher retrieves the raw replay of a score
type ReplayFetcher interface {
	Fetch(ctx context.Context, scoreID int64) ([]byte, error)
	URL(scoreID int64) string
}

// AlertSink delivers one batch of alerts
type AlertSink interface {
	Deliver(ctx context.Context, alerts []domain.Alert) error
}

// Check names, used as metric labels
const (
	CheckUnstableRate = "unstable_rate"
	CheckFrameTime    = "frame_time"
	CheckSnaps        = "snaps"
)

// Verdict is what one analysis concluded
type Verdict struct {
	ScoreID      int64
	Skipped      bool
	UnstableRate float64
	MeanFrame    float64
	Before       int
	After        int
	FrameRatio   float64
	Snaps        int
	Triggered    []string
	Alerts       []domain.Alert
}

// Analyzer runs the replay checks for one suspect score at a time and is
// safe for concurrent use
type Analyzer struct {
	cfg      *config.AntiCheatConfig
	analysis Analysis
	fetcher  ReplayFetcher
	sink     AlertSink
	logger   *slog.Logger
}

// NewAnalyzer wires an analyzer
func NewAnalyzer(cfg *config.AntiCheatConfig, analysis Analysis, fetcher ReplayFetcher, sink AlertSink, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		analysis: analysis,
		fetcher:  fetcher,
		sink:     sink,
		logger:   logger,
	}
}

// Analyze audits score and delivers every triggered alert in one batch.
// Unsupported modes and restricted players are skipped without touching the
// analysis service. Any analysis failure aborts without alerting.
func (a *Analyzer) Analyze(ctx context.Context, score domain.Score) (*Verdict, error) {
	v := &Verdict{ScoreID: score.ID}
	logger := a.logger.With("score_id", score.ID, "player", score.Player.String(), "mode", score.Mode.String())

	if !score.Mode.Analyzable() || score.Player.Restricted() {
		v.Skipped = true
		metrics.AnalysesTotal.WithLabelValues("skipped").Inc()
		logger.Debug("skipping replay analysis", "restricted", score.Player.Restricted())
		return v, nil
	}

	if err := a.run(ctx, &score, v); err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return v, fmt.Errorf("analyzing score %d: %w", score.ID, err)
	}

	if len(v.Alerts) == 0 {
		metrics.AnalysesTotal.WithLabelValues("clean").Inc()
		logger.Debug("replay passed every check")
		return v, nil
	}

	if err := a.sink.Deliver(ctx, v.Alerts); err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return v, fmt.Errorf("delivering alerts for score %d: %w", score.ID, err)
	}
	metrics.AnalysesTotal.WithLabelValues("flagged").Inc()
	logger.Info("suspicious replay reported", "checks", strings.Join(v.Triggered, ","))
	return v, nil
}

func (a *Analyzer) run(ctx context.Context, score *domain.Score, v *Verdict) error {
	// the replay file is written by the game server after the score row
	if err := sleep(ctx, a.cfg.SettleDelay); err != nil {
		return err
	}

	raw, err := a.fetcher.Fetch(ctx, score.ID)
	if err != nil {
		return err
	}
	replay, err := a.analysis.Decode(ctx, score.ID, raw)
	if err != nil {
		return err
	}

	var alerts []domain.Alert

	v.UnstableRate, err = a.analysis.UnstableRate(ctx, replay)
	if err != nil {
		return err
	}
	if v.UnstableRate < a.cfg.UnstableRateCap {
		v.trigger(CheckUnstableRate)
		alerts = append(alerts, a.unstableRateAlert(score, v.UnstableRate))
	}

	if score.Mode == domain.ModeRelaxOsu {
		alert, triggered, err := a.checkRelaxFrames(ctx, score, replay, v)
		if err != nil {
			return err
		}
		if triggered {
			v.trigger(CheckFrameTime)
			alerts = append(alerts, alert)
		}
	} else {
		v.MeanFrame, err = a.analysis.MeanFrameTime(ctx, replay)
		if err != nil {
			return err
		}
		if v.MeanFrame <= a.cfg.FrameTimeCap {
			v.trigger(CheckFrameTime)
			alerts = append(alerts, a.meanFrameTimeAlert(score, v.MeanFrame))
		}
	}

	snaps, err := a.analysis.Snaps(ctx, replay)
	if err != nil {
		return err
	}
	v.Snaps = len(snaps)
	if v.Snaps > a.cfg.SnapsCap {
		v.trigger(CheckSnaps)
		alerts = append(alerts, a.snapsAlert(score, v.Snaps))
	}

	v.Alerts = alerts
	return nil
}

func (a *Analyzer) checkRelaxFrames(ctx context.Context, score *domain.Score, replay *domain.Replay, v *Verdict) (domain.Alert, bool, error) {
	raw, err := a.analysis.FrameTimes(ctx, replay, false)
	if err != nil {
		return domain.Alert{}, false, err
	}

	v.Before, v.After = CountFrameTimes(raw, ConversionFactor(score.Mods))
	ratio, ok := FrameRatio(v.Before, v.After)
	v.FrameRatio = ratio
	if !ok || ratio > a.cfg.RelaxFrameRatioCap {
		return domain.Alert{}, false, nil
	}

	imageURL, err := a.saveFrameGraph(ctx, score.ID, replay)
	if err != nil {
		return domain.Alert{}, false, err
	}
	return a.frameRatioAlert(score, v.Before, v.After, ratio, imageURL), true, nil
}

// saveFrameGraph writes the graph under the public dir and returns its URL
func (a *Analyzer) saveFrameGraph(ctx context.Context, scoreID int64, replay *domain.Replay) (string, error) {
	graph, err := a.analysis.FrameTimeGraph(ctx, replay)
	if err != nil {
		return "", err
	}

	name := FrameGraphName(scoreID)
	if err := os.MkdirAll(a.cfg.PublicDir, 0o755); err != nil {
		return "", fmt.Errorf("creating graph dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.cfg.PublicDir, name), graph, 0o644); err != nil {
		return "", fmt.Errorf("writing frame graph: %w", err)
	}
	return strings.TrimRight(a.cfg.PublicURL, "/") + "/" + name, nil
}

// FrameGraphName is the file name of a score's frame-time graph
func FrameGraphName(scoreID int64) string {
	return fmt.Sprintf("%d_ft.png", scoreID)
}

func (v *Verdict) trigger(check string) {
	v.Triggered = append(v.Triggered, check)
	metrics.ChecksTriggeredTotal.WithLabelValues(check).Inc()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
