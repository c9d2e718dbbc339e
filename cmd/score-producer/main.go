package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/kafka"
	"github.com/housekeeper/internal/postgres"
	"golang.org/x/time/rate"
)

var playerNames = []string{
	"cookiezi", "rafis", "mrekk", "whitecat", "vaxei", "aetrna", "lifeline", "merami",
	"akolibed", "ryuk", "flyingtuna", "bartek", "yaong", "idke", "dereban", "micca",
}

var beatmaps = []domain.Beatmap{
	{ID: 129891, FullName: "xi - FREEDOM DiVE [FOUR DIMENSIONS]"},
	{ID: 658127, FullName: "Camellia - Exit This Earth's Atomosphere [Evolution]"},
	{ID: 2097898, FullName: "Sota Fujimori - Polaris [Expert]"},
	{ID: 1860169, FullName: "Will Stetson - Harumachi Clover [Fiery's Extreme]"},
}

var modes = []domain.GameMode{domain.ModeVanillaOsu, domain.ModeRelaxOsu, domain.ModeAutopilotOsu, domain.ModeVanillaTaiko}

var modCombos = []domain.Mods{0, domain.ModHidden, domain.ModDoubleTime | domain.ModHidden, domain.ModHalfTime, domain.ModHardRock}

func syntheticScore(id int64) domain.Score {
	player := rand.Intn(len(playerNames))
	mode := modes[rand.Intn(len(modes))]
	mods := modCombos[rand.Intn(len(modCombos))]
	if mode == domain.ModeRelaxOsu {
		mods |= domain.ModRelax
	}
	return domain.Score{
		ID:   id,
		Mode: mode,
		Mods: mods,
		Player: domain.Player{
			ID:         int64(player + 3),
			Name:       playerNames[player],
			Privileges: domain.PrivNormal | domain.PrivVerified,
			Country:    "xx",
		},
		Beatmap:        beatmaps[rand.Intn(len(beatmaps))],
		ClientChecksum: fmt.Sprintf("%032x", rand.Int63()),
		ClientFlags:    int32(rand.Intn(4)),
	}
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid score id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	pipeline := flag.String("pipeline", "suspect", "Target pipeline: fresh or suspect")
	ids := flag.String("ids", "", "Comma-separated score ids to load from PostgreSQL")
	count := flag.Int("synthetic", 0, "Number of synthetic scores to publish")
	startID := flag.Int64("start-id", 1_000_000, "First id used for synthetic scores")
	perSecond := flag.Float64("rate", 10, "Scores published per second")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	var topic string
	switch *pipeline {
	case "fresh":
		topic = cfg.Kafka.ScoreTopic
	case "suspect":
		topic = cfg.Kafka.SuspectTopic
	default:
		logger.Error("unknown pipeline", "pipeline", *pipeline)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scores []domain.Score
	if *ids != "" {
		scores, err = loadScores(ctx, cfg, *ids, logger)
		if err != nil {
			logger.Error("failed to load scores", "error", err)
			os.Exit(1)
		}
	}
	for i := 0; i < *count; i++ {
		scores = append(scores, syntheticScore(*startID+int64(i)))
	}
	if len(scores) == 0 {
		logger.Error("nothing to publish: pass -ids or -synthetic")
		os.Exit(2)
	}

	producer, err := kafka.NewProducer(&cfg.Kafka, topic, logger)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Score producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:   %s\n", strings.Join(cfg.Kafka.Brokers, ","))
	fmt.Printf("  Topic:     %s\n", topic)
	fmt.Printf("  Scores:    %d\n", len(scores))
	fmt.Printf("  Rate:      %.1f/sec\n", *perSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	limiter := rate.NewLimiter(rate.Limit(*perSecond), 1)
	start := time.Now()
	var sent, failed int
	for _, score := range scores {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := producer.Enqueue(ctx, score); err != nil {
			failed++
			logger.Error("failed to publish score", "score_id", score.ID, "error", err)
			continue
		}
		sent++
		fmt.Printf("\r  Progress: %d/%d", sent+failed, len(scores))
	}

	fmt.Printf("\n✓ Completed in %s. Sent: %d, Errors: %d\n", time.Since(start).Round(time.Millisecond), sent, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func loadScores(ctx context.Context, cfg *config.Config, raw string, logger *slog.Logger) ([]domain.Score, error) {
	ids, err := parseIDs(raw)
	if err != nil {
		return nil, err
	}

	repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	scores := make([]domain.Score, 0, len(ids))
	for _, id := range ids {
		score, err := repo.GetScore(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("score %d: %w", id, err)
		}
		scores = append(scores, *score)
	}
	return scores, nil
}
