package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/housekeeper/internal/analysis"
	"github.com/housekeeper/internal/anticheat"
	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/handler"
	"github.com/housekeeper/internal/housekeeping"
	"github.com/housekeeper/internal/kafka"
	"github.com/housekeeper/internal/postgres"
	"github.com/housekeeper/internal/queue"
	"github.com/housekeeper/internal/redis"
	"github.com/housekeeper/internal/sanitize"
	"github.com/housekeeper/internal/webhook"
	"github.com/housekeeper/internal/websocket"
	"github.com/housekeeper/internal/worker"
)

// pipeline is one queue-driven stage with its input and the sink the admin
// API enqueues onto
type pipeline struct {
	source housekeeping.ScoreQueue
	sink   handler.ScoreEnqueuer
	stop   func()
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisClient, err := redis.Connect(ctx, &cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	sessions := redis.NewSessionDirectory(redisClient, cfg.Redis.KeyPrefix)
	leaderboards := redis.NewLeaderboardStore(redisClient, cfg.Redis.KeyPrefix)
	botStatus := redis.NewBotStatusCache(redisClient, cfg.Redis.KeyPrefix)

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	records, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer records.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.Postgres.RunMigrations {
		if err := records.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// Operator channel
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Queues
	fresh, suspect := openPipelines(cfg, logger)

	// Worker pools
	sanitizePool := worker.NewPool(worker.SanitizationWorker,
		cfg.Pools.Sanitization.Workers, cfg.Pools.Sanitization.Backlog, cfg.Pools.Sanitization.TaskTimeout, logger)
	analysisPool := worker.NewPool(worker.AnalysisWorker,
		cfg.Pools.Analysis.Workers, cfg.Pools.Analysis.Backlog, cfg.Pools.Analysis.TaskTimeout, logger)
	sanitizePool.Start(ctx)
	analysisPool.Start(ctx)

	// Pipelines
	sanitizer := sanitize.NewSanitizer(cfg.Sanitize.Key, records, logger)
	analyzer := anticheat.NewAnalyzer(
		&cfg.AntiCheat,
		analysis.NewClient(&cfg.Analysis, logger),
		anticheat.NewHTTPReplayFetcher(&cfg.AntiCheat),
		webhook.NewDiscord(&cfg.Webhook, logger),
		logger,
	)

	sanitization := housekeeping.NewSanitizationConsumer(fresh.source, sanitizePool, sanitizer.Sanitize, logger)
	suspectReplays := housekeeping.NewSuspectReplayConsumer(suspect.source, analysisPool,
		func(ctx context.Context, score domain.Score) error {
			_, err := analyzer.Analyze(ctx, score)
			return err
		}, logger)

	// Scheduler
	hk := cfg.Housekeeping
	scheduler := worker.NewScheduler(logger)
	jobs := []worker.Job{
		{
			Name:           "donation_expiry",
			Interval:       hk.DonationInterval,
			RunImmediately: true,
			Run:            housekeeping.NewDonationReaper(records, sessions, hk.DonationExpiryText, logger).Run,
		},
		{
			Name:     "bot_status",
			Interval: hk.BotStatusInterval,
			Run:      housekeeping.NewBotStatusRefresher(botStatus, logger).Run,
		},
		{
			Name:     "ghost_reaper",
			Interval: hk.GhostInterval,
			Run:      housekeeping.NewGhostReaper(sessions, hk.GhostThreshold, logger).Run,
		},
		{
			Name:     "rank_recalc",
			Interval: hk.RankRecalcInterval,
			Run:      housekeeping.NewRankRecalculator(records, leaderboards, hub, hk.StaffChannel, logger).Run,
		},
	}
	for _, job := range jobs {
		if err := scheduler.Every(job); err != nil {
			logger.Error("failed to register job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}
	for _, c := range []*housekeeping.Consumer{sanitization, suspectReplays} {
		if err := scheduler.Go(c.Name(), c.Run); err != nil {
			logger.Error("failed to register consumer", "consumer", c.Name(), "error", err)
			os.Exit(1)
		}
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Admin HTTP server
	httpHandler := handler.NewHandler(handler.Deps{
		Units:        scheduler,
		Pools:        []handler.PoolSource{sanitizePool, analysisPool},
		Scores:       records,
		Fresh:        fresh.sink,
		Suspects:     suspect.sink,
		Leaderboards: leaderboards,
		Hub:          hub,
		Checks: map[string]handler.Pinger{
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"postgres": records.Ping,
		},
		PublicDir: cfg.AntiCheat.PublicDir,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting admin HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down housekeeper...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}
	fresh.stop()
	suspect.stop()

	for _, pool := range []*worker.Pool{sanitizePool, analysisPool} {
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to drain pool", "pool", pool.Kind(), "error", err)
		}
	}

	hub.Stop()
	logger.Info("housekeeper stopped")
}

// openPipelines returns Kafka-backed queues when enabled and reachable, and
// in-process queues otherwise
func openPipelines(cfg *config.Config, logger *slog.Logger) (fresh, suspect pipeline) {
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka pipelines", "brokers", cfg.Kafka.Brokers)
		f, ferr := openKafkaPipeline(cfg, cfg.Kafka.ScoreTopic, logger)
		s, serr := openKafkaPipeline(cfg, cfg.Kafka.SuspectTopic, logger)
		if ferr == nil && serr == nil {
			return f, s
		}
		logger.Warn("failed to start Kafka pipelines, continuing with in-process queues",
			"error", errors.Join(ferr, serr))
		if ferr == nil {
			f.stop()
		}
		if serr == nil {
			s.stop()
		}
	}

	buffer := cfg.Housekeeping.InMemoryQueueBuffer
	return memoryPipeline("fresh", buffer), memoryPipeline("suspect", buffer)
}

func memoryPipeline(name string, buffer int) pipeline {
	q := queue.NewChannelQueue(name, buffer)
	return pipeline{source: q, sink: q, stop: q.Close}
}

func openKafkaPipeline(cfg *config.Config, topic string, logger *slog.Logger) (pipeline, error) {
	source, err := kafka.NewScoreQueue(&cfg.Kafka, topic, logger)
	if err != nil {
		return pipeline{}, err
	}
	producer, err := kafka.NewProducer(&cfg.Kafka, topic, logger)
	if err != nil {
		source.Stop()
		return pipeline{}, err
	}
	if err := source.Start(); err != nil {
		source.Stop()
		producer.Close()
		return pipeline{}, err
	}

	return pipeline{
		source: source,
		sink:   producer,
		stop: func() {
			if err := source.Stop(); err != nil {
				logger.Error("failed to stop Kafka score queue", "topic", topic, "error", err)
			}
			if err := producer.Close(); err != nil {
				logger.Error("failed to close Kafka producer", "topic", topic, "error", err)
			}
		},
	}, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
