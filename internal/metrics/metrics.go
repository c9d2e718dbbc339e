package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler metrics
	UnitPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_unit_passes_total",
		Help: "Completed passes per scheduled unit",
	}, []string{"unit"})
	UnitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_unit_failures_total",
		Help: "Passes that returned an error or panicked, per scheduled unit",
	}, []string{"unit"})
	UnitPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "housekeeper_unit_pass_duration_seconds",
		Help:    "Wall time of one pass of a periodic job",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"unit"})

	// Worker pool metrics
	PoolBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "housekeeper_pool_backlog",
		Help: "Tasks waiting for a worker, per pool kind",
	}, []string{"kind"})
	PoolTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_pool_tasks_total",
		Help: "Finished pool tasks by kind and outcome",
	}, []string{"kind", "outcome"})
	PoolSubmitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "housekeeper_pool_submit_wait_seconds",
		Help:    "Time a consumer waited to hand a task to its pool",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "housekeeper_queue_depth",
		Help: "Scores waiting in a pipeline queue, sampled on dequeue",
	}, []string{"consumer"})

	// Housekeeping metrics
	DonorsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housekeeper_donors_expired_total",
		Help: "Accounts whose donation privileges were revoked",
	})
	GhostsDisconnectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housekeeper_ghosts_disconnected_total",
		Help: "Sessions logged out for missing keep-alives",
	})
	LeaderboardWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housekeeper_leaderboard_writes_total",
		Help: "Leaderboard upserts issued by rank recalculation",
	})
	ScoresSanitizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housekeeper_scores_sanitized_total",
		Help: "Scores whose client data was scrubbed",
	})

	// Anti-cheat metrics
	ChecksTriggeredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_anticheat_checks_triggered_total",
		Help: "Anti-cheat checks that raised an alert, by check",
	}, []string{"check"})
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_anticheat_analyses_total",
		Help: "Suspect scores handled by the analyzer, by outcome",
	}, []string{"outcome"})
	AlertDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_alert_deliveries_total",
		Help: "Alert webhook deliveries by outcome",
	}, []string{"outcome"})
)
