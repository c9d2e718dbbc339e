package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Pools        PoolsConfig        `yaml:"pools"`
	AntiCheat    AntiCheatConfig    `yaml:"anticheat"`
	Analysis     AnalysisConfig     `yaml:"analysis"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Sanitize     SanitizeConfig     `yaml:"sanitize"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// KeyPrefix namespaces every key shared with the game server.
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	RunMigrations   bool          `yaml:"run_migrations"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	GroupID      string   `yaml:"group_id"`
	Enabled      bool     `yaml:"enabled"`
	ScoreTopic   string   `yaml:"score_topic"`
	SuspectTopic string   `yaml:"suspect_topic"`
	// Buffer is the number of decoded scores held between Kafka and a consumer.
	Buffer int `yaml:"buffer"`
	// StartTimeout bounds the wait for the first group session.
	StartTimeout time.Duration `yaml:"start_timeout"`
	// RetryBackoff is the pause between failed group sessions.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// HousekeepingConfig holds the periodic job schedule
type HousekeepingConfig struct {
	DonationInterval    time.Duration `yaml:"donation_interval"`
	BotStatusInterval   time.Duration `yaml:"bot_status_interval"`
	GhostInterval       time.Duration `yaml:"ghost_interval"`
	GhostThreshold      time.Duration `yaml:"ghost_threshold"`
	RankRecalcInterval  time.Duration `yaml:"rank_recalc_interval"`
	StaffChannel        string        `yaml:"staff_channel"`
	DonationExpiryText  string        `yaml:"donation_expiry_text"`
	InMemoryQueueBuffer int           `yaml:"in_memory_queue_buffer"`
}

// PoolConfig sizes one bounded worker pool
type PoolConfig struct {
	Workers     int           `yaml:"workers"`
	Backlog     int           `yaml:"backlog"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// PoolsConfig holds the per-consumer worker pools
type PoolsConfig struct {
	Sanitization PoolConfig `yaml:"sanitization"`
	Analysis     PoolConfig `yaml:"analysis"`
}

// AntiCheatConfig holds replay audit thresholds and public paths
type AntiCheatConfig struct {
	Domain             string        `yaml:"domain"`
	UnstableRateCap    float64       `yaml:"unstable_rate_cap"`
	FrameTimeCap       float64       `yaml:"frame_time_cap"`
	RelaxFrameRatioCap float64       `yaml:"rx_frame_time_ratio_cap"`
	SnapsCap           int           `yaml:"snaps_cap"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
	ReplayURL          string        `yaml:"replay_url"`
	ReplayTimeout      time.Duration `yaml:"replay_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	PublicDir          string        `yaml:"public_dir"`
	PublicURL          string        `yaml:"public_url"`
	ThumbnailURL       string        `yaml:"thumbnail_url"`
}

// AnalysisConfig points at the replay analysis service
type AnalysisConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookConfig holds alert delivery configuration
type WebhookConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// SanitizeConfig holds the key used to digest client checksums
type SanitizeConfig struct {
	Key string `yaml:"key"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "bancho:"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "housekeeper"
	}
	if c.Kafka.ScoreTopic == "" {
		c.Kafka.ScoreTopic = "scores.submitted"
	}
	if c.Kafka.SuspectTopic == "" {
		c.Kafka.SuspectTopic = "scores.suspect"
	}
	if c.Kafka.Buffer == 0 {
		c.Kafka.Buffer = 64
	}
	if c.Kafka.StartTimeout == 0 {
		c.Kafka.StartTimeout = 15 * time.Second
	}
	if c.Kafka.RetryBackoff == 0 {
		c.Kafka.RetryBackoff = 2 * time.Second
	}

	// Housekeeping defaults
	if c.Housekeeping.DonationInterval == 0 {
		c.Housekeeping.DonationInterval = 30 * time.Minute
	}
	if c.Housekeeping.BotStatusInterval == 0 {
		c.Housekeeping.BotStatusInterval = 5 * time.Minute
	}
	if c.Housekeeping.GhostInterval == 0 {
		c.Housekeeping.GhostInterval = 100 * time.Second
	}
	if c.Housekeeping.GhostThreshold == 0 {
		c.Housekeeping.GhostThreshold = 100 * time.Second
	}
	if c.Housekeeping.RankRecalcInterval == 0 {
		c.Housekeeping.RankRecalcInterval = 24 * time.Hour
	}
	if c.Housekeeping.StaffChannel == "" {
		c.Housekeeping.StaffChannel = "#staff"
	}
	if c.Housekeeping.DonationExpiryText == "" {
		c.Housekeeping.DonationExpiryText = "Your supporter status has expired."
	}
	if c.Housekeeping.InMemoryQueueBuffer == 0 {
		c.Housekeeping.InMemoryQueueBuffer = 256
	}

	// Pool defaults
	applyPoolDefaults(&c.Pools.Sanitization, 4, 64, 30*time.Second)
	applyPoolDefaults(&c.Pools.Analysis, 8, 32, 2*time.Minute)

	// Anti-cheat defaults
	if c.AntiCheat.Domain == "" {
		c.AntiCheat.Domain = "okayu.me"
	}
	if c.AntiCheat.SettleDelay == 0 {
		c.AntiCheat.SettleDelay = 500 * time.Millisecond
	}
	if c.AntiCheat.ReplayURL == "" {
		c.AntiCheat.ReplayURL = fmt.Sprintf("https://api.%s/get_replay", c.AntiCheat.Domain)
	}
	if c.AntiCheat.ReplayTimeout == 0 {
		c.AntiCheat.ReplayTimeout = 15 * time.Second
	}
	if c.AntiCheat.PublicDir == "" {
		c.AntiCheat.PublicDir = "static/framegraphs"
	}
	if c.AntiCheat.PublicURL == "" {
		c.AntiCheat.PublicURL = fmt.Sprintf("https://osu.%s/static/framegraphs", c.AntiCheat.Domain)
	}
	if c.AntiCheat.ThumbnailURL == "" {
		c.AntiCheat.ThumbnailURL = fmt.Sprintf("https://osu.%s/static/ingame.png", c.AntiCheat.Domain)
	}

	// Analysis defaults
	if c.Analysis.URL == "" {
		c.Analysis.URL = "http://localhost:8090"
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 30 * time.Second
	}

	// Webhook defaults
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Webhook.RatePerSecond == 0 {
		c.Webhook.RatePerSecond = 0.5
	}
	if c.Webhook.Burst == 0 {
		c.Webhook.Burst = 5
	}
}

func applyPoolDefaults(p *PoolConfig, workers, backlog int, timeout time.Duration) {
	if p.Workers == 0 {
		p.Workers = workers
	}
	if p.Backlog == 0 {
		p.Backlog = backlog
	}
	if p.TaskTimeout == 0 {
		p.TaskTimeout = timeout
	}
}

// Validate checks invariants that defaults cannot repair
func (c *Config) Validate() error {
	var errs []error

	intervals := map[string]time.Duration{
		"housekeeping.donation_interval":    c.Housekeeping.DonationInterval,
		"housekeeping.bot_status_interval":  c.Housekeeping.BotStatusInterval,
		"housekeeping.ghost_interval":       c.Housekeeping.GhostInterval,
		"housekeeping.ghost_threshold":      c.Housekeeping.GhostThreshold,
		"housekeeping.rank_recalc_interval": c.Housekeeping.RankRecalcInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	pools := map[string]PoolConfig{
		"pools.sanitization": c.Pools.Sanitization,
		"pools.analysis":     c.Pools.Analysis,
	}
	for name, p := range pools {
		if p.Workers <= 0 {
			errs = append(errs, fmt.Errorf("%s.workers must be positive", name))
		}
		if p.Backlog < 0 {
			errs = append(errs, fmt.Errorf("%s.backlog must not be negative", name))
		}
	}

	if c.AntiCheat.SnapsCap < 0 {
		errs = append(errs, errors.New("anticheat.snaps_cap must not be negative"))
	}
	if c.AntiCheat.SettleDelay < 0 {
		errs = append(errs, errors.New("anticheat.settle_delay must not be negative"))
	}

	return errors.Join(errs...)
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
