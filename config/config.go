package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	minQueueTTL = 60 * time.Second
	maxQueueTTL = 300 * time.Second
)

// Config is the process configuration read from the environment.
type Config struct {
	Port             string   `env:"PORT"               envDefault:":5200"`
	StoreDriver      string   `env:"STORE_DRIVER"       envDefault:"postgres"`
	DatabaseURL      string   `env:"DATABASE_URL"`
	GameServiceToken string   `env:"GAME_SERVICE_TOKEN"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS"    envDefault:"http://localhost:3000" envSeparator:","`
	LogLevel         string   `env:"LOG_LEVEL"          envDefault:"info"`
	LogFormat        string   `env:"LOG_FORMAT"         envDefault:"json"`

	QueueTTL           time.Duration `env:"QUEUE_TTL"            envDefault:"300s"`
	QueueSweepInterval time.Duration `env:"QUEUE_SWEEP_INTERVAL" envDefault:"30s"`
	TurnLockLease      time.Duration `env:"TURN_LOCK_LEASE"      envDefault:"10s"`

	RatingK       int    `env:"RATING_K"       envDefault:"50"`
	DefaultRating int    `env:"DEFAULT_RATING" envDefault:"1000"`
	DefaultTitle  string `env:"DEFAULT_TITLE"  envDefault:"Novice"`

	WatchPollInterval time.Duration `env:"WATCH_POLL_INTERVAL" envDefault:"1s"`
	PartialUpdateMode bool          `env:"PARTIAL_UPDATE_MODE" envDefault:"true"`

	NatsURL           string `env:"NATS_URL"`
	NatsSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"memory.match"`

	ArchiveBucket          string        `env:"ARCHIVE_BUCKET"`
	ArchiveEndpoint        string        `env:"ARCHIVE_ENDPOINT"`
	ArchiveAccessKeyID     string        `env:"ARCHIVE_ACCESS_KEY_ID"`
	ArchiveSecretAccessKey string        `env:"ARCHIVE_SECRET_ACCESS_KEY"`
	ArchiveRegion          string        `env:"ARCHIVE_REGION"   envDefault:"auto"`
	ArchiveInterval        time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"5m"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the environment into a validated Config.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalises the config and rejects unusable combinations.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.GameServiceToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN is not set, service cannot authenticate the gateway")
	}

	if c.QueueTTL < minQueueTTL {
		c.QueueTTL = minQueueTTL
	}
	if c.QueueTTL > maxQueueTTL {
		c.QueueTTL = maxQueueTTL
	}
	if c.QueueSweepInterval <= 0 {
		return fmt.Errorf("QUEUE_SWEEP_INTERVAL must be positive")
	}
	if c.TurnLockLease <= 0 {
		return fmt.Errorf("TURN_LOCK_LEASE must be positive")
	}
	if c.RatingK <= 0 {
		return fmt.Errorf("RATING_K must be positive, got %d", c.RatingK)
	}
	if c.WatchPollInterval <= 0 {
		return fmt.Errorf("WATCH_POLL_INTERVAL must be positive")
	}
	if c.ArchiveBucket != "" && c.ArchiveInterval <= 0 {
		return fmt.Errorf("ARCHIVE_INTERVAL must be positive")
	}

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	return nil
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func (c Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("unknown LOG_LEVEL %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logrus.SetFormatter(&logrus.JSONFormatter{PrettyPrint: false})
}
