// Package config loads service settings from the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Port        string `envconfig:"PORT" default:"3000"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"50051"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"memory"`
	SQLiteFile  string `envconfig:"SQLITE_FILE" default:"dev.sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	NATSURL       string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	SubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"gamefilter"`
	StreamName    string `envconfig:"NATS_STREAM" default:"GAMEFILTER_SNAPSHOTS"`

	ClickHouse ClickHouse
	Authentik  Authentik

	SchedulerTick time.Duration `envconfig:"SCHEDULER_TICK" default:"250ms"`
	CASRetries    int           `envconfig:"CAS_RETRIES" default:"3"`
	PoolCacheSize int           `envconfig:"POOL_CACHE_SIZE" default:"512"`
	PoolCacheTTL  time.Duration `envconfig:"POOL_CACHE_TTL" default:"5m"`

	// PopularityWeight scales the pick-rate boost in candidate ranking
	PopularityWeight float64 `envconfig:"POPULARITY_WEIGHT" default:"2"`
}

type ClickHouse struct {
	Addr     string `envconfig:"CLICKHOUSE_ADDR" default:"localhost:9000"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"default"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
}

type Authentik struct {
	BaseURL      string `envconfig:"AUTHENTIK_BASE_URL"`
	ClientID     string `envconfig:"AUTHENTIK_CLIENT_ID"`
	ClientSecret string `envconfig:"AUTHENTIK_CLIENT_SECRET"`
	RedirectURL  string `envconfig:"AUTHENTIK_REDIRECT_URL" default:"http://localhost:3000/auth/callback"`
}

// Development reports whether in-process stand-ins replace external services
func (c Config) Development() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("processing the config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "memory", "sqlite":
	case "postgres":
		// development falls back to the SQLite-backed mock
		if c.DatabaseURL == "" && !c.Development() {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (valid: memory, sqlite, postgres)", c.DBDriver)
	}
	if c.CASRetries < 1 {
		return fmt.Errorf("CAS_RETRIES must be at least 1, got %d", c.CASRetries)
	}
	if c.SchedulerTick <= 0 {
		return fmt.Errorf("SCHEDULER_TICK must be positive, got %s", c.SchedulerTick)
	}
	if !c.Development() && (c.Authentik.BaseURL == "" || c.Authentik.ClientID == "" || c.Authentik.ClientSecret == "") {
		return errors.New("AUTHENTIK_BASE_URL, AUTHENTIK_CLIENT_ID and AUTHENTIK_CLIENT_SECRET are required outside development")
	}
	return nil
}
