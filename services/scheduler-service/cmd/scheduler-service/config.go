package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookslot/libs/config"
	"github.com/spf13/cobra"
)

const (
	driverMemory   = "memory"
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"scheduler-service"`
	Port        string `envconfig:"PORT" default:"8087"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9087"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"bookslot.db"`

	KafkaBrokers    string        `envconfig:"KAFKA_BROKERS"`
	NATSURL         string        `envconfig:"NATS_URL"`
	OutboxPollEvery time.Duration `envconfig:"OUTBOX_POLL_EVERY" default:"2s"`
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`

	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// loadConfig reads the environment, applies flag overrides from cmd and
// validates the result.
func loadConfig(cmd *cobra.Command) (Config, error) {
	var cfg Config
	if err := config.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if f := cmd.Flags().Lookup("storage"); f != nil && f.Changed {
		cfg.StorageDriver = f.Value.String()
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Port = f.Value.String()
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := config.ValidatePort("PORT", c.Port); err != nil {
		return err
	}
	if err := config.ValidatePort("GRPC_PORT", c.GRPCPort); err != nil {
		return err
	}
	switch c.StorageDriver {
	case driverMemory:
	case driverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case driverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want memory, sqlite or postgres)", c.StorageDriver)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}
