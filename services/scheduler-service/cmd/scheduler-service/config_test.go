package main

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("storage", "", "")
	cmd.Flags().String("port", "", "")
	return cmd
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "GRPC_PORT", "STORAGE_DRIVER", "DATABASE_URL", "OUTBOX_BATCH_SIZE", "OUTBOX_POLL_EVERY"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	cfg, err := loadConfig(testCommand())
	require.NoError(t, err)
	assert.Equal(t, "8087", cfg.Port)
	assert.Equal(t, driverMemory, cfg.StorageDriver)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollEvery)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORAGE_DRIVER", "memory")
	cmd := testCommand()
	require.NoError(t, cmd.Flags().Set("port", "9100"))
	require.NoError(t, cmd.Flags().Set("storage", "SQLite"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, driverSQLite, cfg.StorageDriver)
}

func TestConfigValidate(t *testing.T) {
	base := Config{Port: "8087", GRPCPort: "9087", StorageDriver: driverMemory, SQLitePath: "x.db", OutboxBatchSize: 10}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = "0" }, wantErr: "PORT"},
		{name: "bad grpc port", mutate: func(c *Config) { c.GRPCPort = "abc" }, wantErr: "GRPC_PORT"},
		{name: "postgres without url", mutate: func(c *Config) { c.StorageDriver = driverPostgres }, wantErr: "DATABASE_URL"},
		{name: "sqlite without path", mutate: func(c *Config) { c.StorageDriver = driverSQLite; c.SQLitePath = " " }, wantErr: "SQLITE_PATH"},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "mongo" }, wantErr: "STORAGE_DRIVER"},
		{name: "zero batch", mutate: func(c *Config) { c.OutboxBatchSize = 0 }, wantErr: "OUTBOX_BATCH_SIZE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
