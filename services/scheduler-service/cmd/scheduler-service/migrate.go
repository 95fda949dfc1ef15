package main

import (
	"github.com/md-rashed-zaman/bookslot/libs/runtime"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the storage schema for the configured driver",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := runtime.NewLogger(cfg.ServiceName)
		be, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer be.close()
		if err := be.migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("schema applied", "storage", cfg.StorageDriver)
		return nil
	},
}
