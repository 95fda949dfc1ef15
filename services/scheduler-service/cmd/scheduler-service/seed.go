package main

import (
	"fmt"

	"github.com/md-rashed-zaman/bookslot/libs/runtime"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/seed"
	"github.com/spf13/cobra"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load event types, availability and bookings from a YAML fixture",
	Long: `Load a YAML fixture through the same checks the API applies.

Rows that already exist or conflict are skipped, so a fixture can be applied
repeatedly. Example:

  STORAGE_DRIVER=sqlite scheduler-service seed --file fixtures/demo.yaml
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := runtime.NewLogger(cfg.ServiceName)

		fixture, err := seed.LoadFile(seedFile)
		if err != nil {
			return fmt.Errorf("load %s: %w", seedFile, err)
		}
		be, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer be.close()
		if err := be.migrate(cmd.Context()); err != nil {
			return err
		}

		res, err := seed.Apply(cmd.Context(), booking.NewService(be.store, logger), fixture, logger)
		if err != nil {
			return err
		}
		logger.Info("seed applied",
			"event_types", res.EventTypes,
			"availabilities", res.Availabilities,
			"bookings", res.Bookings,
			"skipped", res.Skipped,
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "fixture file to load")
	_ = seedCmd.MarkFlagRequired("file")
}
