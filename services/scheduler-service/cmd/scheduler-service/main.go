package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scheduler-service",
	Short: "Event type availability, free slot and booking service",
	Long: `scheduler-service lets owners publish availability windows for fixed-duration
event types and lets bookers reserve non-overlapping slots inside them.

Configuration is read from the environment (see config.go); flags override it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("storage", "", "storage driver: memory, sqlite or postgres (overrides STORAGE_DRIVER)")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
