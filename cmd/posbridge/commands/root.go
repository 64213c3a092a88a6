package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "posbridge",
		Short: "posbridge - POS backoffice sync",
		Long: `posbridge pulls inventory, discounts and sales from a point-of-sale
backoffice for every configured store location, keeps a local cache of
per-location aggregates, pushes them to the ERP and writes a daily
accounting export.

A failure for one location or one phase is recorded in the cycle summary
and never stops the rest of the run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "posbridge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newDaemonCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newLocationsCommand())
	rootCmd.AddCommand(newPrepaidCommand())
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}
