package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	var failOnErrors bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Long: `Run every configured phase once over all locations and print the
cycle summary.

Phases run in fixed order: inventory, enrichment, discounts, cache_refresh,
external_push. A failed location is reported in the summary; the remaining
locations and phases still run.`,
		Example: `  # Run a cycle with the default config
  posbridge sync

  # Machine-readable summary
  posbridge sync --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}

			log.Info().
				Int("locations", len(orch.Locations())).
				Int("phases", len(orch.Phases())).
				Msg("Starting sync cycle")

			summary := orch.RunCycle(ctx)
			if err := printSummary(cmd.OutOrStdout(), summary, jsonOutput); err != nil {
				return err
			}

			if failOnErrors && summary.TotalErrors > 0 {
				return fmt.Errorf("cycle finished with %d failed location results", summary.TotalErrors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnErrors, "fail-on-errors", false, "exit non-zero when any location fails")

	return cmd
}
