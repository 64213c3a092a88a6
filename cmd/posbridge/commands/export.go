package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newExportCommand() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the accounting export for a day",
		Long: `Pull the POS transactions of one day for every location, bucket them
by category and transaction type, and write one CSV per location to the
configured directory or S3 bucket.

Without --date the previous day is exported.`,
		Example: `  # Export yesterday
  posbridge export

  # Export a specific day
  posbridge export --date 2026-05-04`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			day, err := parseDay(date, time.Now())
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.sink == nil {
				return fmt.Errorf("export is not configured: set export.dir or export.s3.bucket")
			}

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}

			log.Info().Str("date", day.Format(dateLayout)).Msg("Starting export")

			summary, err := orch.RunExport(ctx, day)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to export (YYYY-MM-DD, default yesterday)")

	return cmd
}

// parseDay parses a YYYY-MM-DD flag in local time; empty means the day before now.
func parseDay(value string, now time.Time) (time.Time, error) {
	if value == "" {
		y := now.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	day, err := time.ParseInLocation(dateLayout, value, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", value, err)
	}
	return day, nil
}
