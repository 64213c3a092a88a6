package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPrepaidCommand() *cobra.Command {
	var (
		locationID string
		account    string
		from       string
		to         string
	)

	cmd := &cobra.Command{
		Use:   "prepaid",
		Short: "Print prepaid sales and electronic payments from the closing report",
		Example: `  # Prepaid sales for yesterday
  posbridge prepaid --location 12

  # A date range through a specific account
  posbridge prepaid --location 12 --account north --from 2026-05-01 --to 2026-05-04`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now := time.Now()

			fromDay, err := parseDay(from, now)
			if err != nil {
				return err
			}
			toDay := fromDay
			if to != "" {
				if toDay, err = parseDay(to, now); err != nil {
					return err
				}
			}
			if toDay.Before(fromDay) {
				return fmt.Errorf("--to %s is before --from %s", toDay.Format(dateLayout), fromDay.Format(dateLayout))
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if account == "" {
				account = a.cfg.Backoffice.DefaultAccount
			}
			if account == "" {
				return fmt.Errorf("--account is required when backoffice.default_account is not set")
			}
			client, err := a.pool.Client(account)
			if err != nil {
				return err
			}

			report, err := client.GetClosingReport(ctx, fromDay, toDay, locationID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Location %s, %s to %s\n", locationID, fromDay.Format(dateLayout), toDay.Format(dateLayout))
			fmt.Fprintf(out, "Prepaid sales:       %.2f\n", report.PrepaidSales())
			fmt.Fprintf(out, "Electronic payments: %.2f\n", report.ElectronicPayments())
			return nil
		},
	}

	cmd.Flags().StringVarP(&locationID, "location", "l", "", "location id")
	cmd.Flags().StringVar(&account, "account", "", "backoffice account (default: backoffice.default_account)")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, default yesterday)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive (default: --from)")
	_ = cmd.MarkFlagRequired("location")

	return cmd
}
