package commands

import (
	"github.com/spf13/cobra"
)

func newLocationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List the locations a cycle would sync",
		Long: `Resolve the location list from the directory (or the static list in the
config file) and print it. Inactive locations and locations without an API
key are left out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			locs, err := a.resolveLocations(ctx)
			if err != nil {
				return err
			}
			return printLocations(cmd.OutOrStdout(), locs, jsonOutput)
		},
	}

	return cmd
}
