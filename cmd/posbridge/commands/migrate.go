package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/posbridge/posbridge/pkg/stores"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the store migrations",
		Long: `Create or upgrade the SQLite store at store.path. Other commands migrate
on start as well; this one only touches the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			if err := store.HealthCheck(ctx); err != nil {
				return fmt.Errorf("store unhealthy after migration: %w", err)
			}

			log.Info().Str("path", cfg.Store.Path).Msg("Store migrated")
			return nil
		},
	}

	return cmd
}
