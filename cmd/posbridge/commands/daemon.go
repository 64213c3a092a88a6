package commands

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/posbridge/posbridge/pkg/config"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/telemetry"
)

func newDaemonCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run sync cycles on a schedule",
		Long: `Run a sync cycle every sync.interval and the accounting export for the
previous day once a day, after sync.daily_hour. A failed export is retried
on the next tick.

The location list is re-read at every cycle boundary. With --watch, edits
to a static location list in the config file are picked up the same way.
Metrics are served on telemetry.metrics.listen_address.`,
		Example: `  # Run with the default config
  posbridge daemon

  # Reload static locations when the config file changes
  posbridge daemon --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			a.tel.Metrics.SetLocations(len(orch.Locations()))

			if err := a.tel.StartMetricsServer(ctx); err != nil {
				return err
			}

			reloader := &locationReloader{
				target: orch,
				logger: a.tel.Logger.NewComponentLogger("locations"),
			}
			if a.directory != nil {
				reloader.resolve = a.directory.Resolve
			}

			if watch {
				w := config.NewWatcher(configPath, a.tel.Logger.NewComponentLogger("config"))
				err := w.Watch(ctx, func(cfg *config.Config) {
					if cfg.HasSecretRefs() {
						resolver, err := config.NewAWSSecretResolver(ctx, cfg.AWSRegion)
						if err == nil {
							err = cfg.ResolveSecrets(ctx, resolver)
						}
						if err != nil {
							reloader.logger.WithError(err).Error("Failed to resolve secrets of reloaded config")
							return
						}
					}
					reloader.Stage(cfg.StaticLocations())
				})
				if err != nil {
					return err
				}
			}

			opts := []engine.TriggerOption{
				engine.WithBeforeCycle(reloader.Refresh),
				engine.WithTriggerLogger(a.tel.Logger),
				engine.WithAfterCycle(func(s *engine.CycleSummary) {
					log.Info().
						Str("cycle_id", s.ID).
						Str("kind", string(s.Kind)).
						Str("status", string(s.Status())).
						Int("synced", s.TotalSynced).
						Int("errors", s.TotalErrors).
						Msg("Cycle finished")
				}),
			}
			if a.sink != nil {
				opts = append(opts, engine.WithDailyGate(engine.NewDailyGate(a.cfg.Sync.DailyHour)))
			}

			log.Info().
				Dur("interval", a.cfg.Sync.Interval).
				Int("locations", len(orch.Locations())).
				Bool("export", a.sink != nil).
				Msg("Starting daemon")

			err = engine.NewTrigger(orch, a.cfg.Sync.Interval, opts...).Start(ctx)
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("Daemon stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "reload static locations when the config file changes")

	return cmd
}

// locationSetter is the part of the orchestrator the reloader updates.
type locationSetter interface {
	SetLocations(locations []engine.LocationConfig) bool
}

// locationReloader swaps the orchestrator's location list between cycles.
// With a resolver it re-reads the directory before every cycle; otherwise it
// applies the list staged by the last config reload, once.
type locationReloader struct {
	resolve func(ctx context.Context) ([]engine.LocationConfig, error)
	target  locationSetter
	logger  *telemetry.Logger

	mu     sync.Mutex
	staged []engine.LocationConfig
}

// Stage records a static list to apply at the next cycle boundary.
func (r *locationReloader) Stage(locs []engine.LocationConfig) {
	r.mu.Lock()
	r.staged = locs
	r.mu.Unlock()
}

// Refresh runs at a cycle boundary. A failed or empty lookup keeps the
// current list.
func (r *locationReloader) Refresh(ctx context.Context) {
	var locs []engine.LocationConfig
	if r.resolve != nil {
		var err error
		locs, err = r.resolve(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("Location lookup failed, keeping the current list")
			return
		}
	} else {
		r.mu.Lock()
		locs, r.staged = r.staged, nil
		r.mu.Unlock()
		if locs == nil {
			return
		}
	}

	if !r.target.SetLocations(locs) {
		r.logger.Warn("Location lookup returned no locations, keeping the current list")
		return
	}
	r.logger.WithField("locations", len(locs)).Debug("Location list refreshed")
}
