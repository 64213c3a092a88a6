package commands

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/posbridge/posbridge/pkg/backoffice"
	"github.com/posbridge/posbridge/pkg/config"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/erp"
	"github.com/posbridge/posbridge/pkg/export"
	"github.com/posbridge/posbridge/pkg/pos"
	"github.com/posbridge/posbridge/pkg/stores"
	"github.com/posbridge/posbridge/pkg/tasks"
	"github.com/posbridge/posbridge/pkg/telemetry"
)

// app holds the clients and store built from one configuration.
type app struct {
	cfg *config.Config
	tel *telemetry.Telemetry

	store     *stores.SQLiteStore
	pool      *backoffice.Pool
	reporting *pos.ReportingClient
	directory *pos.DirectoryClient
	erp       *erp.Client
	sink      export.Sink
}

// loadConfig reads the --config file and resolves its secret references.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.HasSecretRefs() {
		resolver, err := config.NewAWSSecretResolver(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
			return nil, fmt.Errorf("failed to resolve secrets: %w", err)
		}
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// newApp loads the config, opens and migrates the store, and builds every client.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &app{cfg: cfg, tel: tel}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	a.store = store
	if err := store.Migrate(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.pool, err = backoffice.NewPool(backoffice.Config{
		BaseURL:        cfg.Backoffice.BaseURL,
		SessionTTL:     cfg.Backoffice.SessionTTL,
		RequestTimeout: cfg.Backoffice.RequestTimeout,
		RetryDelay:     cfg.Backoffice.RetryDelay,
		Logger:         tel.Logger,
		Metrics:        tel.Metrics,
	}, cfg.BackofficeAccounts())
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.reporting = pos.NewReportingClient(pos.Config{
		BaseURL:        cfg.POS.BaseURL,
		RequestTimeout: cfg.POS.RequestTimeout,
		RetryDelay:     cfg.POS.RetryDelay,
		Logger:         tel.Logger,
		Metrics:        tel.Metrics,
	})

	if cfg.Directory.URL != "" {
		a.directory = pos.NewDirectoryClient(pos.Config{
			BaseURL:        cfg.Directory.URL,
			Token:          cfg.Directory.Token,
			RequestTimeout: cfg.POS.RequestTimeout,
			RetryDelay:     cfg.POS.RetryDelay,
			Logger:         tel.Logger,
			Metrics:        tel.Metrics,
		})
	}

	if cfg.ERP.BaseURL != "" {
		a.erp = erp.NewClient(erp.Config{
			BaseURL:        cfg.ERP.BaseURL,
			Token:          cfg.ERP.Token,
			RequestTimeout: cfg.ERP.RequestTimeout,
			Metrics:        tel.Metrics,
		})
	}

	if cfg.Export.Enabled() {
		a.sink, err = newSink(ctx, cfg)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	return a, nil
}

// newSink prefers S3 when a bucket is configured.
func newSink(ctx context.Context, cfg *config.Config) (export.Sink, error) {
	if cfg.Export.S3.Bucket == "" {
		return export.NewFileSink(cfg.Export.Dir)
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return export.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.Export.S3.Bucket, cfg.Export.S3.Prefix), nil
}

// Close releases the store and flushes traces.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
}

// resolveLocations reads the directory, or the static list when none is configured.
func (a *app) resolveLocations(ctx context.Context) ([]engine.LocationConfig, error) {
	if a.directory != nil {
		return a.directory.Resolve(ctx)
	}
	locs := a.cfg.StaticLocations()
	if len(locs) == 0 {
		return nil, engine.ErrNoLocations
	}
	return locs, nil
}

// tasks builds the cycle tasks for the configured phases. The ERP push is
// left out when no ERP is configured.
func (a *app) tasks() (map[engine.Phase]engine.Task, error) {
	phases, err := a.cfg.SyncPhases()
	if err != nil {
		return nil, err
	}

	resolver := tasks.PoolResolver(a.pool)
	all := map[engine.Phase]engine.Task{
		engine.PhaseInventory: &tasks.InventoryTask{
			Backoffice:     resolver,
			DefaultAccount: a.cfg.Backoffice.DefaultAccount,
			Store:          a.store,
		},
		engine.PhaseEnrichment:   &tasks.EnrichmentTask{Catalog: a.reporting, Store: a.store},
		engine.PhaseDiscounts:    &tasks.DiscountTask{Source: a.reporting, Store: a.store},
		engine.PhaseCacheRefresh: &tasks.CacheRefreshTask{Store: a.store},
	}
	if a.erp != nil {
		all[engine.PhaseExternalPush] = &tasks.ERPPushTask{Store: a.store, Pusher: a.erp}
	}

	out := make(map[engine.Phase]engine.Task, len(phases))
	for _, p := range phases {
		t, ok := all[p]
		if !ok {
			a.tel.Logger.WithPhase(string(p)).Warn("phase has no target configured, skipping")
			continue
		}
		out[p] = t
	}
	return out, nil
}

// exportTask returns nil when the export is disabled.
func (a *app) exportTask() engine.Task {
	if a.sink == nil {
		return nil
	}
	t := &tasks.ExportTask{
		Transactions: a.reporting,
		Mapping:      a.cfg.Export.Mapping,
		Sink:         a.sink,
	}
	if a.cfg.Export.ClosingReport {
		t.Backoffice = tasks.PoolResolver(a.pool)
		t.DefaultAccount = a.cfg.Backoffice.DefaultAccount
	}
	return t
}

// orchestrator resolves locations and builds the orchestrator over them.
func (a *app) orchestrator(ctx context.Context) (*engine.Orchestrator, error) {
	locs, err := a.resolveLocations(ctx)
	if err != nil {
		return nil, err
	}
	phaseTasks, err := a.tasks()
	if err != nil {
		return nil, err
	}

	cfg := engine.OrchestratorConfig{
		Locations: locs,
		Tasks:     phaseTasks,
		Runner: engine.NewPhaseRunner(
			engine.WithMaxParallel(a.cfg.Sync.MaxParallel),
			engine.WithRunnerLogger(a.tel.Logger),
			engine.WithRunnerMetrics(a.tel.Metrics),
			engine.WithRunnerTracer(a.tel.Tracer),
		),
		Logger:  a.tel.Logger,
		Metrics: a.tel.Metrics,
		Tracer:  a.tel.Tracer,
	}
	if t := a.exportTask(); t != nil {
		cfg.Export = t
	}
	return engine.NewOrchestrator(cfg)
}
