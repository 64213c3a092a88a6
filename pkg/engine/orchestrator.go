package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posbridge/posbridge/pkg/telemetry"
)

// Orchestrator runs the sync phases in their fixed order over a snapshot of
// the configured locations.
type Orchestrator struct {
	runner *PhaseRunner
	phases []registeredPhase
	export Task

	mu        sync.RWMutex
	locations []LocationConfig

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	now     func() time.Time
	newID   func() string
}

type registeredPhase struct {
	phase Phase
	task  Task
}

// OrchestratorConfig holds what an Orchestrator needs.
type OrchestratorConfig struct {
	// Locations are the locations every phase iterates. Must not be empty.
	Locations []LocationConfig

	// Tasks maps sync phases to their tasks. Phases without a task are skipped.
	Tasks map[Phase]Task

	// Export is the daily export task, optional.
	Export Task

	// Runner runs each phase. Defaults to a sequential runner.
	Runner *PhaseRunner

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// Clock overrides time.Now.
	Clock func() time.Time
}

// NewOrchestrator validates cfg and returns an Orchestrator. Tasks run in
// PhaseOrder no matter how they were registered.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Locations) == 0 {
		return nil, ErrNoLocations
	}

	known := make(map[Phase]bool, len(PhaseOrder))
	for _, p := range PhaseOrder {
		known[p] = true
	}
	for p, t := range cfg.Tasks {
		if !known[p] {
			return nil, fmt.Errorf("phase %q cannot be part of a sync cycle", p)
		}
		if t == nil {
			return nil, fmt.Errorf("phase %q has a nil task", p)
		}
	}

	o := &Orchestrator{
		runner:  cfg.Runner,
		export:  cfg.Export,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		now:     cfg.Clock,
		newID:   func() string { return uuid.New().String() },
	}
	if o.logger == nil {
		o.logger = telemetry.NewNopLogger()
	}
	o.logger = o.logger.NewComponentLogger("orchestrator")
	if o.now == nil {
		o.now = time.Now
	}
	if o.runner == nil {
		o.runner = NewPhaseRunner(
			WithRunnerLogger(o.logger),
			WithRunnerMetrics(o.metrics),
			WithRunnerTracer(o.tracer),
			WithRunnerClock(o.now),
		)
	}

	for _, p := range PhaseOrder {
		if t, ok := cfg.Tasks[p]; ok {
			o.phases = append(o.phases, registeredPhase{phase: p, task: t})
		}
	}

	o.SetLocations(cfg.Locations)
	return o, nil
}

// Phases returns the registered phases in run order.
func (o *Orchestrator) Phases() []Phase {
	out := make([]Phase, 0, len(o.phases))
	for _, rp := range o.phases {
		out = append(out, rp.phase)
	}
	return out
}

// Locations returns a copy of the current location list.
func (o *Orchestrator) Locations() []LocationConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]LocationConfig(nil), o.locations...)
}

// SetLocations replaces the location list. A running cycle keeps the list it
// started with; the new list applies from the next cycle. An empty list is
// ignored so a bad reload cannot stop syncing.
func (o *Orchestrator) SetLocations(locations []LocationConfig) bool {
	if len(locations) == 0 {
		o.logger.Warn("ignoring empty location list")
		return false
	}
	o.mu.Lock()
	o.locations = append([]LocationConfig(nil), locations...)
	o.mu.Unlock()
	o.metrics.SetLocations(len(locations))
	return true
}

// RunCycle runs every registered phase once, each to completion before the
// next starts. A failing phase never prevents later phases from running.
func (o *Orchestrator) RunCycle(ctx context.Context) *CycleSummary {
	locations := o.Locations()
	cycle := o.startCycle(CycleKindSync)
	logger := o.logger.WithCycleID(cycle.ID)

	ctx, span := o.tracer.StartCycleSpan(ctx, cycle.ID, string(cycle.Kind))
	ctx = logger.WithContext(ctx)

	logger.WithField("locations", len(locations)).Info("sync cycle started")

	for _, rp := range o.phases {
		summary := o.runPhase(ctx, logger, rp.phase, rp.task, locations, Window{})
		cycle.add(summary)
	}

	o.finishCycle(cycle, logger)
	telemetry.EndSpan(span, nil)
	return cycle
}

// RunExport runs the export task for the calendar day containing day.
func (o *Orchestrator) RunExport(ctx context.Context, day time.Time) (*CycleSummary, error) {
	if o.export == nil {
		return nil, fmt.Errorf("no export task configured")
	}

	locations := o.Locations()
	cycle := o.startCycle(CycleKindExport)
	logger := o.logger.WithCycleID(cycle.ID).WithField("day", day.Format("2006-01-02"))

	ctx, span := o.tracer.StartCycleSpan(ctx, cycle.ID, string(cycle.Kind))
	ctx = logger.WithContext(ctx)

	logger.Info("export started")
	cycle.add(o.runPhase(ctx, logger, PhaseExport, o.export, locations, DayWindow(day)))

	o.finishCycle(cycle, logger)
	telemetry.EndSpan(span, nil)
	return cycle, nil
}

func (o *Orchestrator) runPhase(
	ctx context.Context,
	logger *telemetry.Logger,
	phase Phase,
	task Task,
	locations []LocationConfig,
	window Window,
) *PhaseSummary {
	ctx, span := o.tracer.StartPhaseSpan(ctx, string(phase), len(locations))
	summary := o.runner.Run(ctx, phase, task, locations, window)
	err := summary.Err()
	telemetry.EndSpan(span, err)

	plog := logger.WithPhase(string(phase)).WithFields(map[string]interface{}{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"items":     summary.ItemsProcessed,
	})
	if err != nil {
		plog.WithError(err).Warn("phase completed with failures")
	} else {
		plog.Info("phase completed")
	}
	return summary
}

func (o *Orchestrator) startCycle(kind CycleKind) *CycleSummary {
	o.metrics.RecordCycleStarted(string(kind))
	return &CycleSummary{
		ID:        o.newID(),
		Kind:      kind,
		StartedAt: o.now(),
	}
}

func (o *Orchestrator) finishCycle(cycle *CycleSummary, logger *telemetry.Logger) {
	cycle.CompletedAt = o.now()
	cycle.Duration = cycle.CompletedAt.Sub(cycle.StartedAt)
	status := cycle.Status()
	o.metrics.RecordCycleCompleted(string(cycle.Kind), string(status), cycle.Duration)

	logger.WithFields(map[string]interface{}{
		"status":       status,
		"total_synced": cycle.TotalSynced,
		"total_errors": cycle.TotalErrors,
		"duration":     cycle.Duration.String(),
	}).Info("cycle completed")
}
