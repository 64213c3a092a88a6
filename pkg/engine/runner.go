package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/posbridge/posbridge/pkg/telemetry"
)

// PhaseRunner runs one task across every location of a phase.
type PhaseRunner struct {
	// maxParallel bounds the number of locations in flight
	maxParallel int

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	now     func() time.Time
}

// RunnerOption configures a PhaseRunner.
type RunnerOption func(*PhaseRunner)

// WithMaxParallel sets how many locations may run at once. Values below 1 mean 1.
func WithMaxParallel(n int) RunnerOption {
	return func(r *PhaseRunner) {
		if n < 1 {
			n = 1
		}
		r.maxParallel = n
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *telemetry.Logger) RunnerOption {
	return func(r *PhaseRunner) { r.logger = l.NewComponentLogger("phase_runner") }
}

// WithRunnerMetrics sets the metrics collector.
func WithRunnerMetrics(m *telemetry.Metrics) RunnerOption {
	return func(r *PhaseRunner) { r.metrics = m }
}

// WithRunnerTracer sets the tracer.
func WithRunnerTracer(t *telemetry.Tracer) RunnerOption {
	return func(r *PhaseRunner) { r.tracer = t }
}

// WithRunnerClock overrides time.Now.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *PhaseRunner) { r.now = now }
}

// NewPhaseRunner creates a runner. By default locations run one at a time.
func NewPhaseRunner(opts ...RunnerOption) *PhaseRunner {
	r := &PhaseRunner{
		maxParallel: 1,
		logger:      telemetry.NewNopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run invokes task for every location and returns one result per location
// in input order. It never stops early and never returns an error: task
// failures are recorded in the summary.
func (r *PhaseRunner) Run(
	ctx context.Context,
	phase Phase,
	task Task,
	locations []LocationConfig,
	window Window,
) *PhaseSummary {
	summary := &PhaseSummary{
		Phase:     phase,
		StartedAt: r.now(),
		Results:   make([]PhaseResult, 0, len(locations)),
	}

	results := make([]PhaseResult, len(locations))

	// Plain group, not WithContext: one failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(r.maxParallel)
	for i, loc := range locations {
		g.Go(func() error {
			results[i] = r.runOne(ctx, phase, task, loc, window)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		summary.add(res)
	}
	summary.CompletedAt = r.now()

	r.metrics.RecordPhase(string(phase), summary.CompletedAt.Sub(summary.StartedAt))
	r.metrics.AddItemsSynced(string(phase), summary.ItemsProcessed)

	return summary
}

// runOne is the task boundary: errors and panics stop here.
func (r *PhaseRunner) runOne(
	ctx context.Context,
	phase Phase,
	task Task,
	loc LocationConfig,
	window Window,
) (res PhaseResult) {
	start := r.now()
	res = PhaseResult{
		Phase:        phase,
		LocationID:   loc.LocationID,
		LocationName: loc.Name,
		StartedAt:    start,
	}
	logger := r.logger.WithPhase(string(phase)).WithLocation(loc.LocationID, loc.Name)

	ctx, span := r.tracer.StartLocationSpan(ctx, string(phase), loc.LocationID)

	defer func() {
		if p := recover(); p != nil {
			res.Counts = Counts{}
			res.Err = &TaskPanicError{Phase: phase, LocationID: loc.LocationID, Value: p}
		}
		res.Duration = r.now().Sub(start)
		res.Success = res.Err == nil
		if res.Err != nil {
			res.ErrorKind = ErrorKind(res.Err)
			res.Error = res.Err.Error()
			logger.WithError(res.Err).WithField("error_kind", res.ErrorKind).Warn("location failed")
		} else {
			span.SetAttributes(telemetry.AttrItems.Int(res.Counts.Processed))
			logger.WithField("items", res.Counts.Processed).Debug("location synced")
		}
		telemetry.EndSpan(span, res.Err)
		r.metrics.RecordLocationResult(string(phase), res.Success, res.ErrorKind)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	counts, err := task.Run(ctx, loc, window)
	if err != nil {
		res.Err = err
		return res
	}
	res.Counts = counts
	return res
}
