package engine

import (
	"context"
	"sync"
	"time"

	"github.com/posbridge/posbridge/pkg/telemetry"
)

const dateLayout = "2006-01-02"

// DailyGate decides whether the once-a-day job is due. It compares a
// last-run date marker with today's date, so a process that was asleep at
// the configured hour still runs the job once it wakes, and never twice.
type DailyGate struct {
	// Hour is the earliest local hour at which the job may run.
	Hour int

	mu      sync.Mutex
	lastRun string
}

// NewDailyGate creates a gate that opens at hour each day.
func NewDailyGate(hour int) *DailyGate {
	return &DailyGate{Hour: hour}
}

// Due reports whether the job should run at now.
func (g *DailyGate) Due(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return now.Hour() >= g.Hour && g.lastRun != now.Format(dateLayout)
}

// MarkRun records that the job ran on now's date.
func (g *DailyGate) MarkRun(now time.Time) {
	g.mu.Lock()
	g.lastRun = now.Format(dateLayout)
	g.mu.Unlock()
}

// LastRun returns the date marker, or "" if the job never ran.
func (g *DailyGate) LastRun() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRun
}

// CycleRunner is what a Trigger drives. *Orchestrator implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context) *CycleSummary
	RunExport(ctx context.Context, day time.Time) (*CycleSummary, error)
}

// Trigger runs a sync cycle every interval and the daily export when its
// gate opens. Only one cycle runs at a time.
type Trigger struct {
	runner   CycleRunner
	interval time.Duration
	gate     *DailyGate

	// beforeCycle runs at each cycle boundary, e.g. to reload locations.
	beforeCycle func(ctx context.Context)
	// afterCycle receives every completed summary.
	afterCycle func(*CycleSummary)

	logger *telemetry.Logger
	now    func() time.Time
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithDailyGate enables the daily export.
func WithDailyGate(g *DailyGate) TriggerOption {
	return func(t *Trigger) { t.gate = g }
}

// WithBeforeCycle sets a hook run before every tick.
func WithBeforeCycle(fn func(ctx context.Context)) TriggerOption {
	return func(t *Trigger) { t.beforeCycle = fn }
}

// WithAfterCycle sets a hook that receives every completed summary.
func WithAfterCycle(fn func(*CycleSummary)) TriggerOption {
	return func(t *Trigger) { t.afterCycle = fn }
}

// WithTriggerLogger sets the logger.
func WithTriggerLogger(l *telemetry.Logger) TriggerOption {
	return func(t *Trigger) { t.logger = l.NewComponentLogger("trigger") }
}

// WithTriggerClock overrides time.Now.
func WithTriggerClock(now func() time.Time) TriggerOption {
	return func(t *Trigger) { t.now = now }
}

// NewTrigger creates a trigger for runner.
func NewTrigger(runner CycleRunner, interval time.Duration, opts ...TriggerOption) *Trigger {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	t := &Trigger{
		runner:   runner,
		interval: interval,
		logger:   telemetry.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start ticks immediately and then every interval until ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.WithField("interval", t.interval.String()).Info("trigger started")
	for {
		t.Tick(ctx)

		select {
		case <-ctx.Done():
			t.logger.Info("trigger stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one sync cycle and, if the gate is open, the export for the
// previous day.
func (t *Trigger) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if t.beforeCycle != nil {
		t.beforeCycle(ctx)
	}

	t.emit(t.runner.RunCycle(ctx))

	if t.gate == nil {
		return
	}
	now := t.now()
	if !t.gate.Due(now) {
		return
	}

	day := now.AddDate(0, 0, -1)
	summary, err := t.runner.RunExport(ctx, day)
	if err == nil {
		err = summary.Phase(PhaseExport).Err()
	}
	t.emit(summary)
	if err != nil {
		// Marker stays unset so the next tick retries.
		t.logger.WithError(err).Error("daily export failed")
		return
	}
	t.gate.MarkRun(now)
}

func (t *Trigger) emit(s *CycleSummary) {
	if t.afterCycle != nil && s != nil {
		t.afterCycle(s)
	}
}
