package engine

import "context"

// Task syncs one location for one phase.
//
// Run may be called concurrently for different locations. Any error it
// returns, and any panic, becomes a failed PhaseResult for that location
// only.
type Task interface {
	Name() string
	Run(ctx context.Context, loc LocationConfig, window Window) (Counts, error)
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context, loc LocationConfig, window Window) (Counts, error)
}

// Name returns the task name.
func (f TaskFunc) Name() string { return f.TaskName }

// Run calls f.Fn.
func (f TaskFunc) Run(ctx context.Context, loc LocationConfig, window Window) (Counts, error) {
	return f.Fn(ctx, loc, window)
}
