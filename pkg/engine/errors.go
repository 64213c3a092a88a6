package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/posbridge/posbridge/pkg/apierrors"
)

// KindPanic is the error kind recorded for a task that panicked.
const KindPanic = "panic"

// ErrNoLocations is returned when no location could be resolved. It is the
// only condition that stops the process.
var ErrNoLocations = errors.New("no location configs resolvable")

// PartialPhaseFailure reports that some locations failed within a phase.
// It is informational: the phase still ran for every location.
type PartialPhaseFailure struct {
	Phase     Phase
	Failed    int
	Total     int
	Locations []string
}

// Error implements the error interface.
func (e *PartialPhaseFailure) Error() string {
	return fmt.Sprintf("phase %s: %d of %d locations failed (%s)",
		e.Phase, e.Failed, e.Total, strings.Join(e.Locations, ", "))
}

// TaskPanicError wraps a panic recovered from a task.
type TaskPanicError struct {
	Phase      Phase
	LocationID string
	Value      interface{}
}

// Error implements the error interface.
func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task %s panicked for location %s: %v", e.Phase, e.LocationID, e.Value)
}

// IsPartialPhaseFailure reports whether err is a partial phase failure.
func IsPartialPhaseFailure(err error) bool {
	var pf *PartialPhaseFailure
	return errors.As(err, &pf)
}

// ErrorKind classifies err for results and metrics: auth, network, api,
// panic or internal.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var pe *TaskPanicError
	if errors.As(err, &pe) {
		return KindPanic
	}
	return apierrors.Kind(err)
}
