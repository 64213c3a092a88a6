package engine

import (
	"fmt"
	"time"
)

// Phase names one stage of a sync cycle.
type Phase string

const (
	PhaseInventory    Phase = "inventory"
	PhaseEnrichment   Phase = "enrichment"
	PhaseDiscounts    Phase = "discounts"
	PhaseCacheRefresh Phase = "cache_refresh"
	PhaseExternalPush Phase = "external_push"

	// PhaseExport is the daily accounting export. It is not part of a sync cycle.
	PhaseExport Phase = "export"
)

// PhaseOrder is the order in which a sync cycle runs its phases.
var PhaseOrder = []Phase{
	PhaseInventory,
	PhaseEnrichment,
	PhaseDiscounts,
	PhaseCacheRefresh,
	PhaseExternalPush,
}

// ParsePhase converts a configured phase name into a Phase.
func ParsePhase(name string) (Phase, error) {
	for _, p := range PhaseOrder {
		if string(p) == name {
			return p, nil
		}
	}
	if name == string(PhaseExport) {
		return PhaseExport, nil
	}
	return "", fmt.Errorf("unknown phase %q", name)
}

// CycleKind distinguishes scheduled sync cycles from daily exports.
type CycleKind string

const (
	CycleKindSync   CycleKind = "sync"
	CycleKindExport CycleKind = "export"
)

// LocationConfig identifies one store location and the credentials used to reach it.
// It is treated as immutable for the duration of a cycle.
type LocationConfig struct {
	// LocationID is the POS location identifier.
	LocationID string `json:"location_id"`

	// ExternalStoreID is the store identifier in the ERP.
	ExternalStoreID string `json:"external_store_id,omitempty"`

	// Name is a human readable label.
	Name string `json:"name"`

	// APIKey authenticates POS reporting calls for this location.
	APIKey string `json:"-"`

	// BackofficeAccount selects the backoffice session used for this location.
	BackofficeAccount string `json:"backoffice_account,omitempty"`

	// Metadata carries directory attributes that are not modelled explicitly.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Window is the time range a task covers. The zero Window means current state.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CurrentState reports whether w is the current-state marker.
func (w Window) CurrentState() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// DayWindow returns the window covering the calendar day of t in t's location.
func DayWindow(t time.Time) Window {
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

// Counts are the items a task handled.
type Counts struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Processed: c.Processed + o.Processed,
		Created:   c.Created + o.Created,
		Updated:   c.Updated + o.Updated,
	}
}

// PhaseResult is the outcome of one task for one location.
type PhaseResult struct {
	Phase        Phase         `json:"phase"`
	LocationID   string        `json:"location_id"`
	LocationName string        `json:"location_name"`
	Success      bool          `json:"success"`
	Counts       Counts        `json:"counts"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Err          error         `json:"-"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// PhaseSummary aggregates the results of one phase over all locations.
type PhaseSummary struct {
	Phase          Phase         `json:"phase"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Results        []PhaseResult `json:"results"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsCreated   int           `json:"items_created"`
	ItemsUpdated   int           `json:"items_updated"`
}

func (s *PhaseSummary) add(r PhaseResult) {
	s.Results = append(s.Results, r)
	if !r.Success {
		s.Failed++
		return
	}
	s.Succeeded++
	s.ItemsProcessed += r.Counts.Processed
	s.ItemsCreated += r.Counts.Created
	s.ItemsUpdated += r.Counts.Updated
}

// Failures returns the failed results in input order.
func (s *PhaseSummary) Failures() []PhaseResult {
	var out []PhaseResult
	for _, r := range s.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Err returns a *PartialPhaseFailure when any location failed, else nil.
func (s *PhaseSummary) Err() error {
	if s == nil || s.Failed == 0 {
		return nil
	}
	pf := &PartialPhaseFailure{
		Phase:  s.Phase,
		Failed: s.Failed,
		Total:  len(s.Results),
	}
	for _, r := range s.Failures() {
		pf.Locations = append(pf.Locations, r.LocationID)
	}
	return pf
}

// Result returns the result for locationID, if present.
func (s *PhaseSummary) Result(locationID string) (PhaseResult, bool) {
	for _, r := range s.Results {
		if r.LocationID == locationID {
			return r, true
		}
	}
	return PhaseResult{}, false
}

// CycleStatus is the overall outcome of a cycle.
type CycleStatus string

const (
	CycleStatusSucceeded CycleStatus = "succeeded"
	CycleStatusPartial   CycleStatus = "partial"
	CycleStatusFailed    CycleStatus = "failed"
)

// CycleSummary reports every phase of one cycle.
type CycleSummary struct {
	ID          string          `json:"id"`
	Kind        CycleKind       `json:"kind"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Duration    time.Duration   `json:"duration"`
	Phases      []*PhaseSummary `json:"phases"`

	// TotalSynced sums ItemsProcessed over successful results.
	TotalSynced int `json:"total_synced"`

	// TotalErrors counts failed results over all phases.
	TotalErrors int `json:"total_errors"`
}

func (c *CycleSummary) add(s *PhaseSummary) {
	c.Phases = append(c.Phases, s)
	c.TotalSynced += s.ItemsProcessed
	c.TotalErrors += s.Failed
}

// Phase returns the summary for p, or nil if p did not run.
func (c *CycleSummary) Phase(p Phase) *PhaseSummary {
	if c == nil {
		return nil
	}
	for _, s := range c.Phases {
		if s.Phase == p {
			return s
		}
	}
	return nil
}

// Status derives the cycle outcome from its phase results.
func (c *CycleSummary) Status() CycleStatus {
	if c.TotalErrors == 0 {
		return CycleStatusSucceeded
	}
	for _, s := range c.Phases {
		if s.Succeeded > 0 {
			return CycleStatusPartial
		}
	}
	return CycleStatusFailed
}
