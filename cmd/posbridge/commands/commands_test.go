package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/telemetry"
)

type fakeSetter struct {
	calls [][]engine.LocationConfig
}

func (f *fakeSetter) SetLocations(locs []engine.LocationConfig) bool {
	f.calls = append(f.calls, locs)
	return len(locs) > 0
}

func locs(ids ...string) []engine.LocationConfig {
	out := make([]engine.LocationConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, engine.LocationConfig{LocationID: id})
	}
	return out
}

func TestLocationReloader_Static(t *testing.T) {
	target := &fakeSetter{}
	r := &locationReloader{target: target, logger: telemetry.NewNopLogger()}

	r.Refresh(context.Background())
	if len(target.calls) != 0 {
		t.Fatalf("nothing staged, got %d updates", len(target.calls))
	}

	r.Stage(locs("A", "B"))
	r.Refresh(context.Background())
	r.Refresh(context.Background())
	if len(target.calls) != 1 {
		t.Fatalf("staged list applied %d times, want 1", len(target.calls))
	}
	if len(target.calls[0]) != 2 {
		t.Errorf("applied %d locations, want 2", len(target.calls[0]))
	}
}

func TestLocationReloader_Directory(t *testing.T) {
	target := &fakeSetter{}
	results := []struct {
		locs []engine.LocationConfig
		err  error
	}{
		{locs: locs("A")},
		{err: errors.New("directory down")},
		{locs: locs("A", "C")},
	}
	n := 0
	r := &locationReloader{
		target: target,
		logger: telemetry.NewNopLogger(),
		resolve: func(context.Context) ([]engine.LocationConfig, error) {
			res := results[n]
			n++
			return res.locs, res.err
		},
	}

	for range results {
		r.Refresh(context.Background())
	}
	if len(target.calls) != 2 {
		t.Fatalf("got %d updates, want 2 (the failed lookup is skipped)", len(target.calls))
	}
	if len(target.calls[1]) != 2 {
		t.Errorf("last update has %d locations, want 2", len(target.calls[1]))
	}
}

func TestParseDay(t *testing.T) {
	now := time.Date(2026, 5, 5, 1, 30, 0, 0, time.UTC)

	day, err := parseDay("", now)
	if err != nil {
		t.Fatalf("parseDay failed: %v", err)
	}
	if want := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC); !day.Equal(want) {
		t.Errorf("default day = %v, want %v", day, want)
	}

	day, err = parseDay("2026-03-01", now)
	if err != nil {
		t.Fatalf("parseDay failed: %v", err)
	}
	if day.Day() != 1 || day.Month() != time.March {
		t.Errorf("parsed day = %v", day)
	}

	if _, err := parseDay("03/01/2026", now); err == nil {
		t.Error("expected an error for a bad date")
	}
}

func testSummary() *engine.CycleSummary {
	return &engine.CycleSummary{
		ID:          "cycle-1",
		Kind:        engine.CycleKindSync,
		Duration:    1500 * time.Millisecond,
		TotalSynced: 42,
		TotalErrors: 1,
		Phases: []*engine.PhaseSummary{{
			Phase:     engine.PhaseInventory,
			Succeeded: 1,
			Failed:    1,
			Results: []engine.PhaseResult{
				{Phase: engine.PhaseInventory, LocationID: "A", LocationName: "Alpha", Success: true, Counts: engine.Counts{Processed: 42, Created: 42}},
				{Phase: engine.PhaseInventory, LocationID: "B", Success: false, ErrorKind: "auth", Error: "login rejected"},
			},
		}},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := printSummary(&buf, testSummary(), false); err != nil {
		t.Fatalf("printSummary failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"cycle-1", "partial", "Synced 42 items, 1 errors", "Alpha (A)", "failed (auth)", "login rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := printSummary(&buf, testSummary(), true); err != nil {
		t.Fatalf("printSummary failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["total_synced"] != float64(42) {
		t.Errorf("total_synced = %v", decoded["total_synced"])
	}
}

func TestPrintLocations(t *testing.T) {
	var buf bytes.Buffer
	l := []engine.LocationConfig{{LocationID: "12", Name: "Harbor Street", ExternalStoreID: "BR-12", BackofficeAccount: "north", APIKey: "secret"}}
	if err := printLocations(&buf, l, true); err != nil {
		t.Fatalf("printLocations failed: %v", err)
	}
	if strings.Contains(buf.String(), "secret") {
		t.Error("API key must not be printed")
	}
	if !strings.Contains(buf.String(), "BR-12") {
		t.Errorf("output missing store id: %s", buf.String())
	}
}
