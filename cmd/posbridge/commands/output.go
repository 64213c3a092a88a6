package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/posbridge/posbridge/pkg/engine"
)

// printSummary writes the cycle summary as a table, or as JSON with --json.
func printSummary(w io.Writer, s *engine.CycleSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "Cycle %s (%s): %s in %s\n", s.ID, s.Kind, s.Status(), s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Synced %d items, %d errors\n\n", s.TotalSynced, s.TotalErrors)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tLOCATION\tSTATUS\tPROCESSED\tCREATED\tUPDATED\tERROR")
	for _, phase := range s.Phases {
		for _, r := range phase.Results {
			status := "ok"
			if !r.Success {
				status = "failed (" + r.ErrorKind + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.Phase, locationLabel(r.LocationID, r.LocationName), status,
				r.Counts.Processed, r.Counts.Created, r.Counts.Updated, r.Error)
		}
	}
	return tw.Flush()
}

// printLocations writes the resolved locations as a table, or as JSON with --json.
func printLocations(w io.Writer, locs []engine.LocationConfig, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(locs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTORE\tACCOUNT")
	for _, l := range locs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.LocationID, l.Name, l.ExternalStoreID, l.BackofficeAccount)
	}
	return tw.Flush()
}

func locationLabel(id, name string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
