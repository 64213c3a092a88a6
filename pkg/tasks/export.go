package tasks

import (
	"context"
	"fmt"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/export"
)

// ExportTask writes one location's accounting records for a day.
type ExportTask struct {
	Transactions TransactionSource

	// Backoffice, when set, adds closing-report rows.
	Backoffice     BackofficeResolver
	DefaultAccount string

	Mapping export.Mapping
	Sink    export.Sink
}

// Name returns the task name.
func (t *ExportTask) Name() string { return string(engine.PhaseExport) }

// Run exports the day described by window.
func (t *ExportTask) Run(ctx context.Context, loc engine.LocationConfig, window engine.Window) (engine.Counts, error) {
	if window.CurrentState() {
		return engine.Counts{}, fmt.Errorf("export needs a day window")
	}

	txs, err := t.Transactions.Transactions(ctx, loc.APIKey, window.From, window.To)
	if err != nil {
		return engine.Counts{}, err
	}

	branch := loc.ExternalStoreID
	if branch == "" {
		branch = loc.LocationID
	}
	day := export.Day{
		Branch:       branch,
		LocationName: loc.Name,
		Date:         window.From,
		Transactions: txs,
	}

	if t.Backoffice != nil {
		client, err := backofficeFor(t.Backoffice, t.DefaultAccount, loc)
		if err != nil {
			return engine.Counts{}, err
		}
		// The closing report takes inclusive dates.
		report, err := client.GetClosingReport(ctx, window.From, window.From, loc.LocationID)
		if err != nil {
			return engine.Counts{}, err
		}
		day.Closing = &export.ClosingTotals{
			PrepaidSales:       report.PrepaidSales(),
			ElectronicPayments: report.ElectronicPayments(),
		}
	}

	records := export.Build(t.Mapping, day)
	if err := t.Sink.Write(ctx, export.FileName(branch, window.From), records); err != nil {
		return engine.Counts{}, fmt.Errorf("export for %s: %w", loc.LocationID, err)
	}
	return engine.Counts{Processed: len(txs), Created: len(records)}, nil
}
