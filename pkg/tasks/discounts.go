package tasks

import (
	"context"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/stores"
)

// DiscountTask replaces a location's stored discounts with the POS's current set.
type DiscountTask struct {
	Source DiscountSource
	Store  DiscountStore
}

// Name returns the task name.
func (t *DiscountTask) Name() string { return string(engine.PhaseDiscounts) }

// Run syncs one location's discounts.
func (t *DiscountTask) Run(ctx context.Context, loc engine.LocationConfig, _ engine.Window) (engine.Counts, error) {
	discounts, err := t.Source.Discounts(ctx, loc.APIKey)
	if err != nil {
		return engine.Counts{}, err
	}

	rows := make([]stores.Discount, 0, len(discounts))
	for _, d := range discounts {
		rows = append(rows, stores.Discount{
			LocationID: loc.LocationID,
			ID:         d.ID,
			Name:       d.Name,
			Type:       d.Type,
			Value:      d.Value,
			Active:     d.Active,
			StartsAt:   d.StartsAt,
			EndsAt:     d.EndsAt,
		})
	}

	n, err := t.Store.ReplaceDiscounts(ctx, loc.LocationID, rows)
	if err != nil {
		return engine.Counts{}, err
	}
	return engine.Counts{Processed: n, Created: n}, nil
}
