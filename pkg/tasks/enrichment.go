package tasks

import (
	"context"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/pos"
)

// EnrichmentTask fills in missing categories and descriptions from the POS catalog.
type EnrichmentTask struct {
	Catalog Catalog
	Store   InventoryStore
}

// Name returns the task name.
func (t *EnrichmentTask) Name() string { return string(engine.PhaseEnrichment) }

// Run enriches one location. The catalog is only fetched when some stored
// item lacks details.
func (t *EnrichmentTask) Run(ctx context.Context, loc engine.LocationConfig, _ engine.Window) (engine.Counts, error) {
	missing, err := t.Store.ItemsMissingDetails(ctx, loc.LocationID)
	if err != nil {
		return engine.Counts{}, err
	}
	if len(missing) == 0 {
		return engine.Counts{}, nil
	}

	products, err := t.Catalog.Products(ctx, loc.APIKey)
	if err != nil {
		return engine.Counts{}, err
	}
	bySKU := make(map[string]pos.Product, len(products))
	for _, p := range products {
		bySKU[p.SKU] = p
	}

	counts := engine.Counts{Processed: len(missing)}
	for _, item := range missing {
		p, ok := bySKU[item.SKU]
		if !ok {
			continue
		}
		changed, err := t.Store.UpdateItemDetails(ctx, loc.LocationID, item.SKU, p.Category, p.Description)
		if err != nil {
			return engine.Counts{}, err
		}
		if changed {
			counts.Updated++
		}
	}
	return counts, nil
}
