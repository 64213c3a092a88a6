package tasks

import (
	"context"
	"fmt"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/stores"
)

// InventoryTask copies the backoffice stock list for a location into the store.
type InventoryTask struct {
	Backoffice     BackofficeResolver
	DefaultAccount string
	Store          InventoryStore
}

// Name returns the task name.
func (t *InventoryTask) Name() string { return string(engine.PhaseInventory) }

// Run syncs one location's inventory.
func (t *InventoryTask) Run(ctx context.Context, loc engine.LocationConfig, _ engine.Window) (engine.Counts, error) {
	client, err := backofficeFor(t.Backoffice, t.DefaultAccount, loc)
	if err != nil {
		return engine.Counts{}, err
	}

	records, err := client.ListInventory(ctx, loc.LocationID)
	if err != nil {
		return engine.Counts{}, err
	}

	items := make([]stores.InventoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, stores.InventoryItem{
			LocationID:  loc.LocationID,
			SKU:         string(r.SKU),
			Name:        r.Name,
			Category:    r.Category,
			Description: r.Description,
			Quantity:    r.Quantity,
			Price:       r.Price,
		})
	}

	res, err := t.Store.UpsertInventory(ctx, loc.LocationID, items)
	if err != nil {
		return engine.Counts{}, fmt.Errorf("inventory for %s: %w", loc.LocationID, err)
	}
	return engine.Counts{Processed: res.Processed, Created: res.Created, Updated: res.Updated}, nil
}
