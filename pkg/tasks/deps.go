// Package tasks implements the per-location sync tasks run by the engine.
//
// Each task depends on small interfaces so the wiring in cmd/posbridge can
// pass the concrete backoffice pool, POS clients, SQLite store and sinks.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/posbridge/posbridge/pkg/backoffice"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/erp"
	"github.com/posbridge/posbridge/pkg/pos"
	"github.com/posbridge/posbridge/pkg/stores"
)

// Backoffice is the backoffice API as seen by one account's client.
type Backoffice interface {
	ListInventory(ctx context.Context, locID string) ([]backoffice.InventoryRecord, error)
	GetClosingReport(ctx context.Context, from, to time.Time, locID string) (*backoffice.ClosingReport, error)
}

// BackofficeResolver returns the client for a backoffice account.
type BackofficeResolver func(account string) (Backoffice, error)

// PoolResolver resolves accounts through a backoffice pool.
func PoolResolver(p *backoffice.Pool) BackofficeResolver {
	return func(account string) (Backoffice, error) {
		c, err := p.Client(account)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// backofficeFor picks the location's account, falling back to def.
func backofficeFor(resolve BackofficeResolver, def string, loc engine.LocationConfig) (Backoffice, error) {
	if resolve == nil {
		return nil, fmt.Errorf("no backoffice configured")
	}
	account := loc.BackofficeAccount
	if account == "" {
		account = def
	}
	if account == "" {
		return nil, fmt.Errorf("location %s has no backoffice account", loc.LocationID)
	}
	return resolve(account)
}

// InventoryStore is where inventory and enrichment write.
type InventoryStore interface {
	UpsertInventory(ctx context.Context, locationID string, items []stores.InventoryItem) (stores.UpsertResult, error)
	ItemsMissingDetails(ctx context.Context, locationID string) ([]*stores.InventoryItem, error)
	UpdateItemDetails(ctx context.Context, locationID, sku, category, description string) (bool, error)
}

// DiscountStore stores discounts.
type DiscountStore interface {
	ReplaceDiscounts(ctx context.Context, locationID string, discounts []stores.Discount) (int, error)
}

// CacheStore holds the per-location aggregate.
type CacheStore interface {
	RefreshLocationCache(ctx context.Context, locationID string) (*stores.LocationAggregate, error)
	GetLocationAggregate(ctx context.Context, locationID string) (*stores.LocationAggregate, error)
	MarkPushed(ctx context.Context, locationID string, at time.Time) error
}

// Catalog returns a store's products.
type Catalog interface {
	Products(ctx context.Context, apiKey string) ([]pos.Product, error)
}

// DiscountSource returns a store's discounts.
type DiscountSource interface {
	Discounts(ctx context.Context, apiKey string) ([]pos.Discount, error)
}

// TransactionSource returns a store's transactions.
type TransactionSource interface {
	Transactions(ctx context.Context, apiKey string, from, to time.Time) ([]pos.Transaction, error)
}

// Pusher sends an aggregate to the ERP.
type Pusher interface {
	Push(ctx context.Context, agg erp.Aggregate) error
}
