package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posbridge/posbridge/pkg/backoffice"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/export"
	"github.com/posbridge/posbridge/pkg/pos"
	"github.com/posbridge/posbridge/pkg/stores"
)

func inventoryRecords(t *testing.T, raw string) []backoffice.InventoryRecord {
	t.Helper()
	var recs []backoffice.InventoryRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &recs))
	return recs
}

func TestInventoryTask(t *testing.T) {
	bo := &fakeBackoffice{inventory: inventoryRecords(t, `[
		{"sku": 1001, "name": "Oat Milk", "quantity": 4, "price": 3.5},
		{"sku": "1002", "name": "Espresso Beans", "category": "Coffee", "quantity": 2, "price": 14}
	]`)}
	store := newMemStore()
	var asked []string
	task := &InventoryTask{Backoffice: resolverFor(bo, &asked), Store: store}

	counts, err := task.Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, engine.Counts{Processed: 2, Created: 2}, counts)
	assert.Equal(t, []string{"north"}, asked)

	item := store.items["1001"]
	assert.Equal(t, "12", item.LocationID)
	assert.Equal(t, "Oat Milk", item.Name)
	assert.Equal(t, 4.0, item.Quantity)

	counts, err = task.Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, engine.Counts{Processed: 2, Updated: 2}, counts)
}

func TestInventoryTask_DefaultAccount(t *testing.T) {
	loc := testLocation()
	loc.BackofficeAccount = ""

	var asked []string
	task := &InventoryTask{
		Backoffice:     resolverFor(&fakeBackoffice{}, &asked),
		DefaultAccount: "main",
		Store:          newMemStore(),
	}
	_, err := task.Run(context.Background(), loc, engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, asked)

	task.DefaultAccount = ""
	_, err = task.Run(context.Background(), loc, engine.Window{})
	require.ErrorContains(t, err, "no backoffice account")
}

func TestInventoryTask_Errors(t *testing.T) {
	task := &InventoryTask{
		Backoffice: resolverFor(&fakeBackoffice{err: errUpstream}, nil),
		Store:      newMemStore(),
	}
	counts, err := task.Run(context.Background(), testLocation(), engine.Window{})
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, engine.Counts{}, counts)

	store := newMemStore()
	store.upsertErr = errUpstream
	task = &InventoryTask{Backoffice: resolverFor(&fakeBackoffice{}, nil), Store: store}
	_, err = task.Run(context.Background(), testLocation(), engine.Window{})
	require.ErrorIs(t, err, errUpstream)
}

func TestEnrichmentTask(t *testing.T) {
	store := newMemStore()
	store.items["A"] = stores.InventoryItem{SKU: "A"}
	store.items["B"] = stores.InventoryItem{SKU: "B", Category: "Tea"}
	store.items["C"] = stores.InventoryItem{SKU: "C", Category: "Coffee", Description: "Dark roast"}
	store.items["D"] = stores.InventoryItem{SKU: "D"}

	catalog := &fakePOS{products: []pos.Product{
		{SKU: "A", Category: "Bakery", Description: "Croissant"},
		{SKU: "B", Category: "Tea", Description: "Green tea"},
		{SKU: "C", Category: "Other", Description: "Ignored"},
	}}
	task := &EnrichmentTask{Catalog: catalog, Store: store}

	counts, err := task.Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	// D is missing details but absent from the catalog.
	assert.Equal(t, engine.Counts{Processed: 3, Updated: 2}, counts)
	assert.Equal(t, []string{"key-12"}, catalog.apiKeys)
	assert.Equal(t, "Croissant", store.items["A"].Description)
	assert.Equal(t, "Dark roast", store.items["C"].Description)
}

func TestEnrichmentTask_NothingMissing(t *testing.T) {
	store := newMemStore()
	store.items["C"] = stores.InventoryItem{SKU: "C", Category: "Coffee", Description: "Dark roast"}
	catalog := &fakePOS{}

	counts, err := (&EnrichmentTask{Catalog: catalog, Store: store}).
		Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, engine.Counts{}, counts)
	assert.Zero(t, catalog.productCalls)
}

func TestDiscountTask(t *testing.T) {
	src := &fakePOS{discounts: []pos.Discount{
		{ID: "d1", Name: "Happy hour", Type: "percent", Value: 10, Active: true},
		{ID: "d2", Name: "Staff", Type: "amount", Value: 1.5},
	}}
	store := newMemStore()

	counts, err := (&DiscountTask{Source: src, Store: store}).
		Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, engine.Counts{Processed: 2, Created: 2}, counts)
	require.Len(t, store.discounts, 2)
	assert.Equal(t, "12", store.discounts[0].LocationID)
	assert.Equal(t, "Happy hour", store.discounts[0].Name)

	src.err = errUpstream
	_, err = (&DiscountTask{Source: src, Store: store}).
		Run(context.Background(), testLocation(), engine.Window{})
	require.ErrorIs(t, err, errUpstream)
	assert.Len(t, store.discounts, 2)
}

func TestCacheRefreshTask(t *testing.T) {
	store := newMemStore()
	store.items["A"] = stores.InventoryItem{SKU: "A", Quantity: 2, Price: 5}

	counts, err := (&CacheRefreshTask{Store: store}).
		Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, engine.Counts{Processed: 1, Updated: 1}, counts)
	require.NotNil(t, store.aggregate)
	assert.Equal(t, 10.0, store.aggregate.StockValue)
}

func TestERPPushTask(t *testing.T) {
	pushedAt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.aggregate = &stores.LocationAggregate{LocationID: "12", ItemCount: 3, StockValue: 42}
	pusher := &fakePusher{}
	task := &ERPPushTask{Store: store, Pusher: pusher, Clock: func() time.Time { return pushedAt }}

	counts, err := task.Run(context.Background(), testLocation(), engine.Window{})
	require.NoError(t, err)
	assert.Equal(t, engine.Counts{Processed: 1, Updated: 1}, counts)
	require.Len(t, pusher.pushed, 1)
	assert.Equal(t, "BR-12", pusher.pushed[0].StoreID)
	assert.Equal(t, 3, pusher.pushed[0].ItemCount)
	assert.Equal(t, pushedAt, store.pushedAt)
}

func TestERPPushTask_Errors(t *testing.T) {
	t.Run("no cached aggregate", func(t *testing.T) {
		task := &ERPPushTask{Store: newMemStore(), Pusher: &fakePusher{}}
		_, err := task.Run(context.Background(), testLocation(), engine.Window{})
		require.ErrorIs(t, err, stores.ErrNotFound)
	})

	t.Run("no store id", func(t *testing.T) {
		loc := testLocation()
		loc.ExternalStoreID = ""
		task := &ERPPushTask{Store: newMemStore(), Pusher: &fakePusher{}}
		_, err := task.Run(context.Background(), loc, engine.Window{})
		require.ErrorContains(t, err, "no external store id")
	})

	t.Run("push failure leaves marker", func(t *testing.T) {
		store := newMemStore()
		store.aggregate = &stores.LocationAggregate{LocationID: "12"}
		task := &ERPPushTask{Store: store, Pusher: &fakePusher{err: errUpstream}}
		_, err := task.Run(context.Background(), testLocation(), engine.Window{})
		require.ErrorIs(t, err, errUpstream)
		assert.True(t, store.pushedAt.IsZero())
	})
}

func TestExportTask(t *testing.T) {
	src := &fakePOS{transactions: []pos.Transaction{
		{ID: "t1", Type: pos.TransactionSale, Items: []pos.TransactionItem{{SKU: "A", Category: "Coffee", Total: 10}}},
		{ID: "t2", Type: pos.TransactionSale, Items: []pos.TransactionItem{{SKU: "B", Category: "Coffee", Total: 5}}},
	}}
	bo := &fakeBackoffice{report: &backoffice.ClosingReport{
		Registers: []map[string]interface{}{{"Prepaid Sales": 20.0, "Credit Card": 7.0}},
	}}
	sink := &memSink{}
	task := &ExportTask{
		Transactions: src,
		Backoffice:   resolverFor(bo, nil),
		Mapping:      export.Mapping{DefaultAccount: "4000", Categories: map[string]string{"Coffee": "4100"}},
		Sink:         sink,
	}

	counts, err := task.Run(context.Background(), testLocation(), engine.DayWindow(day))
	require.NoError(t, err)

	records, ok := sink.files["BR-12_2026-05-04.csv"]
	require.True(t, ok, "files: %v", sink.files)
	assert.Equal(t, engine.Counts{Processed: 2, Created: len(records)}, counts)
	assert.Equal(t, day, src.from)
	assert.Equal(t, day, bo.reportFrom)
	assert.Equal(t, day, bo.reportTo)

	var credit float64
	for _, r := range records {
		credit += r.Credit
	}
	// Sales of 15 plus prepaid of 20.
	assert.InDelta(t, 35.0, credit, 0.001)
}

func TestExportTask_BranchFallback(t *testing.T) {
	loc := testLocation()
	loc.ExternalStoreID = ""
	sink := &memSink{}
	task := &ExportTask{Transactions: &fakePOS{}, Mapping: export.Mapping{DefaultAccount: "4000"}, Sink: sink}

	_, err := task.Run(context.Background(), loc, engine.DayWindow(day))
	require.NoError(t, err)
	assert.Contains(t, sink.files, "12_2026-05-04.csv")
}

func TestExportTask_Errors(t *testing.T) {
	mapping := export.Mapping{DefaultAccount: "4000"}

	_, err := (&ExportTask{Transactions: &fakePOS{}, Mapping: mapping, Sink: &memSink{}}).
		Run(context.Background(), testLocation(), engine.Window{})
	require.ErrorContains(t, err, "day window")

	_, err = (&ExportTask{Transactions: &fakePOS{err: errUpstream}, Mapping: mapping, Sink: &memSink{}}).
		Run(context.Background(), testLocation(), engine.DayWindow(day))
	require.ErrorIs(t, err, errUpstream)

	_, err = (&ExportTask{Transactions: &fakePOS{}, Mapping: mapping, Sink: &memSink{err: errUpstream}}).
		Run(context.Background(), testLocation(), engine.DayWindow(day))
	require.ErrorIs(t, err, errUpstream)

	sink := &memSink{}
	_, err = (&ExportTask{
		Transactions: &fakePOS{},
		Backoffice:   resolverFor(&fakeBackoffice{err: errUpstream}, nil),
		Mapping:      mapping,
		Sink:         sink,
	}).Run(context.Background(), testLocation(), engine.DayWindow(day))
	require.ErrorIs(t, err, errUpstream)
	assert.Empty(t, sink.files)
}
