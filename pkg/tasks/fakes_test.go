package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/posbridge/posbridge/pkg/backoffice"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/erp"
	"github.com/posbridge/posbridge/pkg/export"
	"github.com/posbridge/posbridge/pkg/pos"
	"github.com/posbridge/posbridge/pkg/stores"
)

var (
	errUpstream = errors.New("upstream down")

	day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
)

func testLocation() engine.LocationConfig {
	return engine.LocationConfig{
		LocationID:        "12",
		ExternalStoreID:   "BR-12",
		Name:              "Harbor Street",
		APIKey:            "key-12",
		BackofficeAccount: "north",
	}
}

type fakeBackoffice struct {
	inventory []backoffice.InventoryRecord
	report    *backoffice.ClosingReport
	err       error

	reportFrom, reportTo time.Time
}

func (f *fakeBackoffice) ListInventory(context.Context, string) ([]backoffice.InventoryRecord, error) {
	return f.inventory, f.err
}

func (f *fakeBackoffice) GetClosingReport(_ context.Context, from, to time.Time, _ string) (*backoffice.ClosingReport, error) {
	f.reportFrom, f.reportTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

// resolverFor serves bo for every account and records the accounts asked for.
func resolverFor(bo Backoffice, asked *[]string) BackofficeResolver {
	return func(account string) (Backoffice, error) {
		if asked != nil {
			*asked = append(*asked, account)
		}
		return bo, nil
	}
}

// memStore is an in-memory stand-in for the SQLite store.
type memStore struct {
	mu sync.Mutex

	items     map[string]stores.InventoryItem
	discounts []stores.Discount
	aggregate *stores.LocationAggregate
	pushedAt  time.Time

	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]stores.InventoryItem)}
}

func (m *memStore) UpsertInventory(_ context.Context, _ string, items []stores.InventoryItem) (stores.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return stores.UpsertResult{}, m.upsertErr
	}
	var res stores.UpsertResult
	for _, it := range items {
		res.Processed++
		if _, ok := m.items[it.SKU]; ok {
			res.Updated++
		} else {
			res.Created++
		}
		m.items[it.SKU] = it
	}
	return res, nil
}

func (m *memStore) ItemsMissingDetails(context.Context, string) ([]*stores.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*stores.InventoryItem
	for _, it := range m.items {
		if it.MissingDetails() {
			it := it
			out = append(out, &it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *memStore) UpdateItemDetails(_ context.Context, _, sku, category, description string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[sku]
	if !ok {
		return false, stores.ErrNotFound
	}
	if it.Category == category && it.Description == description {
		return false, nil
	}
	it.Category, it.Description = category, description
	m.items[sku] = it
	return true, nil
}

func (m *memStore) ReplaceDiscounts(_ context.Context, _ string, discounts []stores.Discount) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discounts = discounts
	return len(discounts), nil
}

func (m *memStore) RefreshLocationCache(_ context.Context, locationID string) (*stores.LocationAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := &stores.LocationAggregate{LocationID: locationID, ItemCount: len(m.items)}
	for _, it := range m.items {
		agg.TotalQuantity += it.Quantity
		agg.StockValue += it.Quantity * it.Price
	}
	m.aggregate = agg
	return agg, nil
}

func (m *memStore) GetLocationAggregate(context.Context, string) (*stores.LocationAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aggregate == nil {
		return nil, stores.ErrNotFound
	}
	return m.aggregate, nil
}

func (m *memStore) MarkPushed(_ context.Context, _ string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aggregate == nil {
		return stores.ErrNotFound
	}
	m.pushedAt = at
	return nil
}

type fakePOS struct {
	products     []pos.Product
	discounts    []pos.Discount
	transactions []pos.Transaction
	err          error

	productCalls int
	apiKeys      []string
	from, to     time.Time
}

func (f *fakePOS) Products(_ context.Context, apiKey string) ([]pos.Product, error) {
	f.productCalls++
	f.apiKeys = append(f.apiKeys, apiKey)
	return f.products, f.err
}

func (f *fakePOS) Discounts(_ context.Context, apiKey string) ([]pos.Discount, error) {
	f.apiKeys = append(f.apiKeys, apiKey)
	return f.discounts, f.err
}

func (f *fakePOS) Transactions(_ context.Context, apiKey string, from, to time.Time) ([]pos.Transaction, error) {
	f.apiKeys = append(f.apiKeys, apiKey)
	f.from, f.to = from, to
	return f.transactions, f.err
}

type fakePusher struct {
	pushed []erp.Aggregate
	err    error
}

func (f *fakePusher) Push(_ context.Context, agg erp.Aggregate) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, agg)
	return nil
}

type memSink struct {
	files map[string][]export.Record
	err   error
}

func (s *memSink) Write(_ context.Context, name string, records []export.Record) error {
	if s.err != nil {
		return s.err
	}
	if s.files == nil {
		s.files = make(map[string][]export.Record)
	}
	s.files[name] = records
	return nil
}
