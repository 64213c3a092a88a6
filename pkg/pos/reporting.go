package pos

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Transaction is one POS transaction with its detail lines.
type Transaction struct {
	ID         string            `json:"id"`
	Number     string            `json:"number"`
	Type       string            `json:"type"`
	LocationID string            `json:"locationId"`
	CreatedAt  time.Time         `json:"createdAtUtc"`
	Total      float64           `json:"total"`
	Customer   string            `json:"customer,omitempty"`
	Items      []TransactionItem `json:"items"`
	Taxes      []TransactionTax  `json:"taxes"`
	Payments   []Payment         `json:"payments"`
}

// Transaction types reported by the POS.
const (
	TransactionSale   = "sale"
	TransactionRefund = "refund"
	TransactionVoid   = "void"
)

// TransactionItem is one line of a transaction.
type TransactionItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
}

// TransactionTax is one tax applied to a transaction.
type TransactionTax struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// Payment is one tender of a transaction.
type Payment struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

// Product is a catalog entry.
type Product struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Discount is a configured POS discount.
type Discount struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Value    float64    `json:"value"`
	Active   bool       `json:"active"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

// ReportingClient calls the POS reporting API with per-store API keys.
type ReportingClient struct {
	http *httpClient
}

// NewReportingClient creates a reporting client.
func NewReportingClient(cfg Config) *ReportingClient {
	return &ReportingClient{http: newHTTPClient("pos", cfg)}
}

// Transactions returns the transactions created in [from, to), with item and
// tax detail, in the order the POS reports them.
func (c *ReportingClient) Transactions(ctx context.Context, apiKey string, from, to time.Time) ([]Transaction, error) {
	q := url.Values{}
	q.Set("fromDateUtc", from.UTC().Format(time.RFC3339))
	q.Set("toDateUtc", to.UTC().Format(time.RFC3339))
	q.Set("includeDetail", "true")
	q.Set("includeTaxes", "true")

	var txs []Transaction
	if err := c.http.get(ctx, "/reporting/transactions", q, apiKey, &txs); err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return txs, nil
}

// Products returns the store's catalog.
func (c *ReportingClient) Products(ctx context.Context, apiKey string) ([]Product, error) {
	var products []Product
	if err := c.http.get(ctx, "/catalog/products", nil, apiKey, &products); err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	return products, nil
}

// Discounts returns the store's discounts.
func (c *ReportingClient) Discounts(ctx context.Context, apiKey string) ([]Discount, error) {
	var discounts []Discount
	if err := c.http.get(ctx, "/discounts", nil, apiKey, &discounts); err != nil {
		return nil, fmt.Errorf("failed to fetch discounts: %w", err)
	}
	return discounts, nil
}
