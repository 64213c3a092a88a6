package stores

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// InventoryItem is one stocked item at a location.
type InventoryItem struct {
	LocationID  string    `json:"location_id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MissingDetails reports whether enrichment still has work to do.
func (i InventoryItem) MissingDetails() bool {
	return i.Category == "" || i.Description == ""
}

// sameStock compares the fields an inventory sync writes.
func (i InventoryItem) sameStock(o InventoryItem) bool {
	return i.Name == o.Name &&
		i.Quantity == o.Quantity &&
		i.Price == o.Price &&
		(o.Category == "" || i.Category == o.Category) &&
		(o.Description == "" || i.Description == o.Description)
}

// Discount is a discount configured at a location.
type Discount struct {
	LocationID string     `json:"location_id"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Value      float64    `json:"value"`
	Active     bool       `json:"active"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LiveAt reports whether the discount applies at t.
func (d Discount) LiveAt(t time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && t.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && !t.Before(*d.EndsAt) {
		return false
	}
	return true
}

// LocationAggregate is the cached per-location summary pushed downstream.
type LocationAggregate struct {
	LocationID      string     `json:"location_id"`
	ItemCount       int        `json:"item_count"`
	TotalQuantity   float64    `json:"total_quantity"`
	StockValue      float64    `json:"stock_value"`
	OutOfStock      int        `json:"out_of_stock"`
	MissingDetails  int        `json:"missing_details"`
	DiscountCount   int        `json:"discount_count"`
	ActiveDiscounts int        `json:"active_discounts"`
	RefreshedAt     time.Time  `json:"refreshed_at"`
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
}

// UpsertResult counts what an inventory upsert changed.
type UpsertResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
}
