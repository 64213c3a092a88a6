// Package stores persists synced inventory, discounts and the per-location
// cache in SQLite (WAL mode, embedded migrations).
package stores
