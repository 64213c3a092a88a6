package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// SQLiteStore persists sync state in SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 4
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg, now: time.Now}, nil
}

// Init opens the database in WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Inventory

// UpsertInventory writes the given items for a location. Existing rows are
// updated only when something changed, and an empty incoming category or
// description never erases an enriched value.
func (s *SQLiteStore) UpsertInventory(ctx context.Context, locationID string, items []InventoryItem) (UpsertResult, error) {
	res := UpsertResult{Processed: len(items)}
	now := s.now().UTC().Format(timeLayout)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			if item.SKU == "" {
				return fmt.Errorf("inventory item for location %s has no sku", locationID)
			}

			existing, err := getInventoryItem(ctx, tx, locationID, item.SKU)
			switch {
			case errors.Is(err, ErrNotFound):
				_, err = tx.ExecContext(ctx, `
					INSERT INTO inventory_items (location_id, sku, name, category, description, quantity, price, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, locationID, item.SKU, item.Name, item.Category, item.Description, item.Quantity, item.Price, now, now)
				if err != nil {
					return fmt.Errorf("failed to insert item %s: %w", item.SKU, err)
				}
				res.Created++
			case err != nil:
				return err
			case existing.sameStock(item):
				// unchanged
			default:
				_, err = tx.ExecContext(ctx, `
					UPDATE inventory_items
					SET name = ?,
					    quantity = ?,
					    price = ?,
					    category = CASE WHEN ? = '' THEN category ELSE ? END,
					    description = CASE WHEN ? = '' THEN description ELSE ? END,
					    updated_at = ?
					WHERE location_id = ? AND sku = ?
				`, item.Name, item.Quantity, item.Price,
					item.Category, item.Category,
					item.Description, item.Description,
					now, locationID, item.SKU)
				if err != nil {
					return fmt.Errorf("failed to update item %s: %w", item.SKU, err)
				}
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to upsert inventory for %s: %w", locationID, err)
	}
	return res, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getInventoryItem(ctx context.Context, q queryRower, locationID, sku string) (*InventoryItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT location_id, sku, name, category, description, quantity, price, created_at, updated_at
		FROM inventory_items
		WHERE location_id = ? AND sku = ?
	`, locationID, sku)

	item, err := scanInventoryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", sku, err)
	}
	return item, nil
}

// GetInventoryItem retrieves one item.
func (s *SQLiteStore) GetInventoryItem(ctx context.Context, locationID, sku string) (*InventoryItem, error) {
	return getInventoryItem(ctx, s.db, locationID, sku)
}

// ListInventory lists a location's items ordered by sku.
func (s *SQLiteStore) ListInventory(ctx context.Context, locationID string) ([]*InventoryItem, error) {
	return s.queryInventory(ctx, `
		SELECT location_id, sku, name, category, description, quantity, price, created_at, updated_at
		FROM inventory_items
		WHERE location_id = ?
		ORDER BY sku
	`, locationID)
}

// ItemsMissingDetails lists items without a category or description.
func (s *SQLiteStore) ItemsMissingDetails(ctx context.Context, locationID string) ([]*InventoryItem, error) {
	return s.queryInventory(ctx, `
		SELECT location_id, sku, name, category, description, quantity, price, created_at, updated_at
		FROM inventory_items
		WHERE location_id = ? AND (category = '' OR description = '')
		ORDER BY sku
	`, locationID)
}

func (s *SQLiteStore) queryInventory(ctx context.Context, query string, args ...interface{}) ([]*InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	items := []*InventoryItem{}
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}
	return items, nil
}

// UpdateItemDetails fills in category and description. Empty arguments keep
// the stored value. It reports whether a row changed.
func (s *SQLiteStore) UpdateItemDetails(ctx context.Context, locationID, sku, category, description string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET category = CASE WHEN ? = '' THEN category ELSE ? END,
		    description = CASE WHEN ? = '' THEN description ELSE ? END,
		    updated_at = ?
		WHERE location_id = ? AND sku = ?
		  AND (category <> CASE WHEN ? = '' THEN category ELSE ? END
		       OR description <> CASE WHEN ? = '' THEN description ELSE ? END)
	`, category, category, description, description,
		s.now().UTC().Format(timeLayout),
		locationID, sku,
		category, category, description, description)
	if err != nil {
		return false, fmt.Errorf("failed to update item details: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Discounts

// ReplaceDiscounts swaps a location's discounts for the given set.
func (s *SQLiteStore) ReplaceDiscounts(ctx context.Context, locationID string, discounts []Discount) (int, error) {
	now := s.now().UTC().Format(timeLayout)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM discounts WHERE location_id = ?`, locationID); err != nil {
			return fmt.Errorf("failed to clear discounts: %w", err)
		}
		for _, d := range discounts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO discounts (location_id, id, name, type, value, active, starts_at, ends_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, locationID, d.ID, d.Name, d.Type, d.Value, d.Active,
				formatTimePtr(d.StartsAt), formatTimePtr(d.EndsAt), now)
			if err != nil {
				return fmt.Errorf("failed to insert discount %s: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace discounts for %s: %w", locationID, err)
	}
	return len(discounts), nil
}

// ListDiscounts lists a location's discounts ordered by id.
func (s *SQLiteStore) ListDiscounts(ctx context.Context, locationID string) ([]*Discount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, id, name, type, value, active, starts_at, ends_at, updated_at
		FROM discounts
		WHERE location_id = ?
		ORDER BY id
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", err)
	}
	defer rows.Close()

	discounts := []*Discount{}
	for rows.Next() {
		var (
			d                Discount
			startsAt, endsAt sql.NullString
			updatedAt        string
		)
		if err := rows.Scan(&d.LocationID, &d.ID, &d.Name, &d.Type, &d.Value, &d.Active,
			&startsAt, &endsAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}
		if d.StartsAt, err = parseTimePtr(startsAt); err != nil {
			return nil, err
		}
		if d.EndsAt, err = parseTimePtr(endsAt); err != nil {
			return nil, err
		}
		if d.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
		}
		discounts = append(discounts, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating discounts: %w", err)
	}
	return discounts, nil
}

// Location cache

// RefreshLocationCache recomputes a location's aggregate from the current
// inventory and discounts and stores it. The previous push marker is kept.
func (s *SQLiteStore) RefreshLocationCache(ctx context.Context, locationID string) (*LocationAggregate, error) {
	now := s.now().UTC()
	agg := &LocationAggregate{LocationID: locationID, RefreshedAt: now}

	items, err := s.ListInventory(ctx, locationID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		agg.ItemCount++
		agg.TotalQuantity += item.Quantity
		agg.StockValue += item.Quantity * item.Price
		if item.Quantity <= 0 {
			agg.OutOfStock++
		}
		if item.MissingDetails() {
			agg.MissingDetails++
		}
	}
	agg.StockValue = math.Round(agg.StockValue*100) / 100

	discounts, err := s.ListDiscounts(ctx, locationID)
	if err != nil {
		return nil, err
	}
	for _, d := range discounts {
		agg.DiscountCount++
		if d.LiveAt(now) {
			agg.ActiveDiscounts++
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO location_cache (
			location_id, item_count, total_quantity, stock_value, out_of_stock,
			missing_details, discount_count, active_discounts, refreshed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			item_count = excluded.item_count,
			total_quantity = excluded.total_quantity,
			stock_value = excluded.stock_value,
			out_of_stock = excluded.out_of_stock,
			missing_details = excluded.missing_details,
			discount_count = excluded.discount_count,
			active_discounts = excluded.active_discounts,
			refreshed_at = excluded.refreshed_at
	`, agg.LocationID, agg.ItemCount, agg.TotalQuantity, agg.StockValue, agg.OutOfStock,
		agg.MissingDetails, agg.DiscountCount, agg.ActiveDiscounts, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to write location cache: %w", err)
	}

	return agg, nil
}

// GetLocationAggregate returns the cached aggregate, or ErrNotFound.
func (s *SQLiteStore) GetLocationAggregate(ctx context.Context, locationID string) (*LocationAggregate, error) {
	var (
		agg         LocationAggregate
		refreshedAt string
		pushedAt    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT location_id, item_count, total_quantity, stock_value, out_of_stock,
		       missing_details, discount_count, active_discounts, refreshed_at, pushed_at
		FROM location_cache
		WHERE location_id = ?
	`, locationID).Scan(
		&agg.LocationID,
		&agg.ItemCount,
		&agg.TotalQuantity,
		&agg.StockValue,
		&agg.OutOfStock,
		&agg.MissingDetails,
		&agg.DiscountCount,
		&agg.ActiveDiscounts,
		&refreshedAt,
		&pushedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location cache for %s: %w", locationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location cache: %w", err)
	}

	if agg.RefreshedAt, err = time.Parse(timeLayout, refreshedAt); err != nil {
		return nil, fmt.Errorf("invalid refreshed_at %q: %w", refreshedAt, err)
	}
	if agg.PushedAt, err = parseTimePtr(pushedAt); err != nil {
		return nil, err
	}
	return &agg, nil
}

// MarkPushed records when a location's aggregate was pushed downstream.
func (s *SQLiteStore) MarkPushed(ctx context.Context, locationID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE location_cache SET pushed_at = ? WHERE location_id = ?`,
		at.UTC().Format(timeLayout), locationID)
	if err != nil {
		return fmt.Errorf("failed to mark pushed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("location cache for %s: %w", locationID, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInventoryItem(row scanner) (*InventoryItem, error) {
	var (
		item                 InventoryItem
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&item.LocationID,
		&item.SKU,
		&item.Name,
		&item.Category,
		&item.Description,
		&item.Quantity,
		&item.Price,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if item.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if item.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &item, nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", v.String, err)
	}
	return &t, nil
}
