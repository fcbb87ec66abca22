// Package storagetest opens throwaway SQLite databases carrying the same
// tables as the Postgres schema, for repository and workflow tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// schema is the SQLite rendition of pkg/database/migrations/schema.sql.
// Column sets must match it; TestSchemaMatchesMigrations checks that.
const schema = `
CREATE TABLE products (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT     NOT NULL,
    price      TEXT     NOT NULL,
    is_active  BOOLEAN  NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE inventory (
    product_id    INTEGER  PRIMARY KEY REFERENCES products (id),
    available_qty INTEGER  NOT NULL DEFAULT 0 CHECK (available_qty >= 0),
    reserved_qty  INTEGER  NOT NULL DEFAULT 0 CHECK (reserved_qty >= 0),
    minimum_qty   INTEGER  NOT NULL DEFAULT 0 CHECK (minimum_qty >= 0),
    last_updated  DATETIME NOT NULL
);

CREATE TABLE batches (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    product_id    INTEGER  NOT NULL REFERENCES products (id),
    supplier_id   INTEGER  NOT NULL,
    received_date DATETIME NOT NULL,
    expiry_date   DATETIME NOT NULL,
    unit_cost     TEXT     NOT NULL,
    initial_qty   INTEGER  NOT NULL CHECK (initial_qty > 0),
    remaining_qty INTEGER  NOT NULL CHECK (remaining_qty >= 0 AND remaining_qty <= initial_qty),
    status        TEXT     NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'EXPIRED', 'DEFECTIVE'))
);

CREATE INDEX idx_batches_allocatable
    ON batches (product_id, expiry_date, id)
    WHERE status = 'ACTIVE' AND remaining_qty > 0;

CREATE TABLE orders (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id         INTEGER  NOT NULL,
    type                TEXT     NOT NULL,
    payment_method      TEXT     NOT NULL,
    status              TEXT     NOT NULL,
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL,
    subtotal            TEXT     NOT NULL,
    shipping_cost       TEXT     NOT NULL,
    total               TEXT     NOT NULL,
    delivery_address    TEXT     NOT NULL DEFAULT '',
    delivery_type       TEXT     NOT NULL,
    scheduled_at        DATETIME,
    applied_discount_id INTEGER
);

CREATE INDEX idx_orders_customer ON orders (customer_id, created_at DESC);

CREATE TABLE order_items (
    order_id   INTEGER NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
    product_id INTEGER NOT NULL REFERENCES products (id),
    batch_id   INTEGER NOT NULL REFERENCES batches (id),
    quantity   INTEGER NOT NULL CHECK (quantity > 0),
    unit_price TEXT    NOT NULL,
    PRIMARY KEY (order_id, product_id, batch_id)
);

CREATE TABLE inventory_movements (
    id              TEXT PRIMARY KEY,
    product_id      INTEGER  NOT NULL REFERENCES products (id),
    batch_id        INTEGER  REFERENCES batches (id),
    movement_type   TEXT     NOT NULL,
    quantity_change INTEGER  NOT NULL,
    quantity_before INTEGER  NOT NULL,
    quantity_after  INTEGER  NOT NULL,
    reference_type  TEXT,
    reference_id    TEXT,
    created_at      DATETIME NOT NULL
);

CREATE INDEX idx_movements_product ON inventory_movements (product_id, created_at DESC);
`

// Open returns a fresh database in t.TempDir(), closed on cleanup.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "merkado.db")
	db, err := sqlx.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection: a second one would block on the writer lock held by an open tx.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// SeedProduct inserts a product with the given sale price and returns its id.
func SeedProduct(t *testing.T, db *sqlx.DB, name, price string) int64 {
	t.Helper()

	res, err := db.Exec(`INSERT INTO products (name, price, is_active) VALUES (?, ?, 1)`,
		name, decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// SeedInventory writes the inventory row for a product.
func SeedInventory(t *testing.T, db *sqlx.DB, productID int64, available, minimum int) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO inventory (product_id, available_qty, reserved_qty, minimum_qty, last_updated)
		VALUES (?, ?, 0, ?, ?)`, productID, available, minimum, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

// SeedBatch inserts an ACTIVE batch whose remaining quantity equals its initial quantity.
func SeedBatch(t *testing.T, db *sqlx.DB, productID int64, qty int, expiry time.Time) int64 {
	t.Helper()

	res, err := db.Exec(`INSERT INTO batches
		(product_id, supplier_id, received_date, expiry_date, unit_cost, initial_qty, remaining_qty, status)
		VALUES (?, 1, ?, ?, ?, ?, ?, 'ACTIVE')`,
		productID, expiry.AddDate(0, -1, 0), expiry, decimal.RequireFromString("1.00"), qty, qty)
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// Count returns the number of rows in table. The name is trusted test input.
func Count(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()

	var n int
	if err := db.GetContext(context.Background(), &n, "SELECT count(*) FROM "+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
