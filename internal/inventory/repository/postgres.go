package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/storage"
)

const inventoryColumns = `product_id, available_qty, reserved_qty, minimum_qty, last_updated`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByProduct(ctx context.Context, q sqlx.ExtContext, productID int64) (*model.InventoryRecord, error) {
	return r.get(ctx, q, productID, "")
}

func (r *PGRepository) LockByProduct(ctx context.Context, tx sqlx.ExtContext, productID int64) (*model.InventoryRecord, error) {
	return r.get(ctx, tx, productID, storage.ForUpdate(tx))
}

func (r *PGRepository) get(ctx context.Context, q sqlx.ExtContext, productID int64, suffix string) (*model.InventoryRecord, error) {
	var rec model.InventoryRecord
	query := `SELECT ` + inventoryColumns + ` FROM inventory WHERE product_id = ?` + suffix

	err := sqlx.GetContext(ctx, q, &rec, q.Rebind(query), productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.InventoryRecord, int, error) {
	var items []model.InventoryRecord
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.LowStock {
		conditions = append(conditions, "available_qty <= minimum_qty")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	if err := namedCount(ctx, r.DB, "SELECT count(*) FROM inventory"+whereClause, args, &count); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + inventoryColumns + " FROM inventory" + whereClause +
		" ORDER BY available_qty - minimum_qty, product_id" + pageClause(f.Page, f.PageSize)

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *PGRepository) Decrement(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int, at time.Time) (int, bool, error) {
	query := `
        UPDATE inventory
        SET available_qty = available_qty - ?, last_updated = ?
        WHERE product_id = ? AND available_qty >= ?
        RETURNING available_qty
    `
	var after int
	err := sqlx.GetContext(ctx, tx, &after, tx.Rebind(query), qty, at, productID, qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to decrement inventory: %w", err)
	}
	return after, true, nil
}

func (r *PGRepository) Increment(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int, at time.Time) (int, error) {
	query := `
        INSERT INTO inventory (product_id, available_qty, reserved_qty, minimum_qty, last_updated)
        VALUES (?, ?, 0, 0, ?)
        ON CONFLICT (product_id)
        DO UPDATE SET
            available_qty = inventory.available_qty + EXCLUDED.available_qty,
            last_updated = EXCLUDED.last_updated
        RETURNING available_qty
    `
	var after int
	if err := sqlx.GetContext(ctx, tx, &after, tx.Rebind(query), productID, qty, at); err != nil {
		return 0, fmt.Errorf("failed to increment inventory: %w", err)
	}
	return after, nil
}

func (r *PGRepository) SetMinimum(ctx context.Context, q sqlx.ExtContext, productID int64, value int, at time.Time) (bool, error) {
	query := `UPDATE inventory SET minimum_qty = ?, last_updated = ? WHERE product_id = ?`
	res, err := q.ExecContext(ctx, q.Rebind(query), value, at, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PGRepository) LogMovement(ctx context.Context, tx sqlx.ExtContext, m *model.InventoryMovement) error {
	query := `
        INSERT INTO inventory_movements (
            id, product_id, batch_id, movement_type,
            quantity_change, quantity_before, quantity_after,
            reference_type, reference_id, created_at
        )
        VALUES (
            :id, :product_id, :batch_id, :movement_type,
            :quantity_change, :quantity_before, :quantity_after,
            :reference_type, :reference_id, :created_at
        )
    `
	if _, err := sqlx.NamedExecContext(ctx, tx, query, m); err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	var items []model.InventoryMovement
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.ReferenceType != "" {
		conditions = append(conditions, "reference_type = :reference_type")
		args["reference_type"] = f.ReferenceType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	if err := namedCount(ctx, r.DB, "SELECT count(*) FROM inventory_movements"+whereClause, args, &count); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, product_id, batch_id, movement_type, quantity_change, quantity_before,
        quantity_after, reference_type, reference_id, created_at
        FROM inventory_movements` + whereClause + " ORDER BY created_at DESC, id" + pageClause(f.Page, f.PageSize)

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func namedCount(ctx context.Context, db *sqlx.DB, query string, args map[string]interface{}, count *int) error {
	rows, err := db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(count); err != nil {
			return err
		}
	}
	return rows.Err()
}

func pageClause(page, pageSize int) string {
	if pageSize <= 0 {
		return ""
	}
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
}
