package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/storage"
)

const batchColumns = `id, product_id, supplier_id, received_date, expiry_date,
    unit_cost, initial_qty, remaining_qty, status`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByID(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Batch, error) {
	var b model.Batch
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = ?`
	err := sqlx.GetContext(ctx, q, &b, q.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGRepository) ListAllocatable(ctx context.Context, tx sqlx.ExtContext, productID int64) ([]model.Batch, error) {
	query := `
        SELECT ` + batchColumns + `
        FROM batches
        WHERE product_id = ? AND status = ? AND remaining_qty > 0
        ORDER BY expiry_date ASC, id ASC` + storage.ForUpdate(tx)

	var items []model.Batch
	if err := sqlx.SelectContext(ctx, tx, &items, tx.Rebind(query), productID, model.BatchActive); err != nil {
		return nil, fmt.Errorf("failed to list allocatable batches: %w", err)
	}
	return items, nil
}

func (r *PGRepository) ListByProduct(ctx context.Context, productID int64) ([]model.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE product_id = ? ORDER BY expiry_date ASC, id ASC`

	items := []model.Batch{}
	err := r.DB.SelectContext(ctx, &items, r.DB.Rebind(query), productID)
	return items, err
}

func (r *PGRepository) Create(ctx context.Context, tx sqlx.ExtContext, b *model.Batch) error {
	query := `
        INSERT INTO batches (
            product_id, supplier_id, received_date, expiry_date,
            unit_cost, initial_qty, remaining_qty, status
        )
        VALUES (
            :product_id, :supplier_id, :received_date, :expiry_date,
            :unit_cost, :initial_qty, :remaining_qty, :status
        )
        RETURNING id
    `
	bound, args, err := tx.BindNamed(query, b)
	if err != nil {
		return err
	}
	if err := tx.QueryRowxContext(ctx, bound, args...).Scan(&b.ID); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (r *PGRepository) ReduceRemaining(ctx context.Context, tx sqlx.ExtContext, id int64, qty int) (bool, error) {
	query := `UPDATE batches SET remaining_qty = remaining_qty - ? WHERE id = ? AND remaining_qty >= ?`
	return affected(tx.ExecContext(ctx, tx.Rebind(query), qty, id, qty))
}

func (r *PGRepository) RestoreRemaining(ctx context.Context, tx sqlx.ExtContext, id int64, qty int) (bool, error) {
	query := `
        UPDATE batches SET remaining_qty = remaining_qty + ?
        WHERE id = ? AND status = ? AND remaining_qty + ? <= initial_qty`
	return affected(tx.ExecContext(ctx, tx.Rebind(query), qty, id, model.BatchActive, qty))
}

func (r *PGRepository) MarkDefective(ctx context.Context, tx sqlx.ExtContext, id int64) (int, bool, error) {
	query := `
        UPDATE batches SET status = ?
        WHERE id = ? AND status = ?
        RETURNING remaining_qty`

	var remaining int
	err := tx.QueryRowxContext(ctx, tx.Rebind(query), model.BatchDefective, id, model.BatchActive).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to mark batch defective: %w", err)
	}
	return remaining, true, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
