package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order/dto"
	"github.com/fekuna/merkado-order-service/internal/storage"
)

const orderColumns = `id, customer_id, type, payment_method, status, created_at, updated_at,
    subtotal, shipping_cost, total, delivery_address, delivery_type, scheduled_at, applied_discount_id`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, tx sqlx.ExtContext, o *model.Order) error {
	query := `
        INSERT INTO orders (
            customer_id, type, payment_method, status, created_at, updated_at,
            subtotal, shipping_cost, total, delivery_address, delivery_type,
            scheduled_at, applied_discount_id
        )
        VALUES (
            :customer_id, :type, :payment_method, :status, :created_at, :updated_at,
            :subtotal, :shipping_cost, :total, :delivery_address, :delivery_type,
            :scheduled_at, :applied_discount_id
        )
        RETURNING id
    `
	bound, args, err := tx.BindNamed(query, o)
	if err != nil {
		return err
	}
	if err := tx.QueryRowxContext(ctx, bound, args...).Scan(&o.ID); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *PGRepository) CreateItems(ctx context.Context, tx sqlx.ExtContext, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
        INSERT INTO order_items (order_id, product_id, batch_id, quantity, unit_price)
        VALUES (:order_id, :product_id, :batch_id, :quantity, :unit_price)
    `
	if _, err := sqlx.NamedExecContext(ctx, tx, query, items); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}
	return nil
}

func (r *PGRepository) FindByID(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Order, error) {
	return r.get(ctx, q, id, "")
}

func (r *PGRepository) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*model.Order, error) {
	return r.get(ctx, tx, id, storage.ForUpdate(tx))
}

func (r *PGRepository) get(ctx context.Context, q sqlx.ExtContext, id int64, suffix string) (*model.Order, error) {
	var o model.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?` + suffix
	err := sqlx.GetContext(ctx, q, &o, q.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// FindItems returns the rows of each line in the order the batches were consumed.
func (r *PGRepository) FindItems(ctx context.Context, q sqlx.ExtContext, orderID int64) ([]model.OrderItem, error) {
	query := `
        SELECT oi.order_id, oi.product_id, oi.batch_id, oi.quantity, oi.unit_price
        FROM order_items oi
        JOIN batches b ON b.id = oi.batch_id
        WHERE oi.order_id = ?
        ORDER BY oi.product_id, b.expiry_date, b.id
    `
	items := []model.OrderItem{}
	err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), orderID)
	return items, err
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.OrderFilters) ([]model.Order, int, error) {
	var items []model.Order
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.CustomerID != 0 {
		conditions = append(conditions, "customer_id = :customer_id")
		args["customer_id"] = f.CustomerID
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM orders" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}
	rows.Close()

	query := "SELECT " + orderColumns + " FROM orders" + whereClause + " ORDER BY created_at DESC, id DESC"
	if f.PageSize > 0 {
		page := max(f.Page, 1)
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx sqlx.ExtContext, id int64, status model.OrderStatus, at time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(query), status, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
