package inventory

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
)

// Repository methods that take q run on whatever q is: the pool or an open tx.
type Repository interface {
	GetByProduct(ctx context.Context, q sqlx.ExtContext, productID int64) (*model.InventoryRecord, error)
	// LockByProduct reads the row with a row lock held until the tx ends.
	LockByProduct(ctx context.Context, tx sqlx.ExtContext, productID int64) (*model.InventoryRecord, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.InventoryRecord, int, error)

	// Decrement subtracts qty only if available_qty >= qty. It returns the new
	// quantity, or ok=false when no row matched.
	Decrement(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int, at time.Time) (after int, ok bool, err error)
	// Increment adds qty, creating the row when the product has none.
	Increment(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int, at time.Time) (after int, err error)
	SetMinimum(ctx context.Context, q sqlx.ExtContext, productID int64, value int, at time.Time) (bool, error)

	LogMovement(ctx context.Context, tx sqlx.ExtContext, movement *model.InventoryMovement) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error)
}
