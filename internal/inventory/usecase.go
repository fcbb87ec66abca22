package inventory

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
)

// UseCase is the inventory ledger. Mutators take the caller's transaction so
// they commit or roll back together with the rest of the unit of work.
type UseCase interface {
	Decrement(ctx context.Context, tx sqlx.ExtContext, change dto.StockChange) error
	Increment(ctx context.Context, tx sqlx.ExtContext, change dto.StockChange) error
	// LockRecord takes the row lock on a product's inventory record for the
	// rest of tx. Callers that also touch batches lock here first. It returns
	// nil when the product has no record.
	LockRecord(ctx context.Context, tx sqlx.ExtContext, productID int64) (*model.InventoryRecord, error)
	SetMinimum(ctx context.Context, input *dto.SetMinimumInput) (*model.InventoryRecord, error)

	GetProductInventory(ctx context.Context, productID int64) (*model.InventoryRecord, error)
	ListLowStock(ctx context.Context, page, pageSize int) ([]model.InventoryRecord, int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error)
}
