package batch

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/model"
)

type Repository interface {
	GetByID(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Batch, error)
	// ListAllocatable returns ACTIVE batches with stock left, earliest expiry
	// first and id as tiebreak, locking them for the rest of the tx.
	ListAllocatable(ctx context.Context, tx sqlx.ExtContext, productID int64) ([]model.Batch, error)
	ListByProduct(ctx context.Context, productID int64) ([]model.Batch, error)
	Create(ctx context.Context, tx sqlx.ExtContext, b *model.Batch) error

	// ReduceRemaining subtracts qty only if remaining_qty >= qty.
	ReduceRemaining(ctx context.Context, tx sqlx.ExtContext, id int64, qty int) (bool, error)
	// RestoreRemaining adds qty back to an ACTIVE batch only if the result
	// stays within initial_qty.
	RestoreRemaining(ctx context.Context, tx sqlx.ExtContext, id int64, qty int) (bool, error)
	// MarkDefective flips an ACTIVE batch to DEFECTIVE and returns the
	// remaining quantity the row held at the moment of the update.
	MarkDefective(ctx context.Context, tx sqlx.ExtContext, id int64) (remaining int, ok bool, err error)
}
