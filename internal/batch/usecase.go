package batch

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/batch/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
)

// Allocator computes which batches satisfy a sale. It never writes.
type Allocator interface {
	AllocateForSale(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int) ([]model.Allocation, error)
}

type UseCase interface {
	ReduceRemaining(ctx context.Context, tx sqlx.ExtContext, batchID int64, qty int) error
	// RestoreRemaining reports false when the batch is no longer ACTIVE and
	// the units were not put back.
	RestoreRemaining(ctx context.Context, tx sqlx.ExtContext, batchID int64, qty int) (bool, error)

	ReceiveBatch(ctx context.Context, input *dto.ReceiveBatchInput) (*model.Batch, error)
	MarkDefective(ctx context.Context, batchID int64) (*model.Batch, error)
	ListBatches(ctx context.Context, productID int64) ([]model.Batch, error)
}
