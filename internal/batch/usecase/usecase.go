package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/batch"
	"github.com/fekuna/merkado-order-service/internal/batch/dto"
	"github.com/fekuna/merkado-order-service/internal/inventory"
	invdto "github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/product"
	"github.com/fekuna/merkado-order-service/internal/storage"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

type batchUseCase struct {
	repo     batch.Repository
	products product.Repository
	ledger   inventory.UseCase
	txm      *storage.TxManager
	logger   logger.ZapLogger
}

func NewBatchUseCase(repo batch.Repository, products product.Repository, ledger inventory.UseCase, txm *storage.TxManager, log logger.ZapLogger) batch.UseCase {
	return &batchUseCase{
		repo:     repo,
		products: products,
		ledger:   ledger,
		txm:      txm,
		logger:   log,
	}
}

func (uc *batchUseCase) ReduceRemaining(ctx context.Context, tx sqlx.ExtContext, batchID int64, qty int) error {
	if qty <= 0 {
		return apperror.Validation("quantity", "must be positive, got %d", qty)
	}

	ok, err := uc.repo.ReduceRemaining(ctx, tx, batchID, qty)
	if err != nil {
		return fmt.Errorf("failed to reduce batch %d: %w", batchID, err)
	}
	if ok {
		return nil
	}

	b, err := uc.repo.GetByID(ctx, tx, batchID)
	if err != nil {
		return err
	}
	if b == nil {
		return apperror.NotFound("batch", batchID)
	}
	return &apperror.OverdraftError{BatchID: batchID, Qty: qty}
}

func (uc *batchUseCase) RestoreRemaining(ctx context.Context, tx sqlx.ExtContext, batchID int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, apperror.Validation("quantity", "must be positive, got %d", qty)
	}

	ok, err := uc.repo.RestoreRemaining(ctx, tx, batchID, qty)
	if err != nil {
		return false, fmt.Errorf("failed to restore batch %d: %w", batchID, err)
	}
	if ok {
		return true, nil
	}

	b, err := uc.repo.GetByID(ctx, tx, batchID)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, apperror.NotFound("batch", batchID)
	}
	if b.Status != model.BatchActive {
		return false, nil
	}
	return false, &apperror.ConflictError{
		Message: fmt.Sprintf("restoring %d units to batch %d exceeds its initial quantity %d", qty, batchID, b.InitialQty),
	}
}

func (uc *batchUseCase) ReceiveBatch(ctx context.Context, input *dto.ReceiveBatchInput) (*model.Batch, error) {
	if err := validateReceipt(input); err != nil {
		return nil, err
	}

	b := &model.Batch{
		ProductID:    input.ProductID,
		SupplierID:   input.SupplierID,
		ReceivedDate: input.ReceivedDate.UTC(),
		ExpiryDate:   input.ExpiryDate.UTC(),
		UnitCost:     input.UnitCost,
		InitialQty:   input.Quantity,
		RemainingQty: input.Quantity,
		Status:       model.BatchActive,
	}

	err := uc.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		p, err := uc.products.FindByID(ctx, tx, input.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NotFound("product", input.ProductID)
		}

		if err := uc.repo.Create(ctx, tx, b); err != nil {
			return err
		}

		return uc.ledger.Increment(ctx, tx, invdto.StockChange{
			ProductID:     b.ProductID,
			BatchID:       &b.ID,
			Qty:           b.InitialQty,
			MovementType:  model.MovementReceipt,
			ReferenceType: model.ReferenceBatch,
			ReferenceID:   strconv.FormatInt(b.ID, 10),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, uc.logger).Info("batch received",
		zap.Int64("batch_id", b.ID),
		zap.Int64("product_id", b.ProductID),
		zap.Int("qty", b.InitialQty),
	)
	return b, nil
}

func validateReceipt(input *dto.ReceiveBatchInput) error {
	if input.ProductID <= 0 {
		return apperror.Validation("product_id", "is required")
	}
	if input.SupplierID <= 0 {
		return apperror.Validation("supplier_id", "is required")
	}
	if input.Quantity <= 0 {
		return apperror.Validation("quantity", "must be positive, got %d", input.Quantity)
	}
	if input.UnitCost.IsNegative() {
		return apperror.Validation("unit_cost", "must not be negative")
	}
	if input.ReceivedDate.IsZero() || input.ExpiryDate.IsZero() {
		return apperror.Validation("expiry_date", "received_date and expiry_date are required")
	}
	if !input.ReceivedDate.Before(input.ExpiryDate) {
		return apperror.Validation("expiry_date", "must be after received_date")
	}
	return nil
}

// MarkDefective takes the batch out of allocation and writes its remaining
// units off the inventory record in the same tx. The inventory row is locked
// before the batch row, the same order the allocator uses.
func (uc *batchUseCase) MarkDefective(ctx context.Context, batchID int64) (*model.Batch, error) {
	var b *model.Batch
	err := uc.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		b, err = uc.repo.GetByID(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("batch", batchID)
		}

		if _, err := uc.ledger.LockRecord(ctx, tx, b.ProductID); err != nil {
			return err
		}

		remaining, ok, err := uc.repo.MarkDefective(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if !ok {
			current, err := uc.repo.GetByID(ctx, tx, batchID)
			if err != nil {
				return err
			}
			if current != nil {
				b = current
			}
			return &apperror.ConflictError{Message: fmt.Sprintf("batch %d is %s, only ACTIVE batches can be marked defective", batchID, b.Status)}
		}
		b.Status = model.BatchDefective
		b.RemainingQty = remaining

		if remaining == 0 {
			return nil
		}
		return uc.ledger.Decrement(ctx, tx, invdto.StockChange{
			ProductID:     b.ProductID,
			BatchID:       &b.ID,
			Qty:           remaining,
			MovementType:  model.MovementDefective,
			ReferenceType: model.ReferenceBatch,
			ReferenceID:   strconv.FormatInt(b.ID, 10),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, uc.logger).Warn("batch marked defective",
		zap.Int64("batch_id", b.ID),
		zap.Int64("product_id", b.ProductID),
		zap.Int("qty", b.RemainingQty),
	)
	return b, nil
}

func (uc *batchUseCase) ListBatches(ctx context.Context, productID int64) ([]model.Batch, error) {
	if productID <= 0 {
		return nil, apperror.Validation("product_id", "is required")
	}
	return uc.repo.ListByProduct(ctx, productID)
}
