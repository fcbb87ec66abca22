package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/inventory"
	"github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

type inventoryUseCase struct {
	repo   inventory.Repository
	db     *sqlx.DB
	logger logger.ZapLogger
	now    func() time.Time
}

func NewInventoryUseCase(repo inventory.Repository, db *sqlx.DB, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		db:     db,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (uc *inventoryUseCase) Decrement(ctx context.Context, tx sqlx.ExtContext, change dto.StockChange) error {
	if change.Qty <= 0 {
		return apperror.Validation("quantity", "must be positive, got %d", change.Qty)
	}

	now := uc.now()
	after, ok, err := uc.repo.Decrement(ctx, tx, change.ProductID, change.Qty, now)
	if err != nil {
		return err
	}
	if !ok {
		rec, err := uc.repo.GetByProduct(ctx, tx, change.ProductID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperror.NotFound("inventory for product", change.ProductID)
		}
		return &apperror.NegativeStockError{ProductID: change.ProductID, Qty: change.Qty}
	}

	return uc.logMovement(ctx, tx, change, -change.Qty, after+change.Qty, after, now)
}

func (uc *inventoryUseCase) Increment(ctx context.Context, tx sqlx.ExtContext, change dto.StockChange) error {
	if change.Qty <= 0 {
		return apperror.Validation("quantity", "must be positive, got %d", change.Qty)
	}

	now := uc.now()
	after, err := uc.repo.Increment(ctx, tx, change.ProductID, change.Qty, now)
	if err != nil {
		return err
	}

	return uc.logMovement(ctx, tx, change, change.Qty, after-change.Qty, after, now)
}

func (uc *inventoryUseCase) logMovement(ctx context.Context, tx sqlx.ExtContext, change dto.StockChange, delta, before, after int, at time.Time) error {
	movement := &model.InventoryMovement{
		ID:             uuid.New().String(),
		ProductID:      change.ProductID,
		BatchID:        change.BatchID,
		MovementType:   change.MovementType,
		QuantityChange: delta,
		QuantityBefore: before,
		QuantityAfter:  after,
		CreatedAt:      at,
	}
	if change.ReferenceType != "" {
		movement.ReferenceType = &change.ReferenceType
	}
	if change.ReferenceID != "" {
		movement.ReferenceID = &change.ReferenceID
	}

	if err := uc.repo.LogMovement(ctx, tx, movement); err != nil {
		return err
	}

	logger.FromContext(ctx, uc.logger).Debug("inventory movement",
		zap.Int64("product_id", change.ProductID),
		zap.String("type", change.MovementType),
		zap.Int("change", delta),
		zap.Int("after", after),
	)
	return nil
}

func (uc *inventoryUseCase) LockRecord(ctx context.Context, tx sqlx.ExtContext, productID int64) (*model.InventoryRecord, error) {
	rec, err := uc.repo.LockByProduct(ctx, tx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory for product %d: %w", productID, err)
	}
	return rec, nil
}

func (uc *inventoryUseCase) SetMinimum(ctx context.Context, input *dto.SetMinimumInput) (*model.InventoryRecord, error) {
	if input.MinimumQty < 0 {
		return nil, apperror.Validation("minimum_qty", "must not be negative, got %d", input.MinimumQty)
	}

	ok, err := uc.repo.SetMinimum(ctx, uc.db, input.ProductID, input.MinimumQty, uc.now())
	if err != nil {
		return nil, fmt.Errorf("failed to set minimum: %w", err)
	}
	if !ok {
		return nil, apperror.NotFound("inventory for product", input.ProductID)
	}

	return uc.GetProductInventory(ctx, input.ProductID)
}

func (uc *inventoryUseCase) GetProductInventory(ctx context.Context, productID int64) (*model.InventoryRecord, error) {
	rec, err := uc.repo.GetByProduct(ctx, uc.db, productID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperror.NotFound("inventory for product", productID)
	}
	return rec, nil
}

func (uc *inventoryUseCase) ListLowStock(ctx context.Context, page, pageSize int) ([]model.InventoryRecord, int, error) {
	return uc.repo.FindAll(ctx, &dto.InventoryFilters{
		LowStock: true,
		Page:     page,
		PageSize: pageSize,
	})
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}
