package usecase

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/batch"
	"github.com/fekuna/merkado-order-service/internal/inventory"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/product"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

var tracer = otel.Tracer("github.com/fekuna/merkado-order-service/internal/batch")

type allocator struct {
	batches   batch.Repository
	inventory inventory.Repository
	products  product.Repository
	logger    logger.ZapLogger
}

func NewAllocator(batches batch.Repository, inv inventory.Repository, products product.Repository, log logger.ZapLogger) batch.Allocator {
	return &allocator{
		batches:   batches,
		inventory: inv,
		products:  products,
		logger:    log,
	}
}

// AllocateForSale splits qty over the product's batches, earliest expiry first.
// The inventory row and the chosen batches stay locked until tx ends, so the
// caller can apply the decrements without another reader slipping in.
func (a *allocator) AllocateForSale(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int) ([]model.Allocation, error) {
	ctx, span := tracer.Start(ctx, "batch.AllocateForSale")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", productID), attribute.Int("qty", qty))

	allocations, err := a.allocate(ctx, tx, productID, qty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("batches_used", len(allocations)))
	return allocations, nil
}

func (a *allocator) allocate(ctx context.Context, tx sqlx.ExtContext, productID int64, qty int) ([]model.Allocation, error) {
	if qty <= 0 {
		return nil, apperror.Validation("quantity", "must be positive, got %d", qty)
	}

	p, err := a.products.FindByID(ctx, tx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", productID, err)
	}
	if p == nil || !p.IsActive {
		return nil, apperror.NotFound("product", productID)
	}

	rec, err := a.inventory.LockByProduct(ctx, tx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory for product %d: %w", productID, err)
	}
	available := 0
	if rec != nil {
		available = rec.AvailableQty
	}
	if available < qty {
		return nil, &apperror.InsufficientStockError{ProductID: productID, Available: available, Requested: qty}
	}

	candidates, err := a.batches.ListAllocatable(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	var allocations []model.Allocation
	needed := qty
	for _, b := range candidates {
		if needed == 0 {
			break
		}
		take := min(b.RemainingQty, needed)
		allocations = append(allocations, model.Allocation{
			ProductID: productID,
			BatchID:   b.ID,
			QtyUsed:   take,
			UnitPrice: p.Price,
		})
		needed -= take
	}

	if needed > 0 {
		logger.FromContext(ctx, a.logger).Error("inventory and batches disagree",
			zap.Int64("product_id", productID),
			zap.Int("available", available),
			zap.Int("batch_total", qty-needed),
		)
		return nil, &apperror.DataInconsistencyError{
			ProductID: productID,
			Message:   fmt.Sprintf("inventory reports %d available but batches hold only %d", available, qty-needed),
		}
	}

	return allocations, nil
}
