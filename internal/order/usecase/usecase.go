package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/config"
	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/batch"
	"github.com/fekuna/merkado-order-service/internal/inventory"
	invdto "github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order"
	"github.com/fekuna/merkado-order-service/internal/order/dto"
	"github.com/fekuna/merkado-order-service/internal/storage"
	"github.com/fekuna/merkado-order-service/pkg/cache"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

var tracer = otel.Tracer("github.com/fekuna/merkado-order-service/internal/order")

type orderUseCase struct {
	repo      order.Repository
	allocator batch.Allocator
	batches   batch.UseCase
	ledger    inventory.UseCase
	txm       *storage.TxManager
	publisher order.EventPublisher
	cache     order.Cache
	metrics   order.Metrics
	policy    config.OrderConfig
	logger    logger.ZapLogger
	now       func() time.Time
}

// NewOrderUseCase wires the order workflow. publisher and cache may be nil.
func NewOrderUseCase(
	repo order.Repository,
	allocator batch.Allocator,
	batches batch.UseCase,
	ledger inventory.UseCase,
	txm *storage.TxManager,
	publisher order.EventPublisher,
	cache order.Cache,
	metrics order.Metrics,
	policy config.OrderConfig,
	log logger.ZapLogger,
) order.UseCase {
	return &orderUseCase{
		repo:      repo,
		allocator: allocator,
		batches:   batches,
		ledger:    ledger,
		txm:       txm,
		publisher: publisher,
		cache:     cache,
		metrics:   metrics,
		policy:    policy,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder allocates every line, persists the order with one item row per
// batch slice and applies the stock decrements, all in one transaction.
func (uc *orderUseCase) CreateOrder(ctx context.Context, input *dto.CreateOrderInput) (*model.Order, error) {
	ctx, span := tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.Int64("customer_id", input.CustomerID)))
	defer span.End()

	log := logger.FromContext(ctx, uc.logger)

	o, err := uc.createOrder(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.metrics.OrderFailed(failureReason(err))
		log.Warn("order creation rolled back",
			zap.Int64("customer_id", input.CustomerID),
			zap.Error(err),
		)
		return nil, &apperror.OrderCreationError{Cause: err}
	}

	span.SetAttributes(attribute.Int64("order_id", o.ID), attribute.Int("items", len(o.Items)))
	uc.metrics.OrderCreated(len(o.Items))
	log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("customer_id", o.CustomerID),
		zap.String("total", o.Total.StringFixed(2)),
	)

	uc.publishCreated(ctx, o)
	return o, nil
}

func (uc *orderUseCase) createOrder(ctx context.Context, input *dto.CreateOrderInput) (*model.Order, error) {
	lines, err := validateOrder(input)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	o := &model.Order{
		CustomerID:        input.CustomerID,
		Type:              input.Type,
		PaymentMethod:     input.PaymentMethod,
		Status:            model.OrderProcessing,
		CreatedAt:         now,
		UpdatedAt:         now,
		DeliveryAddress:   input.DeliveryAddress,
		DeliveryType:      input.DeliveryType,
		ScheduledAt:       input.ScheduledAt,
		AppliedDiscountID: input.AppliedDiscountID,
	}

	err = uc.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var allocations []model.Allocation
		for _, line := range lines {
			a, err := uc.allocator.AllocateForSale(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			allocations = append(allocations, a...)
		}

		subtotal := decimal.Zero
		for _, a := range allocations {
			subtotal = subtotal.Add(a.LineTotal())
		}
		o.Subtotal = subtotal
		o.ShippingCost = uc.shippingCost(o.DeliveryType)
		o.Total = subtotal.Add(o.ShippingCost)

		if err := uc.repo.Create(ctx, tx, o); err != nil {
			return err
		}

		items := make([]model.OrderItem, 0, len(allocations))
		for _, a := range allocations {
			items = append(items, model.OrderItem{
				OrderID:   o.ID,
				ProductID: a.ProductID,
				BatchID:   a.BatchID,
				Quantity:  a.QtyUsed,
				UnitPrice: a.UnitPrice,
			})
		}
		if err := uc.repo.CreateItems(ctx, tx, items); err != nil {
			return err
		}

		ref := strconv.FormatInt(o.ID, 10)
		for _, a := range allocations {
			err := uc.ledger.Decrement(ctx, tx, invdto.StockChange{
				ProductID:     a.ProductID,
				BatchID:       &a.BatchID,
				Qty:           a.QtyUsed,
				MovementType:  model.MovementSale,
				ReferenceType: model.ReferenceOrder,
				ReferenceID:   ref,
			})
			if err != nil {
				return err
			}
			if err := uc.batches.ReduceRemaining(ctx, tx, a.BatchID, a.QtyUsed); err != nil {
				return err
			}
		}

		o.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// validateOrder checks the request and folds repeated products into one line.
// Lines come back sorted by product id so concurrent orders lock rows in the same order.
func validateOrder(input *dto.CreateOrderInput) ([]dto.LineItem, error) {
	if input.CustomerID <= 0 {
		return nil, apperror.Validation("customer_id", "is required")
	}
	if strings.TrimSpace(input.Type) == "" {
		return nil, apperror.Validation("type", "is required")
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return nil, apperror.Validation("payment_method", "is required")
	}
	if strings.TrimSpace(input.DeliveryType) == "" {
		return nil, apperror.Validation("delivery_type", "is required")
	}
	if input.DeliveryType == model.DeliveryHome && strings.TrimSpace(input.DeliveryAddress) == "" {
		return nil, apperror.Validation("delivery_address", "is required for home delivery")
	}
	if len(input.Items) == 0 {
		return nil, apperror.Validation("items", "must contain at least one line")
	}

	merged := make(map[int64]int, len(input.Items))
	for i, item := range input.Items {
		if item.ProductID <= 0 {
			return nil, apperror.Validation(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity <= 0 {
			return nil, apperror.Validation(fmt.Sprintf("items[%d].quantity", i), "must be positive, got %d", item.Quantity)
		}
		merged[item.ProductID] += item.Quantity
	}

	lines := make([]dto.LineItem, 0, len(merged))
	for productID, qty := range merged {
		lines = append(lines, dto.LineItem{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (uc *orderUseCase) shippingCost(deliveryType string) decimal.Decimal {
	if deliveryType == model.DeliveryHome {
		return uc.policy.HomeDeliveryFee
	}
	return decimal.Zero
}

func failureReason(err error) string {
	var (
		validation    *apperror.ValidationError
		notFound      *apperror.NotFoundError
		stock         *apperror.InsufficientStockError
		inconsistency *apperror.DataInconsistencyError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &inconsistency):
		return "inconsistency"
	default:
		return "internal"
	}
}

// GetOrder reads through the cache. A reader only fills an empty key, so a
// row it loaded before a concurrent status change cannot replace the entry
// the writer stored after its commit.
func (uc *orderUseCase) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	log := logger.FromContext(ctx, uc.logger)
	key := cacheKey(id)

	if uc.cache != nil {
		raw, err := uc.cache.Get(ctx, key)
		switch {
		case err == nil:
			var o model.Order
			if err := json.Unmarshal(raw, &o); err == nil {
				return &o, nil
			}
			log.Warn("discarding unreadable cached order", zap.Int64("order_id", id))
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("order cache read failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}

	o, err := uc.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	uc.storeCached(ctx, o, false)
	return o, nil
}

func (uc *orderUseCase) loadOrder(ctx context.Context, id int64) (*model.Order, error) {
	db := uc.txm.DB()
	o, err := uc.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperror.NotFound("order", id)
	}
	if o.Items, err = uc.repo.FindItems(ctx, db, id); err != nil {
		return nil, err
	}
	return o, nil
}

// storeCached writes o under its key. overwrite is used by status changes;
// plain reads only fill a missing key.
func (uc *orderUseCase) storeCached(ctx context.Context, o *model.Order, overwrite bool) {
	if uc.cache == nil {
		return
	}
	raw, err := json.Marshal(o)
	if err == nil {
		if overwrite {
			err = uc.cache.Set(ctx, cacheKey(o.ID), raw, uc.policy.CacheTTL)
		} else {
			err = uc.cache.SetNX(ctx, cacheKey(o.ID), raw, uc.policy.CacheTTL)
		}
	}
	if err != nil {
		logger.FromContext(ctx, uc.logger).Warn("order cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
		if overwrite {
			uc.invalidate(ctx, o.ID)
		}
	}
}

// ListOrders returns order headers without their items.
func (uc *orderUseCase) ListOrders(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error) {
	if filters.Status != "" && !model.OrderStatus(filters.Status).IsValid() {
		return nil, 0, apperror.Validation("status", "unknown order status %q", filters.Status)
	}
	return uc.repo.FindAll(ctx, filters)
}

// UpdateOrderState moves the order to status. With strict transitions on,
// only moves listed in the order state machine are accepted.
func (uc *orderUseCase) UpdateOrderState(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	ctx, span := tracer.Start(ctx, "order.UpdateOrderState",
		trace.WithAttributes(attribute.Int64("order_id", id), attribute.String("to", string(status))))
	defer span.End()

	if !status.IsValid() {
		return nil, apperror.Validation("estado", "unknown order status %q", status)
	}

	var from model.OrderStatus
	restocked := false
	err := uc.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		o, err := uc.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return apperror.NotFound("order", id)
		}
		from = o.Status

		if uc.policy.StrictTransitions && !from.CanTransitionTo(status) {
			return &apperror.IllegalTransitionError{From: string(from), To: string(status)}
		}

		if status == model.OrderCancelled && from == model.OrderProcessing && uc.policy.RestockOnCancel {
			if err := uc.restock(ctx, tx, id); err != nil {
				return err
			}
			restocked = true
		}

		ok, err := uc.repo.UpdateStatus(ctx, tx, id, status, uc.now())
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("order", id)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uc.metrics.StatusChanged(string(status))
	logger.FromContext(ctx, uc.logger).Info("order status changed",
		zap.Int64("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.Bool("restocked", restocked),
	)
	uc.publishStatusChanged(ctx, id, from, status)

	o, err := uc.loadOrder(ctx, id)
	if err != nil {
		// The change is committed; drop the entry so the next read reloads it.
		uc.invalidate(ctx, id)
		return nil, err
	}
	uc.storeCached(ctx, o, true)
	return o, nil
}

func (uc *orderUseCase) CancelOrder(ctx context.Context, id int64) (*model.Order, error) {
	return uc.UpdateOrderState(ctx, id, model.OrderCancelled)
}

// restock hands every item of the order back to its batch and to the ledger.
// Items whose batch is no longer ACTIVE are skipped.
func (uc *orderUseCase) restock(ctx context.Context, tx sqlx.ExtContext, orderID int64) error {
	items, err := uc.repo.FindItems(ctx, tx, orderID)
	if err != nil {
		return err
	}

	// Inventory rows first, in product order, then batches: the allocator's lock order.
	locked := make(map[int64]bool, len(items))
	for _, item := range items {
		if locked[item.ProductID] {
			continue
		}
		if _, err := uc.ledger.LockRecord(ctx, tx, item.ProductID); err != nil {
			return err
		}
		locked[item.ProductID] = true
	}

	ref := strconv.FormatInt(orderID, 10)
	for _, item := range items {
		restored, err := uc.batches.RestoreRemaining(ctx, tx, item.BatchID, item.Quantity)
		if err != nil {
			return err
		}
		// Units of a batch that left ACTIVE since the sale cannot be sold
		// again, so the ledger does not get them back either.
		if !restored {
			logger.FromContext(ctx, uc.logger).Warn("cancelled units not restocked, batch is no longer active",
				zap.Int64("order_id", orderID),
				zap.Int64("batch_id", item.BatchID),
				zap.Int("qty", item.Quantity),
			)
			continue
		}
		err = uc.ledger.Increment(ctx, tx, invdto.StockChange{
			ProductID:     item.ProductID,
			BatchID:       &item.BatchID,
			Qty:           item.Quantity,
			MovementType:  model.MovementRestock,
			ReferenceType: model.ReferenceOrder,
			ReferenceID:   ref,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func cacheKey(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}

func (uc *orderUseCase) invalidate(ctx context.Context, id int64) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Del(ctx, cacheKey(id)); err != nil {
		logger.FromContext(ctx, uc.logger).Warn("order cache invalidation failed",
			zap.Int64("order_id", id), zap.Error(err))
	}
}

func (uc *orderUseCase) publishCreated(ctx context.Context, o *model.Order) {
	items := make([]OrderItemPayload, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemPayload{ProductID: item.ProductID, BatchID: item.BatchID, Quantity: item.Quantity}
	}
	uc.publish(ctx, o.ID, OrderCreatedEvent{
		EventID:   uuid.New().String(),
		EventType: EventOrderCreated,
		Payload: OrderCreatedPayload{
			ID:           o.ID,
			CustomerID:   o.CustomerID,
			DeliveryType: o.DeliveryType,
			Total:        o.Total,
			Items:        items,
		},
		Timestamp: uc.now(),
	})
}

func (uc *orderUseCase) publishStatusChanged(ctx context.Context, id int64, from, to model.OrderStatus) {
	uc.publish(ctx, id, StatusChangedEvent{
		EventID:   uuid.New().String(),
		EventType: EventOrderStatusChanged,
		Payload:   StatusChangedPayload{ID: id, From: string(from), To: string(to)},
		Timestamp: uc.now(),
	})
}

// publish runs after commit. A failed publish is logged and the order stands.
func (uc *orderUseCase) publish(ctx context.Context, orderID int64, event any) {
	if uc.publisher == nil {
		return
	}
	log := logger.FromContext(ctx, uc.logger)

	value, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to marshal order event", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	if err := uc.publisher.Publish(ctx, strconv.FormatInt(orderID, 10), value); err != nil {
		log.Error("failed to publish order event", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
