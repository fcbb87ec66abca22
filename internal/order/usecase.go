package order

import (
	"context"
	"time"

	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order/dto"
)

type UseCase interface {
	CreateOrder(ctx context.Context, input *dto.CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error)
	UpdateOrderState(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error)
	CancelOrder(ctx context.Context, id int64) (*model.Order, error)
}

// EventPublisher is satisfied by broker.KafkaProducer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Cache is satisfied by cache.RedisClient. Get returns cache.ErrMiss on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Metrics is satisfied by metrics.Metrics.
type Metrics interface {
	OrderCreated(slices int)
	OrderFailed(reason string)
	StatusChanged(to string)
}
