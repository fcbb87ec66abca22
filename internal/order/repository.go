package order

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order/dto"
)

type Repository interface {
	Create(ctx context.Context, tx sqlx.ExtContext, o *model.Order) error
	CreateItems(ctx context.Context, tx sqlx.ExtContext, items []model.OrderItem) error

	FindByID(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Order, error)
	// LockByID reads the header and holds a row lock until the tx ends.
	LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*model.Order, error)
	FindItems(ctx context.Context, q sqlx.ExtContext, orderID int64) ([]model.OrderItem, error)
	FindAll(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error)

	UpdateStatus(ctx context.Context, tx sqlx.ExtContext, id int64, status model.OrderStatus, at time.Time) (bool, error)
}
