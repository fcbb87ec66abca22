package product

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/merkado-order-service/internal/model"
)

// Repository reads the catalog owned by the product service. Nothing here writes.
type Repository interface {
	FindByID(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Product, error)
}
