package model

import "github.com/shopspring/decimal"

// Product is owned by the catalog; the order service only reads its sale price.
type Product struct {
	ID       int64           `db:"id" json:"id"`
	Name     string          `db:"name" json:"name"`
	Price    decimal.Decimal `db:"price" json:"price"`
	IsActive bool            `db:"is_active" json:"is_active"`
}
