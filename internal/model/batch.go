package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchActive    BatchStatus = "ACTIVE"
	BatchExpired   BatchStatus = "EXPIRED"
	BatchDefective BatchStatus = "DEFECTIVE"
)

// Batch is one supplier delivery lot. Depletion does not change Status;
// only date-based expiry and defect marking do.
type Batch struct {
	ID           int64           `db:"id" json:"id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	SupplierID   int64           `db:"supplier_id" json:"supplier_id"`
	ReceivedDate time.Time       `db:"received_date" json:"received_date"`
	ExpiryDate   time.Time       `db:"expiry_date" json:"expiry_date"`
	UnitCost     decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	InitialQty   int             `db:"initial_qty" json:"initial_qty"`
	RemainingQty int             `db:"remaining_qty" json:"remaining_qty"`
	Status       BatchStatus     `db:"status" json:"status"`
}

// Allocation is the slice of one batch used to satisfy a line item.
type Allocation struct {
	ProductID int64           `json:"product_id"`
	BatchID   int64           `json:"batch_id"`
	QtyUsed   int             `json:"qty_used"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (a Allocation) LineTotal() decimal.Decimal {
	return a.UnitPrice.Mul(decimal.NewFromInt(int64(a.QtyUsed)))
}
