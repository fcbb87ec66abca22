package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReceiveBatchInput struct {
	ProductID    int64           `json:"product_id"`
	SupplierID   int64           `json:"supplier_id"`
	ReceivedDate time.Time       `json:"received_date"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Quantity     int             `json:"quantity"`
}
