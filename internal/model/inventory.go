package model

import "time"

// InventoryRecord is the per-product stock ledger row.
type InventoryRecord struct {
	ProductID    int64     `db:"product_id" json:"product_id"`
	AvailableQty int       `db:"available_qty" json:"available_qty"`
	ReservedQty  int       `db:"reserved_qty" json:"reserved_qty"` // not used by allocation yet
	MinimumQty   int       `db:"minimum_qty" json:"minimum_qty"`
	LastUpdated  time.Time `db:"last_updated" json:"last_updated"`
}

func (r *InventoryRecord) IsLowStock() bool {
	return r.AvailableQty <= r.MinimumQty
}

const (
	MovementSale      = "sale"
	MovementReceipt   = "receipt"
	MovementRestock   = "restock"
	MovementDefective = "defective"
	ReferenceOrder    = "order"
	ReferenceBatch    = "batch"
)

type InventoryMovement struct {
	ID             string    `db:"id" json:"id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	BatchID        *int64    `db:"batch_id" json:"batch_id,omitempty"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	ReferenceType  *string   `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID    *string   `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
