package dto

type InventoryFilters struct {
	ProductID int64
	LowStock  bool // available_qty <= minimum_qty
	Page      int
	PageSize  int
}

type MovementFilters struct {
	ProductID     int64
	MovementType  string
	ReferenceType string
	ReferenceID   string
	Page          int
	PageSize      int
}
