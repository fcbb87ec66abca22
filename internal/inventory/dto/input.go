package dto

// StockChange describes one ledger mutation and the audit reference it leaves.
type StockChange struct {
	ProductID     int64
	BatchID       *int64
	Qty           int
	MovementType  string // sale, receipt, restock, defective
	ReferenceType string
	ReferenceID   string
}

type SetMinimumInput struct {
	ProductID  int64
	MinimumQty int
}
