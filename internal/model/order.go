package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "procesando"
	OrderInTransit  OrderStatus = "en_camino"
	OrderDelivered  OrderStatus = "entregado"
	OrderCancelled  OrderStatus = "cancelado"
)

// DeliveryHome is the delivery type that carries a shipping fee.
const DeliveryHome = "domicilio"

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderProcessing: {OrderInTransit, OrderCancelled},
	OrderInTransit:  {OrderDelivered},
	OrderDelivered:  {},
	OrderCancelled:  {},
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(orderTransitions[s]) == 0
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID                int64           `db:"id" json:"id"`
	CustomerID        int64           `db:"customer_id" json:"customer_id"`
	Type              string          `db:"type" json:"type"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	Status            OrderStatus     `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost      decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	Total             decimal.Decimal `db:"total" json:"total"`
	DeliveryAddress   string          `db:"delivery_address" json:"delivery_address"`
	DeliveryType      string          `db:"delivery_type" json:"delivery_type"`
	ScheduledAt       *time.Time      `db:"scheduled_at" json:"scheduled_at,omitempty"`
	AppliedDiscountID *int64          `db:"applied_discount_id" json:"applied_discount_id,omitempty"`
	Items             []OrderItem     `db:"-" json:"items"`
}

// OrderItem is one (product, batch) slice of an order line.
type OrderItem struct {
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	BatchID   int64           `db:"batch_id" json:"batch_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}
