package dto

import "time"

type LineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderInput struct {
	CustomerID        int64      `json:"customer_id"`
	Type              string     `json:"type"`
	PaymentMethod     string     `json:"payment_method"`
	DeliveryAddress   string     `json:"delivery_address"`
	DeliveryType      string     `json:"delivery_type"`
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty"`
	AppliedDiscountID *int64     `json:"applied_discount_id,omitempty"`
	Items             []LineItem `json:"items"`
}

type UpdateStatusInput struct {
	Estado string `json:"estado"`
}
