package usecase

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderCreatedEvent struct {
	EventID   string              `json:"event_id"`
	EventType string              `json:"event_type"`
	Payload   OrderCreatedPayload `json:"payload"`
	Timestamp time.Time           `json:"timestamp"`
}

type OrderCreatedPayload struct {
	ID           int64              `json:"id"`
	CustomerID   int64              `json:"customer_id"`
	DeliveryType string             `json:"delivery_type"`
	Total        decimal.Decimal    `json:"total"`
	Items        []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID int64 `json:"product_id"`
	BatchID   int64 `json:"batch_id"`
	Quantity  int   `json:"quantity"`
}

type StatusChangedEvent struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	Payload   StatusChangedPayload `json:"payload"`
	Timestamp time.Time            `json:"timestamp"`
}

type StatusChangedPayload struct {
	ID   int64  `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}
