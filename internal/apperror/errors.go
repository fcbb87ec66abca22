// Package apperror holds the typed errors shared by the inventory, batch and
// order packages. Handlers map them to HTTP status codes with errors.As.
package apperror

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// DataInconsistencyError means the inventory ledger and the batch store disagree.
type DataInconsistencyError struct {
	ProductID int64
	Message   string
}

func (e *DataInconsistencyError) Error() string {
	return fmt.Sprintf("data inconsistency for product %d: %s", e.ProductID, e.Message)
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NegativeStockError is an assertion failure: a decrement would take
// available_qty below zero after the allocator already validated it.
type NegativeStockError struct {
	ProductID int64
	Qty       int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("decrement of %d would make stock of product %d negative", e.Qty, e.ProductID)
}

// OverdraftError is an assertion failure: qty exceeds a batch's remaining quantity.
type OverdraftError struct {
	BatchID int64
	Qty     int
}

func (e *OverdraftError) Error() string {
	return fmt.Sprintf("reducing batch %d by %d exceeds its remaining quantity", e.BatchID, e.Qty)
}

type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order status transition %s -> %s", e.From, e.To)
}

// OrderCreationError wraps whatever made an order creation roll back.
type OrderCreationError struct {
	Cause error
}

func (e *OrderCreationError) Error() string {
	return "order creation failed: " + e.Cause.Error()
}

func (e *OrderCreationError) Unwrap() error { return e.Cause }
