package saga

import (
	"context"

	"github.com/commercekit/orderflow/internal/orders"
)

// Collaborator contracts. Each call is keyed by IDs and amounts plus an
// idempotency key scoped to the saga step, which the collaborator is
// assumed to honor. Transport (REST, gRPC, queue) is an adapter concern.

// CartClient validates that the submitted items and prices match the
// user's current cart.
type CartClient interface {
	Validate(ctx context.Context, req ValidateCartRequest) error
}

// InventoryClient reserves and releases stock per product.
type InventoryClient interface {
	Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error)
	Release(ctx context.Context, req ReleaseRequest) error
}

// PaymentClient charges and refunds by amount and method.
type PaymentClient interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) error
}

// ShippingClient creates a shipment from items and a delivery address.
type ShippingClient interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResult, error)
}

type ValidateCartRequest struct {
	IdempotencyKey string
	TenantID       string
	UserID         string
	Items          []orders.OrderItem
}

type ReserveRequest struct {
	IdempotencyKey string
	TenantID       string
	OrderID        string
	Items          []orders.OrderItem
}

type ReserveResult struct {
	ReservationID string
}

type ReleaseRequest struct {
	IdempotencyKey string
	TenantID       string
	ReservationID  string
}

type ChargeRequest struct {
	IdempotencyKey string
	TenantID       string
	OrderID        string
	UserID         string
	Amount         orders.Money
}

type ChargeResult struct {
	PaymentID string
}

type RefundRequest struct {
	IdempotencyKey string
	TenantID       string
	PaymentID      string
	Amount         orders.Money
}

type ShipmentRequest struct {
	IdempotencyKey string
	TenantID       string
	OrderID        string
	Items          []orders.OrderItem
	Address        orders.Address
}

type ShipmentResult struct {
	ShipmentID string
}
