package saga

import (
	"context"
	"fmt"

	"github.com/commercekit/orderflow/internal/orders"
)

// stepHandler is a single unit of work in the saga. Each handler must
// have a compensating action that undoes its effect; handlers with no
// side effects compensate with a no-op.
type stepHandler interface {
	Name() StepName
	Execute(ctx context.Context, ex *execution) error
	Compensate(ctx context.Context, ex *execution) error
}

// execution carries the order and the persisted state through one run.
// Step results land in state.Data so compensations can find them after
// a crash.
type execution struct {
	order *orders.Order
	state *State
}

// --- validateCartStep ---

type validateCartStep struct {
	cart CartClient
}

func (s *validateCartStep) Name() StepName { return StepValidateCart }

func (s *validateCartStep) Execute(ctx context.Context, ex *execution) error {
	err := s.cart.Validate(ctx, ValidateCartRequest{
		IdempotencyKey: ex.state.StepKey(StepValidateCart),
		TenantID:       ex.order.TenantID,
		UserID:         ex.order.UserID,
		Items:          ex.order.Items,
	})
	if err != nil {
		return fmt.Errorf("validate cart for order %s: %w", ex.order.OrderID, err)
	}
	return nil
}

// Compensate is a no-op: validation has no side effects.
func (s *validateCartStep) Compensate(ctx context.Context, ex *execution) error {
	return nil
}

// --- reserveInventoryStep ---

type reserveInventoryStep struct {
	inventory InventoryClient
}

func (s *reserveInventoryStep) Name() StepName { return StepReserveInventory }

func (s *reserveInventoryStep) Execute(ctx context.Context, ex *execution) error {
	res, err := s.inventory.Reserve(ctx, ReserveRequest{
		IdempotencyKey: ex.state.StepKey(StepReserveInventory),
		TenantID:       ex.order.TenantID,
		OrderID:        ex.order.OrderID,
		Items:          ex.order.Items,
	})
	if err != nil {
		return fmt.Errorf("reserve inventory for order %s: %w", ex.order.OrderID, err)
	}
	ex.state.Data[dataReservationID] = res.ReservationID
	return nil
}

func (s *reserveInventoryStep) Compensate(ctx context.Context, ex *execution) error {
	reservationID, ok := ex.state.Data[dataReservationID]
	if !ok {
		return nil // never reserved, nothing to release
	}
	err := s.inventory.Release(ctx, ReleaseRequest{
		IdempotencyKey: ex.state.StepKey(StepReserveInventory) + "#release",
		TenantID:       ex.order.TenantID,
		ReservationID:  reservationID,
	})
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", reservationID, err)
	}
	return nil
}

// --- chargePaymentStep ---

type chargePaymentStep struct {
	payment PaymentClient
}

func (s *chargePaymentStep) Name() StepName { return StepChargePayment }

func (s *chargePaymentStep) Execute(ctx context.Context, ex *execution) error {
	res, err := s.payment.Charge(ctx, ChargeRequest{
		IdempotencyKey: ex.state.StepKey(StepChargePayment),
		TenantID:       ex.order.TenantID,
		OrderID:        ex.order.OrderID,
		UserID:         ex.order.UserID,
		Amount:         ex.order.Total,
	})
	if err != nil {
		return fmt.Errorf("charge payment for order %s: %w", ex.order.OrderID, err)
	}
	ex.state.Data[dataPaymentID] = res.PaymentID
	return nil
}

func (s *chargePaymentStep) Compensate(ctx context.Context, ex *execution) error {
	paymentID, ok := ex.state.Data[dataPaymentID]
	if !ok {
		return nil // never charged, nothing to refund
	}
	err := s.payment.Refund(ctx, RefundRequest{
		IdempotencyKey: ex.state.StepKey(StepChargePayment) + "#refund",
		TenantID:       ex.order.TenantID,
		PaymentID:      paymentID,
		Amount:         ex.order.Total,
	})
	if err != nil {
		return fmt.Errorf("refund payment %s: %w", paymentID, err)
	}
	return nil
}

// --- createShipmentStep ---

type createShipmentStep struct {
	shipping ShippingClient
}

func (s *createShipmentStep) Name() StepName { return StepCreateShipment }

func (s *createShipmentStep) Execute(ctx context.Context, ex *execution) error {
	res, err := s.shipping.CreateShipment(ctx, ShipmentRequest{
		IdempotencyKey: ex.state.StepKey(StepCreateShipment),
		TenantID:       ex.order.TenantID,
		OrderID:        ex.order.OrderID,
		Items:          ex.order.Items,
		Address:        ex.order.ShippingAddr,
	})
	if err != nil {
		return fmt.Errorf("create shipment for order %s: %w", ex.order.OrderID, err)
	}
	ex.state.Data[dataShipmentID] = res.ShipmentID
	return nil
}

// Compensate is a no-op: the shipment is the last forward step, so a
// failure before COMPLETE never leaves one behind; a created shipment is
// cancelled by carrier-side tooling during reconciliation.
func (s *createShipmentStep) Compensate(ctx context.Context, ex *execution) error {
	return nil
}
