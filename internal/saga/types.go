// Package saga drives order materialization across collaborators that
// cannot commit atomically. Saga state is persisted write-ahead so a
// crash mid-step is observable and resumable, and every collaborator
// call carries a step-scoped idempotency key so a retried step never
// double-reserves or double-charges.
package saga

import (
	"fmt"
	"time"
)

// StepName identifies a position in the fixed step sequence.
type StepName string

const (
	StepValidateCart     StepName = "VALIDATE_CART"
	StepReserveInventory StepName = "RESERVE_INVENTORY"
	StepChargePayment    StepName = "CHARGE_PAYMENT"
	StepCreateShipment   StepName = "CREATE_SHIPMENT"
	StepComplete         StepName = "COMPLETE"
)

// Status is the saga lifecycle state. COMPENSATING is reachable only
// from STARTED after a step failure; COMPLETED and FAILED are terminal.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// State is the persisted saga record. Keyed by order id: one active saga
// per order is enforced by the conditional create in the store.
type State struct {
	OrderID     string            `dynamodbav:"order_id"` // PK
	SagaID      string            `dynamodbav:"saga_id"`
	CurrentStep StepName          `dynamodbav:"current_step"`
	Status      Status            `dynamodbav:"status"`
	Data        map[string]string `dynamodbav:"data,omitempty"` // opaque step-to-step context
	Errors      []string          `dynamodbav:"errors,omitempty"`
	CreatedAt   time.Time         `dynamodbav:"created_at"`
	UpdatedAt   time.Time         `dynamodbav:"updated_at"`
}

// Data keys written by steps and read by their compensations.
const (
	dataReservationID = "reservation_id"
	dataPaymentID     = "payment_id"
	dataShipmentID    = "shipment_id"
)

// StepKey returns the idempotency key a collaborator receives for a step.
// Stable across coordinator retries and crash recovery.
func (s *State) StepKey(step StepName) string {
	return s.SagaID + "#" + string(step)
}

// CollaboratorError marks a step failure caused by a collaborator being
// unreachable or timing out. These are retried with bounded backoff
// before compensation begins; business rejections are not.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// CompensationFailedError records a compensation that itself failed.
// It is never auto-retried; the saga is parked for external
// reconciliation via the alert queue.
type CompensationFailedError struct {
	SagaID string
	Step   StepName
	Err    error
}

func (e *CompensationFailedError) Error() string {
	return fmt.Sprintf("saga %s: compensation of %s failed: %v", e.SagaID, e.Step, e.Err)
}

func (e *CompensationFailedError) Unwrap() error { return e.Err }
