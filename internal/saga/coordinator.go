package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercekit/orderflow/internal/orders"
	"github.com/google/uuid"
)

// OrderRepo is the slice of the orders store the coordinator needs to
// confirm or cancel an order when a saga settles.
type OrderRepo interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	SaveTransition(ctx context.Context, o *orders.Order, entry orders.HistoryEntry) error
}

// Metrics receives saga counters. Satisfied by *aws.MetricsEmitter.
type Metrics interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// AlertPublisher receives reconciliation messages for sagas that need
// manual intervention. Satisfied by *aws.Publisher.
type AlertPublisher interface {
	SendMessage(ctx context.Context, body string, attrs map[string]string) error
}

// Config wires a Coordinator.
type Config struct {
	Log       *slog.Logger
	States    StateStore
	Orders    OrderRepo
	Cart      CartClient
	Inventory InventoryClient
	Payment   PaymentClient
	Shipping  ShippingClient
	Metrics   Metrics        // optional
	Alerts    AlertPublisher // optional

	MaxAttempts int           // collaborator attempts per step, default 3
	Backoff     time.Duration // base backoff between attempts, default 200ms
	StepTimeout time.Duration // per-attempt timeout, default 10s
}

// Coordinator executes the fixed step sequence for one order at a time.
// Sagas for different orders run fully in parallel; the only shared
// state is the persisted saga record.
type Coordinator struct {
	log         *slog.Logger
	states      StateStore
	orders      OrderRepo
	steps       []stepHandler
	metrics     Metrics
	alerts      AlertPublisher
	maxAttempts int
	backoff     time.Duration
	stepTimeout time.Duration
}

// NewCoordinator builds a Coordinator from collaborators and stores.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	return &Coordinator{
		log:    cfg.Log,
		states: cfg.States,
		orders: cfg.Orders,
		steps: []stepHandler{
			&validateCartStep{cart: cfg.Cart},
			&reserveInventoryStep{inventory: cfg.Inventory},
			&chargePaymentStep{payment: cfg.Payment},
			&createShipmentStep{shipping: cfg.Shipping},
		},
		metrics:     cfg.Metrics,
		alerts:      cfg.Alerts,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		stepTimeout: cfg.StepTimeout,
	}
}

// Run starts a new saga for the order and drives it to a terminal state.
// The STARTED record is persisted before any collaborator is called.
// On success the order is CONFIRMED; on failure previously succeeded
// steps are compensated in reverse order and the order is CANCELLED.
func (c *Coordinator) Run(ctx context.Context, order *orders.Order) error {
	state := &State{
		OrderID:     order.OrderID,
		SagaID:      uuid.NewString(),
		CurrentStep: StepValidateCart,
		Status:      StatusStarted,
		Data:        map[string]string{},
	}
	if err := c.states.Create(ctx, state); err != nil {
		return fmt.Errorf("create saga state for order %s: %w", order.OrderID, err)
	}
	return c.run(ctx, &execution{order: order, state: state}, 0)
}

// Resume picks up a saga left in a non-terminal state after a crash.
// STARTED sagas continue from their persisted current step; step-scoped
// idempotency keys make re-executing the interrupted step safe.
// COMPENSATING sagas finish their rollback.
func (c *Coordinator) Resume(ctx context.Context, orderID string) error {
	state, err := c.states.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no saga for order %s", orderID)
	}
	if state.Status == StatusCompleted || state.Status == StatusFailed {
		return nil // already settled
	}
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %s not found for saga %s", orderID, state.SagaID)
	}
	if state.Data == nil {
		state.Data = map[string]string{}
	}

	ex := &execution{order: order, state: state}
	idx := c.stepIndex(state.CurrentStep)

	c.log.Info("resuming saga",
		"saga_id", state.SagaID, "order_id", orderID,
		"status", string(state.Status), "step", string(state.CurrentStep))

	if state.Status == StatusCompensating {
		c.settleFailed(ctx, ex, idx, errors.New("resumed during compensation"))
		return nil
	}
	return c.run(ctx, ex, idx)
}

func (c *Coordinator) run(ctx context.Context, ex *execution, from int) error {
	state := ex.state

	for i := from; i < len(c.steps); i++ {
		step := c.steps[i]

		// Write-ahead: persist the step we are about to execute so a
		// crash here is observable and resumable.
		state.CurrentStep = step.Name()
		if err := c.states.Update(ctx, state); err != nil {
			return fmt.Errorf("persist saga step %s: %w", step.Name(), err)
		}

		if err := c.executeWithRetry(ctx, step, ex); err != nil {
			c.log.Error("saga step failed, compensating",
				"saga_id", state.SagaID, "order_id", ex.order.OrderID,
				"step", string(step.Name()), "err", err)

			state.Errors = append(state.Errors, fmt.Sprintf("%s: %v", step.Name(), err))
			state.Status = StatusCompensating
			if uerr := c.states.Update(ctx, state); uerr != nil {
				c.log.Error("failed to persist COMPENSATING", "saga_id", state.SagaID, "err", uerr)
			}

			c.settleFailed(ctx, ex, i-1, err)
			return err
		}

		c.count(ctx, "SagaStepSucceeded", map[string]string{"step": string(step.Name())})
	}

	state.CurrentStep = StepComplete
	state.Status = StatusCompleted
	if err := c.states.Update(ctx, state); err != nil {
		return fmt.Errorf("persist saga completion: %w", err)
	}

	entry, err := ex.order.TransitionTo(orders.StatusConfirmed, "saga completed", "saga:"+state.SagaID)
	if err != nil {
		return fmt.Errorf("confirm order %s: %w", ex.order.OrderID, err)
	}
	if err := c.orders.SaveTransition(ctx, ex.order, entry); err != nil {
		return fmt.Errorf("persist order confirmation: %w", err)
	}

	c.count(ctx, "SagaCompleted", nil)
	c.log.Info("saga completed", "saga_id", state.SagaID, "order_id", ex.order.OrderID)
	return nil
}

// executeWithRetry runs a step with a per-attempt timeout. Only
// *CollaboratorError is retried; a business rejection (declined payment,
// insufficient stock) goes straight to compensation.
func (c *Coordinator) executeWithRetry(ctx context.Context, step stepHandler, ex *execution) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
		err := step.Execute(stepCtx, ex)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		var ce *CollaboratorError
		if !errors.As(err, &ce) {
			return err
		}
		if attempt == c.maxAttempts {
			break
		}

		c.count(ctx, "SagaStepRetried", map[string]string{"step": string(step.Name())})
		c.log.Warn("saga step retry",
			"saga_id", ex.state.SagaID, "step", string(step.Name()),
			"attempt", attempt, "err", err)

		select {
		case <-time.After(c.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// settleFailed compensates steps [0..idx] in reverse order, parks the
// saga at FAILED and cancels the order. A compensation failure is
// recorded and alerted, never retried; remaining compensations still run.
func (c *Coordinator) settleFailed(ctx context.Context, ex *execution, idx int, cause error) {
	state := ex.state

	for i := idx; i >= 0; i-- {
		step := c.steps[i]
		if err := step.Compensate(ctx, ex); err != nil {
			cfe := &CompensationFailedError{SagaID: state.SagaID, Step: step.Name(), Err: err}
			state.Errors = append(state.Errors, cfe.Error())

			c.count(ctx, "SagaCompensationFailed", map[string]string{"step": string(step.Name())})
			c.alertCompensationFailed(ctx, ex, cfe)
			c.log.Error("saga compensation failed, needs reconciliation",
				"saga_id", state.SagaID, "order_id", ex.order.OrderID,
				"step", string(step.Name()), "err", err)
		}
	}

	state.Status = StatusFailed
	if err := c.states.Update(ctx, state); err != nil {
		c.log.Error("failed to persist FAILED saga", "saga_id", state.SagaID, "err", err)
	}

	reason := "saga failed"
	if cause != nil {
		reason = fmt.Sprintf("saga failed at %s: %v", state.CurrentStep, cause)
	}
	entry, err := ex.order.TransitionTo(orders.StatusCancelled, reason, "saga:"+state.SagaID)
	if err != nil {
		// Already terminal (e.g. operator cancelled mid-saga); the saga
		// record still carries the failure detail.
		c.log.Warn("order not cancellable after saga failure",
			"saga_id", state.SagaID, "order_id", ex.order.OrderID, "err", err)
	} else if err := c.orders.SaveTransition(ctx, ex.order, entry); err != nil {
		c.log.Error("failed to persist order cancellation", "saga_id", state.SagaID, "err", err)
	}

	c.count(ctx, "SagaFailed", nil)
}

func (c *Coordinator) alertCompensationFailed(ctx context.Context, ex *execution, cfe *CompensationFailedError) {
	if c.alerts == nil {
		return
	}
	body, _ := json.Marshal(map[string]string{
		"kind":     "compensation_failed",
		"saga_id":  cfe.SagaID,
		"order_id": ex.order.OrderID,
		"step":     string(cfe.Step),
		"error":    cfe.Err.Error(),
	})
	attrs := map[string]string{
		"kind":     "compensation_failed",
		"order_id": ex.order.OrderID,
	}
	if err := c.alerts.SendMessage(ctx, string(body), attrs); err != nil {
		c.log.Error("failed to publish reconciliation alert", "saga_id", cfe.SagaID, "err", err)
	}
}

func (c *Coordinator) count(ctx context.Context, name string, dims map[string]string) {
	if c.metrics == nil {
		return
	}
	if err := c.metrics.Count(ctx, name, 1, dims); err != nil {
		c.log.Debug("metric emission failed", "metric", name, "err", err)
	}
}

func (c *Coordinator) stepIndex(name StepName) int {
	for i, s := range c.steps {
		if s.Name() == name {
			return i
		}
	}
	return 0
}
