package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderParams carries everything needed to build a PENDING order.
type NewOrderParams struct {
	TenantID       string
	UserID         string
	Items          []OrderItem
	Tax            Money
	Shipping       Money
	Discount       Money
	BillingAddr    Address
	ShippingAddr   Address
	IdempotencyKey string
	Actor          string
}

// NewOrder builds an order in PENDING status with totals derived from the
// items, and returns the creation history entry to persist alongside it.
// The monetary invariant (total = subtotal + tax + shipping - discount)
// holds by construction and is re-checked anyway via CheckTotals.
func NewOrder(p NewOrderParams) (*Order, HistoryEntry, error) {
	if len(p.Items) == 0 {
		return nil, HistoryEntry{}, fmt.Errorf("order must contain at least one item")
	}

	currency := p.Items[0].UnitPrice.Currency
	subtotal := Money{Cents: 0, Currency: currency}
	for i := range p.Items {
		it := &p.Items[i]
		if it.Quantity <= 0 {
			return nil, HistoryEntry{}, fmt.Errorf("item %s: quantity must be positive", it.SKU)
		}
		it.TotalPrice = it.UnitPrice.Mul(int64(it.Quantity))
		var err error
		subtotal, err = subtotal.Add(it.TotalPrice)
		if err != nil {
			return nil, HistoryEntry{}, fmt.Errorf("item %s: %w", it.SKU, err)
		}
	}

	total, err := sumTotal(subtotal, p.Tax, p.Shipping, p.Discount)
	if err != nil {
		return nil, HistoryEntry{}, err
	}

	now := time.Now().UTC()
	o := &Order{
		OrderID:        uuid.NewString(),
		TenantID:       p.TenantID,
		OrderNumber:    newOrderNumber(now),
		UserID:         p.UserID,
		Status:         StatusPending,
		Subtotal:       subtotal,
		Tax:            p.Tax,
		Shipping:       p.Shipping,
		Discount:       p.Discount,
		Total:          total,
		Items:          p.Items,
		BillingAddr:    p.BillingAddr,
		ShippingAddr:   p.ShippingAddr,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := o.CheckTotals(); err != nil {
		return nil, HistoryEntry{}, err
	}

	created := HistoryEntry{
		OrderID:        o.OrderID,
		ChangedAtNanos: now.UnixNano(),
		PreviousStatus: "",
		NewStatus:      StatusPending,
		Reason:         "order created",
		ChangedBy:      p.Actor,
		ChangedAt:      now,
	}
	return o, created, nil
}

// TransitionTo moves the order along a legal status edge and returns the
// history entry recording the change. Illegal edges fail with
// *InvalidTransitionError and leave the order untouched.
func (o *Order) TransitionTo(to Status, reason, actor string) (HistoryEntry, error) {
	if !CanTransition(o.Status, to) {
		return HistoryEntry{}, &InvalidTransitionError{OrderID: o.OrderID, From: o.Status, To: to}
	}
	if err := o.CheckTotals(); err != nil {
		return HistoryEntry{}, err
	}

	now := time.Now().UTC()
	prev := o.Status
	o.Status = to
	o.UpdatedAt = now

	switch to {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}

	return HistoryEntry{
		OrderID:        o.OrderID,
		ChangedAtNanos: now.UnixNano(),
		PreviousStatus: prev,
		NewStatus:      to,
		Reason:         reason,
		ChangedBy:      actor,
		ChangedAt:      now,
	}, nil
}

// CheckTotals re-verifies total = subtotal + tax + shipping - discount and
// that every line item satisfies totalPrice = quantity * unitPrice.
func (o *Order) CheckTotals() error {
	for _, it := range o.Items {
		want := it.UnitPrice.Mul(int64(it.Quantity))
		if it.TotalPrice != want {
			return &InvariantViolationError{
				OrderID: o.OrderID,
				Detail:  fmt.Sprintf("item %s: total %d != %d x %d", it.SKU, it.TotalPrice.Cents, it.Quantity, it.UnitPrice.Cents),
			}
		}
	}

	want, err := sumTotal(o.Subtotal, o.Tax, o.Shipping, o.Discount)
	if err != nil {
		return &InvariantViolationError{OrderID: o.OrderID, Detail: err.Error()}
	}
	if o.Total != want {
		return &InvariantViolationError{
			OrderID: o.OrderID,
			Detail:  fmt.Sprintf("total %d != subtotal %d + tax %d + shipping %d - discount %d", o.Total.Cents, o.Subtotal.Cents, o.Tax.Cents, o.Shipping.Cents, o.Discount.Cents),
		}
	}
	return nil
}

func sumTotal(subtotal, tax, shipping, discount Money) (Money, error) {
	t, err := subtotal.Add(tax)
	if err != nil {
		return Money{}, err
	}
	t, err = t.Add(shipping)
	if err != nil {
		return Money{}, err
	}
	return t.Sub(discount)
}

// newOrderNumber produces the externally visible order number, e.g.
// ORD-20260829-5D41402A. Uniqueness comes from the uuid fragment.
func newOrderNumber(now time.Time) string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), frag)
}
