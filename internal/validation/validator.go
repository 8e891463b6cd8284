package validation

import (
	"fmt"
	"math"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreateOrderRequest to ensure
	// the provided Amount matches sum(items) + tax + shipping - discount.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// createOrderStructValidation verifies the monetary invariant in cents to
// avoid float rounding issues.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var sum float64
	for _, it := range req.Items {
		sum += float64(it.Quantity) * it.Price
	}
	expected := sum + req.Tax + req.Shipping - req.Discount

	expectedCents := int(math.Round(expected * 100))
	amountCents := int(math.Round(req.Amount * 100))
	if expectedCents != amountCents {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items",
			fmt.Sprintf("expected total %.2f != amount %.2f", expected, req.Amount))
	}
}
