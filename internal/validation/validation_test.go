package validation

import (
	"strings"
	"testing"

	validatorv10 "github.com/go-playground/validator/v10"
)

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Items: []Item{
			{ProductID: "p1", SKU: "SKU1", Quantity: 2, Price: 29.99},
			{ProductID: "p2", SKU: "SKU2", Quantity: 1, Price: 10.00},
		},
		Currency: "USD",
		Tax:      5.00,
		Shipping: 7.99,
		Discount: 2.99,
		Amount:   79.98, // 59.98 + 10.00 + 5.00 + 7.99 - 2.99
		BillingAddress: Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		ShippingAddress: Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
	}
}

func TestValidate_AcceptsMatchingAmount(t *testing.T) {
	v := New()
	req := validRequest()
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidate_RejectsMismatchedAmount(t *testing.T) {
	v := New()
	req := validRequest()
	req.Amount = 100.00

	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected amount mismatch to fail")
	}
	verrs, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	found := false
	for _, fe := range verrs {
		if fe.Tag() == "amount_match_items" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected amount_match_items violation, got %v", verrs)
	}
}

func TestValidate_FieldRules(t *testing.T) {
	v := New()

	req := validRequest()
	req.Items = nil
	if err := v.Struct(req); err == nil {
		t.Fatal("expected empty items to fail")
	}

	req = validRequest()
	req.Items[0].Quantity = 0
	if err := v.Struct(req); err == nil {
		t.Fatal("expected zero quantity to fail")
	}

	req = validRequest()
	req.Currency = "DOLLARS"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected bad currency to fail")
	}

	req = validRequest()
	req.BillingAddress.Country = "USA"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected 3-letter country to fail")
	}

	req = validRequest()
	req.Discount = -1
	if err := v.Struct(req); err == nil {
		t.Fatal("expected negative discount to fail")
	}
}

func TestCanonicalHash_StableUnderItemOrder(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.Items[0], b.Items[1] = b.Items[1], b.Items[0]

	if CanonicalHash(&a) != CanonicalHash(&b) {
		t.Fatal("hash must not depend on item order")
	}
}

func TestCanonicalHash_StableUnderAddressCase(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.ShippingAddress.City = strings.ToLower(b.ShippingAddress.City)

	if CanonicalHash(&a) != CanonicalHash(&b) {
		t.Fatal("hash must not depend on address casing")
	}
}

func TestCanonicalHash_ChangesWithContent(t *testing.T) {
	base := CanonicalHash(func() *CreateOrderRequest { r := validRequest(); return &r }())

	mutations := []func(*CreateOrderRequest){
		func(r *CreateOrderRequest) { r.Items[0].Quantity = 3 },
		func(r *CreateOrderRequest) { r.Items[0].Price = 30.00 },
		func(r *CreateOrderRequest) { r.Items[0].SKU = "SKU9" },
		func(r *CreateOrderRequest) { r.Currency = "EUR" },
		func(r *CreateOrderRequest) { r.Discount = 0 },
		func(r *CreateOrderRequest) { r.ShippingAddress.Line1 = "2 Side St" },
	}
	for i, mutate := range mutations {
		r := validRequest()
		mutate(&r)
		if CanonicalHash(&r) == base {
			t.Errorf("mutation %d did not change the hash", i)
		}
	}
}
