package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// CanonicalHash returns the sha256 hex digest of a canonicalized encoding
// of the request. Two semantically identical submissions hash identically
// even when item order or float formatting differs, so a client that
// re-submits the same order under a fresh idempotency key is still caught
// by the content-duplicate guard.
func CanonicalHash(req *CreateOrderRequest) string {
	items := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, fmt.Sprintf("%s|%s|%d|%d", it.ProductID, it.SKU, it.Quantity, cents(it.Price)))
	}
	sort.Strings(items)

	var b strings.Builder
	b.WriteString(strings.Join(items, ";"))
	b.WriteString(fmt.Sprintf("|%s|%d|%d|%d|%d", req.Currency, cents(req.Tax), cents(req.Shipping), cents(req.Discount), cents(req.Amount)))
	b.WriteString("|" + canonicalAddress(req.BillingAddress))
	b.WriteString("|" + canonicalAddress(req.ShippingAddress))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func canonicalAddress(a Address) string {
	return strings.ToUpper(strings.Join([]string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country}, ","))
}

func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
