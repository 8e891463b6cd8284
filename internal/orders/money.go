package orders

import (
	"fmt"
	"math"
)

// Money is an amount in minor currency units (cents) plus an ISO 4217 code.
// Keeping amounts integral avoids float drift when totals are re-checked.
type Money struct {
	Cents    int64  `dynamodbav:"cents" json:"cents"`
	Currency string `dynamodbav:"currency" json:"currency"`
}

// NewMoney validates the currency code.
func NewMoney(cents int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("currency must be a 3-letter ISO code, got %q", currency)
	}
	return Money{Cents: cents, Currency: currency}, nil
}

// FromFloat converts a major-unit amount (e.g. 29.99) to Money, rounding to cents.
func FromFloat(amount float64, currency string) (Money, error) {
	return NewMoney(int64(math.Round(amount*100)), currency)
}

// Float returns the amount in major units. For display only.
func (m Money) Float() float64 { return float64(m.Cents) / 100 }

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Cents: m.Cents + other.Cents, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Cents: m.Cents - other.Cents, Currency: m.Currency}, nil
}

func (m Money) Mul(factor int64) Money {
	return Money{Cents: m.Cents * factor, Currency: m.Currency}
}
