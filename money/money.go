/*
Package money provides a currency-tagged fixed-point monetary value.

PURPOSE:
  Every amount in the charge engine - due amounts, paid amounts, waived
  amounts, outstanding balances - is a Money value. The type pairs a
  decimal quantity with its currency so that arithmetic across currencies
  is impossible by construction.

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors.
  2. Currency safety: Arithmetic between mismatched currencies panics;
     mixing currencies is a programming error, not a runtime condition.
     Cross-currency validation at the API boundary uses SameCurrencyAs.
  3. Value semantics: Money is immutable; every operation returns a new
     value.

USAGE:
  fee := money.NewFromFloat("USD", 100)
  paid := fee.Min(incoming)
  remaining := incoming.Sub(paid)

SEE ALSO:
  - percentage.go: Percentage-based charge amount computation
  - charge/: The aggregate that moves Money between its fields
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code.
type Currency string

// Money is an immutable currency-tagged decimal amount.
type Money struct {
	Currency Currency
	Amount   decimal.Decimal
}

func New(currency Currency, amount decimal.Decimal) Money {
	return Money{Currency: currency, Amount: amount}
}

func NewFromFloat(currency Currency, amount float64) Money {
	return Money{Currency: currency, Amount: decimal.NewFromFloat(amount)}
}

func NewFromString(currency Currency, amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", amount, err)
	}
	return Money{Currency: currency, Amount: d}, nil
}

func Zero(currency Currency) Money {
	return Money{Currency: currency, Amount: decimal.Zero}
}

// mustMatch guards arithmetic against currency mixing. A mismatch here is
// always a bug upstream; validation layers catch user-supplied mismatches
// before amounts ever meet.
func (m Money) mustMatch(o Money) {
	if m.Currency != o.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s vs %s", m.Currency, o.Currency))
	}
}

func (m Money) Add(o Money) Money {
	m.mustMatch(o)
	return Money{Currency: m.Currency, Amount: m.Amount.Add(o.Amount)}
}

func (m Money) Sub(o Money) Money {
	m.mustMatch(o)
	return Money{Currency: m.Currency, Amount: m.Amount.Sub(o.Amount)}
}

func (m Money) Min(o Money) Money {
	m.mustMatch(o)
	if m.Amount.LessThan(o.Amount) {
		return m
	}
	return o
}

// ClampZero returns zero when the amount is negative. Derived fields such
// as outstanding, paid, and waived are never allowed below zero.
func (m Money) ClampZero() Money {
	if m.Amount.IsNegative() {
		return Zero(m.Currency)
	}
	return m
}

func (m Money) Zero() Money { return Zero(m.Currency) }

func (m Money) IsZero() bool            { return m.Amount.IsZero() }
func (m Money) IsNegative() bool        { return m.Amount.IsNegative() }
func (m Money) IsGreaterThanZero() bool { return m.Amount.IsPositive() }

func (m Money) Equal(o Money) bool {
	m.mustMatch(o)
	return m.Amount.Equal(o.Amount)
}

func (m Money) GreaterThan(o Money) bool {
	m.mustMatch(o)
	return m.Amount.GreaterThan(o.Amount)
}

func (m Money) GreaterThanOrEqual(o Money) bool {
	m.mustMatch(o)
	return m.Amount.GreaterThanOrEqual(o.Amount)
}

func (m Money) LessThan(o Money) bool {
	m.mustMatch(o)
	return m.Amount.LessThan(o.Amount)
}

// SameCurrencyAs reports whether two amounts share a currency. Unlike the
// arithmetic methods this never panics; it exists for validation paths.
func (m Money) SameCurrencyAs(o Money) bool { return m.Currency == o.Currency }

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Amount.StringFixed(6))
}
