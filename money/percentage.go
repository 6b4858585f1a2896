package money

import "github.com/shopspring/decimal"

// =============================================================================
// PERCENTAGE CALCULATION - 8 significant digits, banker's rounding
// =============================================================================

// significantDigits is the working precision for percentage-derived charge
// amounts. Matches the ledger's stored precision of 6 fractional digits
// with headroom for integral digits.
const significantDigits = 8

// PercentageOf returns base × (pct / 100) computed at 8 significant
// digits with half-even rounding. A zero or negative base yields zero:
// percentage-based charges never go negative.
func PercentageOf(base Money, pct decimal.Decimal) Money {
	if !base.IsGreaterThanZero() {
		return Zero(base.Currency)
	}
	multiplicand := roundSignificant(pct.Div(decimal.NewFromInt(100)), significantDigits)
	result := roundSignificant(base.Amount.Mul(multiplicand), significantDigits)
	return Money{Currency: base.Currency, Amount: result}
}

// roundSignificant rounds d to the given number of significant digits
// using banker's (half-even) rounding.
func roundSignificant(d decimal.Decimal, digits int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	// Position of the most significant digit relative to the decimal
	// point: 20.5 -> 2, 0.0042 -> -2.
	msd := int32(d.NumDigits()) + d.Exponent()
	return d.RoundBank(digits - msd)
}
