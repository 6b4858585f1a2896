/*
Package charge implements recurring-charge scheduling and settlement
allocation for financial accounts.

PURPOSE:
  A Charge is a configured fee or penalty attached to an account: either
  one-off (due on a specific date, or event-driven at activation,
  withdrawal, closure, or overdraft) or recurring (annual, monthly,
  weekly). Recurring charges own a schedule of installments; payments and
  waivers are allocated across that schedule in due-date order, and the
  active due date rolls forward as each cycle is fully settled.

KEY CONCEPTS IN THIS FILE (types.go):
  - CalculationType: How the charge amount is derived (flat, percentage)
  - TimingType: When the charge falls due (fixed date, recurrence, event)
  - ChargeStatus: Derived lifecycle state of a charge

DESIGN PRINCIPLES:
  1. Closed enums with exhaustive switches - no subclassing per type.
  2. Derived fields (outstanding, paid, waived) are recomputed explicitly
     alongside the mutation that changes them, never lazily.
  3. The aggregate mutates only its own object graph; persistence and
     transactions belong to the caller.

SEE ALSO:
  - charge.go: The Charge aggregate and its state machine
  - installment.go: Per-cycle settlement accounting
  - schedule.go: Installment schedule generation
  - allocator.go: Payment/waiver allocation and undo
*/
package charge

import (
	"github.com/warp/charge-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ChargeID string
type AccountID string

// =============================================================================
// CALCULATION TYPE - How the charge amount is derived
// =============================================================================

type CalculationType string

const (
	CalculationInvalid                    CalculationType = "invalid"
	CalculationFlat                       CalculationType = "flat"
	CalculationPercentOfAmount            CalculationType = "percent_of_amount"
	CalculationPercentOfAmountAndInterest CalculationType = "percent_of_amount_and_interest"
	CalculationPercentOfInterest          CalculationType = "percent_of_interest"
)

func (c CalculationType) IsFlat() bool            { return c == CalculationFlat }
func (c CalculationType) IsPercentOfAmount() bool { return c == CalculationPercentOfAmount }

// =============================================================================
// TIMING TYPE - When the charge falls due
// =============================================================================

type TimingType string

const (
	TimingSpecifiedDueDate TimingType = "specified_due_date"
	TimingActivation       TimingType = "activation"
	TimingClosure          TimingType = "closure"
	TimingWithdrawal       TimingType = "withdrawal"
	TimingOverdraft        TimingType = "overdraft"
	TimingAnnual           TimingType = "annual"
	TimingMonthly          TimingType = "monthly"
	TimingWeekly           TimingType = "weekly"
)

func (t TimingType) IsOnSpecifiedDueDate() bool { return t == TimingSpecifiedDueDate }
func (t TimingType) IsActivation() bool         { return t == TimingActivation }
func (t TimingType) IsClosure() bool            { return t == TimingClosure }
func (t TimingType) IsWithdrawal() bool         { return t == TimingWithdrawal }
func (t TimingType) IsOverdraft() bool          { return t == TimingOverdraft }
func (t TimingType) IsAnnual() bool             { return t == TimingAnnual }
func (t TimingType) IsMonthly() bool            { return t == TimingMonthly }
func (t TimingType) IsWeekly() bool             { return t == TimingWeekly }

// IsRecurring reports whether the timing type carries an installment
// schedule.
func (t TimingType) IsRecurring() bool {
	return t.IsAnnual() || t.IsMonthly() || t.IsWeekly()
}

// Frequency maps a recurring timing type onto its calendar frequency.
func (t TimingType) Frequency() calendar.Frequency {
	switch t {
	case TimingWeekly:
		return calendar.Weekly
	case TimingMonthly:
		return calendar.Monthly
	case TimingAnnual:
		return calendar.Yearly
	default:
		return ""
	}
}

// =============================================================================
// CHARGE STATUS - Derived lifecycle state
// =============================================================================

// ChargeStatus is computed from the aggregate's flags and amounts; the
// flags themselves remain the stored source of truth.
type ChargeStatus string

const (
	StatusActive           ChargeStatus = "active"
	StatusPartiallySettled ChargeStatus = "partially_settled"
	StatusClosed           ChargeStatus = "closed"
	StatusInactive         ChargeStatus = "inactive"
)
