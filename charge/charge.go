/*
charge.go - The Charge aggregate root

A Charge composes the timing/calculation configuration, the derived
amount fields, and (for recurring charges) the installment schedule.

STATE MACHINE:
  Pending -> Active:            construction succeeds once mandatory
                                fields for the timing type are present.
  Active -> PartiallySettled:   a settlement that leaves outstanding > 0.
  PartiallySettled -> Active:   rollover to the next cycle (recurring).
  Active/Partial -> Closed:     non-recurring charge fully paid or waived.
  any -> Inactive:              explicit deactivation; terminal.

INVARIANTS:
  - Non-recurring: amount == paid + waived + writtenOff + outstanding
    after every operation.
  - Recurring: the same identity holds per installment, and the charge's
    outstanding covers every unsatisfied installment up to the active due
    date.
  - No derived amount is ever negative.
*/
package charge

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/money"
)

// =============================================================================
// CHARGE - Aggregate root
// =============================================================================

type Charge struct {
	ID        ChargeID
	AccountID AccountID
	Name      string
	Currency  money.Currency
	Penalty   bool

	Calculation CalculationType
	Timing      TimingType

	// Amount is the flat amount, or the computed amount for
	// percentage-based charges. Percentage and Amount are mutually
	// exclusive inputs depending on the calculation type.
	Amount         money.Money
	Percentage     decimal.Decimal
	PercentageBase money.Money

	StartDate calendar.Date

	// DueDate is the nominal next-due date for non-recurring charges, or
	// the currently active installment's due date for recurring ones.
	DueDate calendar.Date

	FeeOnMonth  time.Month
	FeeOnDay    int
	FeeInterval int

	// CalendarInherited marks a recurrence derived from the parent
	// group/center meeting calendar rather than an independent one.
	CalendarInherited bool

	AmountPaid        money.Money
	AmountWaived      money.Money
	AmountWrittenOff  money.Money
	AmountOutstanding money.Money

	Paid   bool
	Waived bool
	Active bool

	InactivatedOn *calendar.Date

	// Schedule is owned when the charge is recurring; ordered by
	// installment number, then due date.
	Schedule Schedule

	// Version counts successful saves; the store rejects a write whose
	// loaded version is no longer current. Zero means never persisted.
	Version int64
}

// Spec carries the inputs for constructing a charge. Optional fields are
// pointers so "absent" is distinguishable from a zero value; product
// defaults are resolved by the Assembler before construction.
type Spec struct {
	ID        ChargeID
	AccountID AccountID
	Name      string
	Currency  money.Currency
	Penalty   bool

	Calculation CalculationType
	Timing      TimingType

	// Amount is the flat amount or the percentage, depending on the
	// calculation type.
	Amount decimal.Decimal

	DueDate           *calendar.Date
	FeeOnMonthDay     *calendar.MonthDay
	FeeInterval       *int
	CalendarInherited bool
}

// NewCharge validates the spec against its timing type and returns an
// Active charge with derived fields populated. today anchors the
// applicable-due-date roll-forward for annual and monthly fees.
func NewCharge(spec Spec, today calendar.Date) (*Charge, error) {
	c := &Charge{
		ID:          spec.ID,
		AccountID:   spec.AccountID,
		Name:        spec.Name,
		Currency:    spec.Currency,
		Penalty:     spec.Penalty,
		Calculation: spec.Calculation,
		Timing:      spec.Timing,
		Active:      true,
	}

	switch {
	case spec.Timing.IsOnSpecifiedDueDate():
		if spec.DueDate == nil {
			return nil, &MissingFieldError{Field: "dueDate", Timing: spec.Timing}
		}
		c.DueDate = *spec.DueDate
		c.StartDate = *spec.DueDate

	case spec.Timing.IsAnnual() || spec.Timing.IsMonthly():
		if spec.FeeOnMonthDay == nil {
			return nil, &MissingFieldError{Field: "feeOnMonthDay", Timing: spec.Timing}
		}
		c.FeeOnMonth = spec.FeeOnMonthDay.Month
		c.FeeOnDay = spec.FeeOnMonthDay.Day

	case spec.Timing.IsWeekly():
		if spec.DueDate == nil {
			return nil, &MissingFieldError{Field: "dueDate", Timing: spec.Timing}
		}
		// For weekly fees feeOnDay is the ISO day of the week.
		c.FeeOnDay = spec.DueDate.ISOWeekday()
		c.DueDate = *spec.DueDate
		c.StartDate = *spec.DueDate
	}

	if spec.Timing.IsMonthly() || spec.Timing.IsWeekly() {
		if spec.FeeInterval == nil || *spec.FeeInterval < 1 {
			return nil, ErrInvalidFeeInterval
		}
		c.FeeInterval = *spec.FeeInterval
	}
	if spec.Timing.IsAnnual() {
		c.FeeInterval = 1
	}

	if spec.Timing.IsAnnual() || spec.Timing.IsMonthly() {
		if spec.DueDate != nil {
			c.DueDate = *spec.DueDate
		} else {
			c.DueDate = c.applicableDueDate(today)
		}
		c.StartDate = c.applicableDueDate(today)
	}

	c.populateDerivedFields(money.Zero(spec.Currency), spec.Amount)

	// Withdrawal fees accrue per transaction; nothing is outstanding
	// until a withdrawal happens.
	if c.Timing.IsWithdrawal() {
		c.AmountOutstanding = money.Zero(c.Currency)
	}

	if spec.Timing.IsRecurring() {
		c.CalendarInherited = spec.CalendarInherited
	}

	return c, nil
}

// populateDerivedFields dispatches on the calculation type. Recurring
// charges only support flat calculation; percentage types derive their
// amount from a base supplied later (e.g. a withdrawal amount).
func (c *Charge) populateDerivedFields(base money.Money, value decimal.Decimal) {
	zero := money.Zero(c.Currency)
	switch c.Calculation {
	case CalculationFlat:
		c.Percentage = decimal.Zero
		c.Amount = money.New(c.Currency, value)
		c.AmountOutstanding = c.Amount
	case CalculationPercentOfAmount:
		c.Percentage = value
		c.PercentageBase = base
		c.Amount = money.PercentageOf(base, c.Percentage)
		c.AmountOutstanding = c.outstandingLocal()
	default:
		// Invalid, percent-of-interest variants: nothing owed until an
		// interest posting computes the amount.
		c.Percentage = decimal.Zero
		c.Amount = zero
		c.AmountOutstanding = zero
	}
	c.AmountPaid = zero
	c.AmountWaived = zero
	c.AmountWrittenOff = zero
}

// =============================================================================
// PREDICATES AND DERIVED STATE
// =============================================================================

func (c *Charge) IsRecurring() bool { return c.Timing.IsRecurring() }
func (c *Charge) IsFee() bool       { return !c.Penalty }
func (c *Charge) IsNotActive() bool { return !c.Active }

func (c *Charge) IsPaid() bool     { return c.Paid }
func (c *Charge) IsWaived() bool   { return c.Waived }
func (c *Charge) NotPaidOff() bool { return !c.Paid }

// IsDue reports whether the charge's due date has elapsed as of the given
// date.
func (c *Charge) IsDue(asOf calendar.Date) bool {
	return c.DueDate.Before(asOf)
}

// HasCurrency reports whether the charge is denominated in the given
// currency; used for account-level validation.
func (c *Charge) HasCurrency(currency money.Currency) bool {
	return c.Currency == currency
}

// Status derives the lifecycle state from the stored flags.
func (c *Charge) Status() ChargeStatus {
	switch {
	case !c.Active:
		return StatusInactive
	case !c.IsRecurring() && (c.Paid || c.Waived):
		return StatusClosed
	case c.AmountPaid.Add(c.AmountWaived).IsGreaterThanZero() && c.AmountOutstanding.IsGreaterThanZero():
		return StatusPartiallySettled
	default:
		return StatusActive
	}
}

// DueDateConfig extracts the timing configuration for due date
// arithmetic.
func (c *Charge) DueDateConfig() DueDateConfig {
	return DueDateConfig{
		Timing:      c.Timing,
		FeeOnMonth:  c.FeeOnMonth,
		FeeOnDay:    c.FeeOnDay,
		FeeInterval: c.FeeInterval,
	}
}

// RecurrenceRule maps the charge's timing configuration onto a calendar
// recurrence rule anchored on its fee-on settings.
func (c *Charge) RecurrenceRule() calendar.Rule {
	return calendar.Rule{
		Frequency:   c.Timing.Frequency(),
		Interval:    c.FeeInterval,
		Start:       c.DueDate,
		Weekday:     c.weeklyAnchor(),
		DayOfMonth:  c.FeeOnDay,
		MonthOfYear: c.FeeOnMonth,
	}
}

func (c *Charge) weeklyAnchor() int {
	if c.Timing.IsWeekly() {
		return c.FeeOnDay
	}
	return 0
}

// =============================================================================
// DUE DATE MANAGEMENT
// =============================================================================

// applicableDueDate resolves the next occurrence of the fee anchor that
// is not in the past. Annual fees whose month already passed this year,
// and monthly fees whose month-day already elapsed, roll forward.
func (c *Charge) applicableDueDate(today calendar.Date) calendar.Date {
	anchor := calendar.MonthDay{Month: c.FeeOnMonth, Day: c.FeeOnDay}
	due := anchor.In(today.Year())
	if c.Timing.IsMonthly() {
		due = today.WithDayClamped(c.FeeOnDay)
	}
	for due.Before(today) {
		next, err := NextDueDate(due, c.DueDateConfig())
		if err != nil {
			return due
		}
		due = next
	}
	return due
}

// advanceToNextInstallment moves the active due date to the installment
// following the current one. Returns false when the schedule has no later
// installment (lookahead exhausted; the batch extender replenishes it).
func (c *Charge) advanceToNextInstallment() bool {
	idx := c.Schedule.indexOfDueDate(c.DueDate)
	if idx < 0 || idx+1 >= len(c.Schedule.Installments) {
		return false
	}
	c.DueDate = c.Schedule.Installments[idx+1].DueDate
	return true
}

// resetPropertiesForRecurringFees opens the next cycle after a full
// settlement: outstanding back to the full amount, paid/waived cleared.
// Recurring charges only support flat calculation.
func (c *Charge) resetPropertiesForRecurringFees() {
	if c.IsRecurring() {
		c.AmountOutstanding = c.Amount
		c.Paid = false
		c.Waived = false
	}
}

// RollForwardDueDate advances an elapsed due date to the next scheduled
// installment until it reaches asOf or the schedule runs out. Each period
// rolled past stays owed: its due amount accumulates into outstanding.
// Idempotent: a synchronized charge is untouched.
func (c *Charge) RollForwardDueDate(asOf calendar.Date) bool {
	if !c.IsRecurring() || !c.Active {
		return false
	}
	moved := false
	for c.DueDate.Before(asOf) {
		if !c.advanceToNextInstallment() {
			break
		}
		c.AmountOutstanding = c.AmountOutstanding.Add(c.Amount)
		c.Paid = false
		moved = true
	}
	return moved
}

// =============================================================================
// OUTSTANDING CALCULATION
// =============================================================================

// outstandingLocal computes outstanding from the charge's own trio:
// amount - paid - waived - writtenOff.
func (c *Charge) outstandingLocal() money.Money {
	accounted := c.AmountPaid.Add(c.AmountWaived).Add(c.AmountWrittenOff)
	return c.Amount.Sub(accounted).ClampZero()
}

// outstandingSchedule sums the overdue amounts of every installment up to
// and including the currently active due date.
func (c *Charge) outstandingSchedule() money.Money {
	total := money.Zero(c.Currency)
	for _, in := range c.Schedule.Installments {
		total = total.Add(in.Overdue())
		if in.DueDate.Equal(c.DueDate) {
			break
		}
	}
	return total
}

// TotalScheduleOverdue sums the overdue amounts across the whole
// schedule; "fully paid" for a recurring charge means this is zero, not
// merely the active installment.
func (c *Charge) TotalScheduleOverdue() money.Money {
	total := money.Zero(c.Currency)
	for _, in := range c.Schedule.Installments {
		total = total.Add(in.Overdue())
	}
	return total
}

func (c *Charge) determineIfFullySettled() bool {
	if c.IsRecurring() {
		return c.TotalScheduleOverdue().IsZero()
	}
	return c.outstandingLocal().IsZero()
}

// =============================================================================
// MUTATIONS OUTSIDE SETTLEMENT
// =============================================================================

// UpdateAmount changes the charge amount (or percentage) and propagates
// the new due amount to every scheduled installment.
func (c *Charge) UpdateAmount(value decimal.Decimal) {
	switch c.Calculation {
	case CalculationFlat:
		c.Amount = money.New(c.Currency, value)
		c.AmountOutstanding = c.outstandingLocal()
	case CalculationPercentOfAmount:
		c.Percentage = value
		c.Amount = money.PercentageOf(c.PercentageBase, c.Percentage)
		c.AmountOutstanding = c.outstandingLocal()
	default:
		c.Percentage = value
	}
	for _, in := range c.Schedule.Installments {
		in.updateDueAmount(c.Amount)
	}
}

// UpdateDueDate replaces the nominal due date; weekly fees re-anchor
// their weekday to it.
func (c *Charge) UpdateDueDate(dueDate calendar.Date) {
	c.DueDate = dueDate
	if c.Timing.IsWeekly() {
		c.FeeOnDay = dueDate.ISOWeekday()
	}
}

// UpdateRecurrence replaces the fee anchors and interval of a recurring
// charge. Pass nil / zero to leave a field unchanged. The schedule is not
// rewritten here; callers regenerate it when the anchors moved.
func (c *Charge) UpdateRecurrence(feeOnMonthDay *calendar.MonthDay, feeInterval int) error {
	if !c.IsRecurring() {
		return ErrNotRecurring
	}
	if feeOnMonthDay != nil && (c.Timing.IsAnnual() || c.Timing.IsMonthly()) {
		c.FeeOnMonth = feeOnMonthDay.Month
		c.FeeOnDay = feeOnMonthDay.Day
	}
	if feeInterval != 0 {
		if feeInterval < 0 {
			return ErrInvalidFeeInterval
		}
		if !c.Timing.IsAnnual() {
			c.FeeInterval = feeInterval
		}
	}
	return nil
}

// UpdateWithdrawalFeeAmount recomputes the amount owed for a withdrawal
// fee from the withdrawal's transaction amount.
func (c *Charge) UpdateWithdrawalFeeAmount(transactionAmount money.Money) money.Money {
	payable := money.Zero(c.Currency)
	switch {
	case c.Calculation.IsFlat():
		payable = c.Amount
	case c.Calculation.IsPercentOfAmount():
		payable = money.PercentageOf(transactionAmount, c.Percentage)
	}
	c.AmountOutstanding = payable
	return payable
}

// Inactivate closes the charge out terminally, e.g. at account closure.
// Not reversible by this engine.
func (c *Charge) Inactivate(asOf calendar.Date) {
	c.InactivatedOn = &asOf
	c.Active = false
	c.AmountOutstanding = money.Zero(c.Currency)
	c.Paid = true
}

// MarkAsFullyPaid settles the charge administratively without an
// allocation pass (e.g. fee capitalized at closure).
func (c *Charge) MarkAsFullyPaid() {
	c.AmountPaid = c.Amount
	c.AmountOutstanding = money.Zero(c.Currency)
	c.Paid = true
}

// ResetToOriginal clears all settlement accounting, restoring the charge
// to its just-constructed amounts.
func (c *Charge) ResetToOriginal() {
	zero := money.Zero(c.Currency)
	c.AmountPaid = zero
	c.AmountWaived = zero
	c.AmountWrittenOff = zero
	c.AmountOutstanding = c.outstandingLocal()
	c.Paid = false
	c.Waived = false
}
