/*
allocator.go - Payment and waiver allocation across a charge

ALLOCATION ORDER:
  Payments and waivers walk the schedule oldest-to-newest, skipping
  installments already satisfied, and stop at the first installment due
  after the charge's active due date - future cycles are never pre-paid
  implicitly. Each installment consumes min(remaining, overdue).

  The applied amount reported back is what the installments actually
  absorbed; the charge never records more as paid than the schedule could
  take. Detecting a true overpayment is the caller's job before invoking
  the allocator.

UNDO:
  The mirror walk, newest-to-oldest, reversing any installment with a
  non-zero paid (or waived) amount until the undo amount is exhausted.
  Undo always reopens the installments it touches and recomputes the
  charge's outstanding from the schedule. Reversing more than was ever
  applied clamps at zero; derived amounts never go negative.

ROLLOVER:
  When a settlement zeroes the charge's outstanding, the active due date
  advances to the next installment and the per-cycle fields reset for the
  new cycle. "Fully paid" for a recurring charge means the whole
  schedule's overdue sum is zero, not merely the active installment.
*/
package charge

import (
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/money"
)

// SettlementAllocator distributes settlements across a charge's
// installments and reverses such distributions.
type SettlementAllocator struct{}

// Pay applies amount against the charge as of the transaction date and
// returns the portion actually applied.
func (SettlementAllocator) Pay(c *Charge, amount money.Money, asOf calendar.Date) (money.Money, error) {
	if c.IsNotActive() {
		return money.Zero(c.Currency), ErrChargeInactive
	}

	applied := amount
	if c.IsRecurring() {
		remaining := amount
		for _, in := range c.Schedule.Installments {
			if !remaining.IsGreaterThanZero() {
				break
			}
			if in.DueDate.After(c.DueDate) {
				break
			}
			if in.IsNotFullySettled() {
				remaining = remaining.Sub(in.pay(asOf, remaining))
			}
		}
		applied = amount.Sub(remaining)
	} else {
		applied = amount.Min(c.AmountOutstanding)
	}

	c.AmountPaid = c.AmountPaid.Add(applied)
	c.AmountOutstanding = c.AmountOutstanding.Sub(applied).ClampZero()
	c.Paid = c.determineIfFullySettled()

	if c.AmountOutstanding.IsZero() {
		c.rolloverAfterSettlement()
	}
	return applied, nil
}

// Waive forgives amount against the charge and returns the portion
// actually waived.
func (SettlementAllocator) Waive(c *Charge, amount money.Money, asOf calendar.Date) (money.Money, error) {
	if c.IsNotActive() {
		return money.Zero(c.Currency), ErrChargeInactive
	}

	applied := amount
	if c.IsRecurring() {
		remaining := amount
		for _, in := range c.Schedule.Installments {
			if !remaining.IsGreaterThanZero() {
				break
			}
			if in.DueDate.After(c.DueDate) {
				break
			}
			if in.IsNotFullySettled() {
				remaining = remaining.Sub(in.waive(asOf, remaining))
			}
		}
		applied = amount.Sub(remaining)
	} else {
		applied = amount.Min(c.AmountOutstanding)
	}

	c.AmountWaived = c.AmountWaived.Add(applied)
	c.AmountOutstanding = c.AmountOutstanding.Sub(applied).ClampZero()
	c.Waived = c.determineIfFullySettled()

	if c.AmountOutstanding.IsZero() {
		c.rolloverAfterSettlement()
	}
	return applied, nil
}

// UndoPay reverses up to amount of prior payments, newest installments
// first, and returns the portion actually undone.
func (SettlementAllocator) UndoPay(c *Charge, amount money.Money) (money.Money, error) {
	if c.IsNotActive() {
		return money.Zero(c.Currency), ErrChargeInactive
	}

	var undone money.Money
	if c.IsRecurring() {
		remaining := amount
		for i := len(c.Schedule.Installments) - 1; i >= 0; i-- {
			if !remaining.IsGreaterThanZero() {
				break
			}
			in := c.Schedule.Installments[i]
			if in.PaidAmount.IsGreaterThanZero() {
				remaining = remaining.Sub(in.undoPay(remaining))
			}
		}
		undone = amount.Sub(remaining)
		c.AmountPaid = c.AmountPaid.Sub(undone).ClampZero()
		c.AmountOutstanding = c.outstandingSchedule()
	} else {
		undone = amount.Min(c.AmountPaid)
		c.AmountPaid = c.AmountPaid.Sub(undone)
		c.AmountOutstanding = c.outstandingLocal()
	}

	if c.Timing.IsWithdrawal() {
		c.AmountOutstanding = money.Zero(c.Currency)
	}

	c.Paid = false
	c.Waived = false
	return undone, nil
}

// UndoWaive mirrors UndoPay for waived amounts.
func (SettlementAllocator) UndoWaive(c *Charge, amount money.Money) (money.Money, error) {
	if c.IsNotActive() {
		return money.Zero(c.Currency), ErrChargeInactive
	}

	var undone money.Money
	if c.IsRecurring() {
		remaining := amount
		for i := len(c.Schedule.Installments) - 1; i >= 0; i-- {
			if !remaining.IsGreaterThanZero() {
				break
			}
			in := c.Schedule.Installments[i]
			if in.WaivedAmount.IsGreaterThanZero() {
				remaining = remaining.Sub(in.undoWaive(remaining))
			}
		}
		undone = amount.Sub(remaining)
		c.AmountWaived = c.AmountWaived.Sub(undone).ClampZero()
		c.AmountOutstanding = c.outstandingSchedule()
	} else {
		undone = amount.Min(c.AmountWaived)
		c.AmountWaived = c.AmountWaived.Sub(undone)
		c.AmountOutstanding = c.outstandingLocal()
	}

	c.Paid = false
	c.Waived = false
	return undone, nil
}

// rolloverAfterSettlement advances a fully settled recurring charge to
// its next cycle. Non-recurring charges are terminal once settled.
func (c *Charge) rolloverAfterSettlement() {
	if !c.IsRecurring() {
		return
	}
	c.advanceToNextInstallment()
	c.resetPropertiesForRecurringFees()
}
