/*
installment.go - One scheduled obligation of a recurring charge

An Installment owns its own paid/waived accounting. The conservation
invariant paid + waived <= due holds at every observation point: settling
methods consume min(remaining, overdue) and hand the unconsumed remainder
back to the allocator, so an installment can never be over-satisfied.

obligationsMetOn is the closure marker: set exactly when
due == paid + waived, cleared unconditionally by any undo.

Installments are created in bulk by the schedule generator, mutated in
place by the allocator, and destroyed only by wholesale schedule
regeneration - never deleted individually.
*/
package charge

import (
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/money"
)

type Installment struct {
	// Number is 1-based and monotonically increasing; canonical ordering
	// is by number, ties broken by due date.
	Number int

	DueDate   calendar.Date
	DueAmount money.Money

	PaidAmount   money.Money
	WaivedAmount money.Money

	// ObligationsMetOn is set when the installment is fully satisfied.
	// Stored as NULL while open; see store/sqlite for the persistence
	// convention.
	ObligationsMetOn *calendar.Date

	// Waived records that at least part of this installment was waived.
	Waived bool
}

func newInstallment(number int, dueDate calendar.Date, dueAmount money.Money) *Installment {
	return &Installment{
		Number:       number,
		DueDate:      dueDate,
		DueAmount:    dueAmount,
		PaidAmount:   dueAmount.Zero(),
		WaivedAmount: dueAmount.Zero(),
	}
}

// Overdue returns due - paid - waived, the amount still owed on this
// installment.
func (in *Installment) Overdue() money.Money {
	return in.DueAmount.Sub(in.PaidAmount).Sub(in.WaivedAmount)
}

func (in *Installment) ObligationsMet() bool { return in.ObligationsMetOn != nil }

func (in *Installment) IsNotFullySettled() bool { return in.ObligationsMetOn == nil }

// pay consumes up to the overdue amount from remaining and returns the
// portion actually applied.
func (in *Installment) pay(asOf calendar.Date, remaining money.Money) money.Money {
	portion := remaining.Min(in.Overdue())
	in.PaidAmount = in.PaidAmount.Add(portion)
	in.checkObligationsMet(asOf)
	return portion
}

// waive consumes up to the overdue amount from remaining and returns the
// portion actually waived.
func (in *Installment) waive(asOf calendar.Date, remaining money.Money) money.Money {
	portion := remaining.Min(in.Overdue())
	in.WaivedAmount = in.WaivedAmount.Add(portion)
	in.Waived = true
	in.checkObligationsMet(asOf)
	return portion
}

// undoPay reverses up to the paid amount and reopens the installment.
// Undo always clears the closure marker, even on a partial reversal.
func (in *Installment) undoPay(remaining money.Money) money.Money {
	portion := remaining.Min(in.PaidAmount)
	in.PaidAmount = in.PaidAmount.Sub(portion).ClampZero()
	in.ObligationsMetOn = nil
	return portion
}

// undoWaive mirrors undoPay for waived amounts.
func (in *Installment) undoWaive(remaining money.Money) money.Money {
	portion := remaining.Min(in.WaivedAmount)
	in.WaivedAmount = in.WaivedAmount.Sub(portion).ClampZero()
	in.ObligationsMetOn = nil
	if in.WaivedAmount.IsZero() {
		in.Waived = false
	}
	return portion
}

func (in *Installment) checkObligationsMet(asOf calendar.Date) {
	if in.Overdue().IsZero() {
		met := asOf
		in.ObligationsMetOn = &met
	}
}

// updateDueAmount propagates a charge amount change onto the installment.
func (in *Installment) updateDueAmount(amount money.Money) {
	in.DueAmount = amount
}
