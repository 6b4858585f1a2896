package charge_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
	"github.com/warp/charge-engine/money"
)

func usd(v float64) money.Money { return money.NewFromFloat("USD", v) }

// monthlyFeeCharge builds a monthly flat fee of 100 due on the 15th with
// a generated schedule, as of Jan 10 2020. First due date: Jan 15 2020.
func monthlyFeeCharge(t *testing.T) *charge.Charge {
	t.Helper()
	today := calendar.NewDate(2020, time.January, 10)
	interval := 1

	c, err := charge.NewCharge(charge.Spec{
		ID:            "chg-monthly",
		AccountID:     "acct-1",
		Name:          "Monthly Account Fee",
		Currency:      "USD",
		Calculation:   charge.CalculationFlat,
		Timing:        charge.TimingMonthly,
		Amount:        decimal.NewFromInt(100),
		FeeOnMonthDay: &calendar.MonthDay{Month: time.January, Day: 15},
		FeeInterval:   &interval,
	}, today)
	require.NoError(t, err)

	gen := charge.NewScheduleGenerator(nil, nil)
	require.NoError(t, gen.Generate(c, c.RecurrenceRule(), today))
	require.Equal(t, "2020-01-15", c.DueDate.String())
	return c
}

// assertInstallmentConservation checks due - paid - waived == overdue and
// paid + waived <= due for every installment.
func assertInstallmentConservation(t *testing.T, c *charge.Charge) {
	t.Helper()
	for _, in := range c.Schedule.Installments {
		accounted := in.PaidAmount.Add(in.WaivedAmount)
		assert.True(t, in.DueAmount.GreaterThanOrEqual(accounted),
			"installment %d over-satisfied: due %s, accounted %s", in.Number, in.DueAmount, accounted)
		assert.True(t, in.DueAmount.Sub(accounted).Equal(in.Overdue()),
			"installment %d overdue mismatch", in.Number)
	}
}

// =============================================================================
// SCENARIO TESTS - Partial payment, rollover, undo
// =============================================================================

func TestPay_PartialPayment(t *testing.T) {
	// GIVEN: Monthly flat fee, amount 100, first due 2020-01-15
	// WHEN: Paying 60 on 2020-01-10
	// THEN: paid=60, outstanding=40, installment open, due date unchanged

	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}

	applied, err := allocator.Pay(c, usd(60), calendar.NewDate(2020, time.January, 10))
	require.NoError(t, err)

	assert.True(t, applied.Equal(usd(60)))
	assert.True(t, c.AmountPaid.Equal(usd(60)))
	assert.True(t, c.AmountOutstanding.Equal(usd(40)))
	assert.False(t, c.Schedule.Installments[0].ObligationsMet())
	assert.Equal(t, "2020-01-15", c.DueDate.String())
	assert.False(t, c.IsPaid())
	assert.Equal(t, charge.StatusPartiallySettled, c.Status())
	assertInstallmentConservation(t, c)
}

func TestPay_FullSettlementRollsOver(t *testing.T) {
	// GIVEN: The partially paid charge from the scenario above
	// WHEN: Paying the remaining 40
	// THEN: The installment closes and the due date rolls to 2020-02-15
	//       with the cycle fields reset

	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}
	asOf := calendar.NewDate(2020, time.January, 12)

	_, err := allocator.Pay(c, usd(60), asOf)
	require.NoError(t, err)
	applied, err := allocator.Pay(c, usd(40), asOf)
	require.NoError(t, err)

	assert.True(t, applied.Equal(usd(40)))
	assert.True(t, c.AmountPaid.Equal(usd(100)))

	first := c.Schedule.Installments[0]
	require.True(t, first.ObligationsMet())
	assert.True(t, asOf.Equal(*first.ObligationsMetOn))

	assert.Equal(t, "2020-02-15", c.DueDate.String())
	assert.True(t, c.AmountOutstanding.Equal(usd(100)), "outstanding resets for the new cycle")
	assert.False(t, c.IsPaid())
	assert.False(t, c.IsWaived())
	assertInstallmentConservation(t, c)
}

func TestUndoPay_ReopensInstallment(t *testing.T) {
	// GIVEN: The fully settled first cycle (due date now 2020-02-15)
	// WHEN: Undoing the last 40 payment
	// THEN: The installment reopens and outstanding is recomputed from
	//       the schedule

	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}
	asOf := calendar.NewDate(2020, time.January, 12)

	_, err := allocator.Pay(c, usd(100), asOf)
	require.NoError(t, err)
	require.Equal(t, "2020-02-15", c.DueDate.String())

	undone, err := allocator.UndoPay(c, usd(40))
	require.NoError(t, err)

	assert.True(t, undone.Equal(usd(40)))
	assert.True(t, c.AmountPaid.Equal(usd(60)))

	first := c.Schedule.Installments[0]
	assert.Nil(t, first.ObligationsMetOn, "undo always reopens the installment")
	assert.True(t, first.Overdue().Equal(usd(40)))

	// Outstanding now covers the reopened January portion plus the
	// active February installment.
	assert.True(t, c.AmountOutstanding.Equal(usd(140)))
	assert.False(t, c.IsPaid())
	assertInstallmentConservation(t, c)
}

func TestUndoPay_IsLeftInverseOfPay(t *testing.T) {
	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}

	paidBefore := c.AmountPaid
	outstandingBefore := c.AmountOutstanding

	applied, err := allocator.Pay(c, usd(60), calendar.NewDate(2020, time.January, 10))
	require.NoError(t, err)
	undone, err := allocator.UndoPay(c, applied)
	require.NoError(t, err)

	assert.True(t, undone.Equal(applied))
	assert.True(t, c.AmountPaid.Equal(paidBefore))
	assert.True(t, c.AmountOutstanding.Equal(outstandingBefore))
	assertInstallmentConservation(t, c)
}

func TestPay_StopsAtActiveDueDate(t *testing.T) {
	// Future installments are never pre-paid implicitly: anything beyond
	// the current cycle's overdue amount is handed back.

	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}

	applied, err := allocator.Pay(c, usd(250), calendar.NewDate(2020, time.January, 10))
	require.NoError(t, err)

	assert.True(t, applied.Equal(usd(100)), "only the active installment absorbs the payment")
	assert.True(t, c.AmountPaid.Equal(usd(100)))

	// Rolled to February; the February installment is untouched.
	assert.Equal(t, "2020-02-15", c.DueDate.String())
	assert.True(t, c.Schedule.Installments[1].PaidAmount.IsZero())
	assertInstallmentConservation(t, c)
}

func TestWaive_AndUndoWaive(t *testing.T) {
	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}
	asOf := calendar.NewDate(2020, time.January, 14)

	applied, err := allocator.Waive(c, usd(100), asOf)
	require.NoError(t, err)
	assert.True(t, applied.Equal(usd(100)))

	first := c.Schedule.Installments[0]
	assert.True(t, first.Waived)
	assert.True(t, first.ObligationsMet())
	assert.Equal(t, "2020-02-15", c.DueDate.String())

	undone, err := allocator.UndoWaive(c, usd(100))
	require.NoError(t, err)
	assert.True(t, undone.Equal(usd(100)))
	assert.False(t, first.Waived)
	assert.Nil(t, first.ObligationsMetOn)
	assert.True(t, c.AmountWaived.IsZero())
	assertInstallmentConservation(t, c)
}

func TestUndoPay_ClampsAtZero(t *testing.T) {
	// Reversing more than was ever paid is an invariant guard, not an
	// error: amounts clamp at zero.

	c := monthlyFeeCharge(t)
	allocator := charge.SettlementAllocator{}

	_, err := allocator.Pay(c, usd(30), calendar.NewDate(2020, time.January, 10))
	require.NoError(t, err)

	undone, err := allocator.UndoPay(c, usd(500))
	require.NoError(t, err)

	assert.True(t, undone.Equal(usd(30)))
	assert.True(t, c.AmountPaid.IsZero())
	assert.False(t, c.AmountOutstanding.IsNegative())
	assertInstallmentConservation(t, c)
}

// =============================================================================
// NON-RECURRING CHARGES
// =============================================================================

func specifiedDueDateCharge(t *testing.T) *charge.Charge {
	t.Helper()
	due := calendar.NewDate(2020, time.June, 1)
	c, err := charge.NewCharge(charge.Spec{
		ID:          "chg-oneoff",
		AccountID:   "acct-1",
		Name:        "Account Opening Fee",
		Currency:    "USD",
		Calculation: charge.CalculationFlat,
		Timing:      charge.TimingSpecifiedDueDate,
		Amount:      decimal.NewFromInt(50),
		DueDate:     &due,
	}, calendar.NewDate(2020, time.January, 10))
	require.NoError(t, err)
	return c
}

func assertAggregateIdentity(t *testing.T, c *charge.Charge) {
	t.Helper()
	accounted := c.AmountPaid.Add(c.AmountWaived).Add(c.AmountWrittenOff).Add(c.AmountOutstanding)
	assert.True(t, c.Amount.Equal(accounted),
		"amount %s != paid+waived+writtenOff+outstanding %s", c.Amount, accounted)
}

func TestPay_NonRecurring_AppliesDirectly(t *testing.T) {
	c := specifiedDueDateCharge(t)
	allocator := charge.SettlementAllocator{}
	asOf := calendar.NewDate(2020, time.May, 20)

	applied, err := allocator.Pay(c, usd(20), asOf)
	require.NoError(t, err)
	assert.True(t, applied.Equal(usd(20)))
	assert.Equal(t, charge.StatusPartiallySettled, c.Status())
	assertAggregateIdentity(t, c)

	// Overpayment consumes only what is outstanding.
	applied, err = allocator.Pay(c, usd(80), asOf)
	require.NoError(t, err)
	assert.True(t, applied.Equal(usd(30)))
	assert.True(t, c.IsPaid())
	assert.Equal(t, charge.StatusClosed, c.Status())
	assertAggregateIdentity(t, c)
}

func TestUndoPay_NonRecurring(t *testing.T) {
	c := specifiedDueDateCharge(t)
	allocator := charge.SettlementAllocator{}
	asOf := calendar.NewDate(2020, time.May, 20)

	_, err := allocator.Pay(c, usd(50), asOf)
	require.NoError(t, err)
	require.True(t, c.IsPaid())

	undone, err := allocator.UndoPay(c, usd(50))
	require.NoError(t, err)
	assert.True(t, undone.Equal(usd(50)))
	assert.False(t, c.IsPaid())
	assert.True(t, c.AmountOutstanding.Equal(usd(50)))
	assertAggregateIdentity(t, c)
}

func TestSettlement_InactiveChargeRejected(t *testing.T) {
	c := specifiedDueDateCharge(t)
	c.Inactivate(calendar.NewDate(2020, time.March, 1))

	allocator := charge.SettlementAllocator{}
	_, err := allocator.Pay(c, usd(10), calendar.NewDate(2020, time.March, 2))
	assert.ErrorIs(t, err, charge.ErrChargeInactive)

	_, err = allocator.UndoPay(c, usd(10))
	assert.ErrorIs(t, err, charge.ErrChargeInactive)
}
