package charge_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
)

func weeklyFeeCharge(t *testing.T, dueDate, today calendar.Date) *charge.Charge {
	t.Helper()
	interval := 1
	c, err := charge.NewCharge(charge.Spec{
		ID:          "chg-weekly",
		AccountID:   "acct-1",
		Name:        "Weekly Service Fee",
		Currency:    "USD",
		Calculation: charge.CalculationFlat,
		Timing:      charge.TimingWeekly,
		Amount:      decimal.NewFromInt(100),
		DueDate:     &dueDate,
		FeeInterval: &interval,
	}, today)
	require.NoError(t, err)
	return c
}

func TestGenerate_FutureStart_TenInstallments(t *testing.T) {
	// GIVEN: Monthly fee anchored on the 15th, built on Jan 10
	// THEN: Ten installments, Jan 15 through Oct 15, and the first one is
	//       the active due date

	c := monthlyFeeCharge(t)

	require.Len(t, c.Schedule.Installments, 10)
	assert.Equal(t, "2020-01-15", c.Schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2020-10-15", c.Schedule.Installments[9].DueDate.String())
	assert.Equal(t, "2020-01-15", c.DueDate.String())
	assert.True(t, c.AmountOutstanding.Equal(usd(100)), "no backfill for a future start")

	for i, in := range c.Schedule.Installments {
		assert.Equal(t, i+1, in.Number)
		assert.True(t, in.DueAmount.Equal(usd(100)))
		assert.True(t, in.PaidAmount.IsZero())
	}
}

func TestGenerate_PastStart_BackfillsAndWidensWindow(t *testing.T) {
	// GIVEN: Weekly fee anchored five weeks in the past
	// THEN: The elapsed periods are generated as backfill (owed, folded
	//       into outstanding) and the window still yields ten future
	//       installments

	start := calendar.NewDate(2020, time.January, 1) // Wednesday
	today := calendar.NewDate(2020, time.February, 5)
	c := weeklyFeeCharge(t, start, today)

	gen := charge.NewScheduleGenerator(nil, nil)
	require.NoError(t, gen.Generate(c, c.RecurrenceRule(), today))

	require.Len(t, c.Schedule.Installments, 15)
	assert.Equal(t, "2020-01-01", c.Schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2020-04-08", c.Schedule.Installments[14].DueDate.String())

	// The first installment not before today is the active due date.
	assert.Equal(t, "2020-02-05", c.DueDate.String())
	assert.Equal(t, 10, c.Schedule.FutureCount(today))

	// Five past cycles fold into outstanding on top of the current one.
	assert.True(t, c.AmountOutstanding.Equal(usd(600)))
}

func TestGenerate_Annual_LeapAnchor(t *testing.T) {
	today := calendar.NewDate(2020, time.January, 10)
	c, err := charge.NewCharge(charge.Spec{
		ID:            "chg-annual",
		AccountID:     "acct-1",
		Name:          "Annual Maintenance Fee",
		Currency:      "USD",
		Calculation:   charge.CalculationFlat,
		Timing:        charge.TimingAnnual,
		Amount:        decimal.NewFromInt(100),
		FeeOnMonthDay: &calendar.MonthDay{Month: time.February, Day: 29},
	}, today)
	require.NoError(t, err)

	gen := charge.NewScheduleGenerator(nil, nil)
	require.NoError(t, gen.Generate(c, c.RecurrenceRule(), today))

	require.Len(t, c.Schedule.Installments, 10)
	assert.Equal(t, "2020-02-29", c.Schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2021-02-28", c.Schedule.Installments[1].DueDate.String())
	assert.Equal(t, "2024-02-29", c.Schedule.Installments[4].DueDate.String())
}

func TestGenerate_CalendarInheritedFollowsMeetingOccurrences(t *testing.T) {
	// GIVEN: A weekly fee due Wednesday Jan 1, tied to a group that meets
	//        on Mondays
	// THEN: The schedule starts on the meeting calendar's next occurrence
	//       after the charge's own due date, not on the due date itself

	today := calendar.NewDate(2020, time.January, 1)
	due := calendar.NewDate(2020, time.January, 1) // Wednesday
	interval := 1
	c, err := charge.NewCharge(charge.Spec{
		ID:                "chg-weekly",
		AccountID:         "acct-1",
		Name:              "Weekly Meeting Fee",
		Currency:          "USD",
		Calculation:       charge.CalculationFlat,
		Timing:            charge.TimingWeekly,
		Amount:            decimal.NewFromInt(100),
		DueDate:           &due,
		FeeInterval:       &interval,
		CalendarInherited: true,
	}, today)
	require.NoError(t, err)

	meeting := calendar.Rule{
		Frequency: calendar.Weekly,
		Interval:  1,
		Start:     calendar.NewDate(2019, time.December, 30), // Monday
		Weekday:   1,
	}

	gen := charge.NewScheduleGenerator(nil, nil)
	require.NoError(t, gen.Generate(c, meeting, today))

	require.Len(t, c.Schedule.Installments, 10)
	assert.Equal(t, "2020-01-06", c.Schedule.Installments[0].DueDate.String(), "first Monday after Jan 1")
	assert.Equal(t, "2020-03-09", c.Schedule.Installments[9].DueDate.String())
	assert.Equal(t, "2020-01-06", c.DueDate.String())
	assert.True(t, c.AmountOutstanding.Equal(usd(100)), "no backfill for a future start")
}

func TestGenerate_NonRecurringRejected(t *testing.T) {
	c := specifiedDueDateCharge(t)
	gen := charge.NewScheduleGenerator(nil, nil)
	err := gen.Generate(c, calendar.Rule{Frequency: calendar.Monthly}, calendar.Today())
	assert.ErrorIs(t, err, charge.ErrNotRecurring)
}

func TestGenerate_WithHolidayAdjustment(t *testing.T) {
	// GIVEN: A holiday over Feb 14-16 rescheduling to Feb 17, and
	//        weekends as non-working days
	// THEN: The February installment lands on the reschedule date and
	//       weekend due dates shift to the next working day

	c := monthlyFeeCharge(t)
	adjuster := &calendar.HolidayAdjuster{
		Holidays: []calendar.Holiday{{
			Name:         "mid-february closure",
			From:         calendar.NewDate(2020, time.February, 14),
			To:           calendar.NewDate(2020, time.February, 16),
			RescheduleTo: calendar.NewDate(2020, time.February, 17),
		}},
		WorkingDays: calendar.AllWeekdays(),
	}
	gen := charge.NewScheduleGenerator(nil, adjuster)
	require.NoError(t, gen.Generate(c, c.RecurrenceRule(), calendar.NewDate(2020, time.January, 10)))

	assert.Equal(t, "2020-01-15", c.Schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2020-02-17", c.Schedule.Installments[1].DueDate.String())
	// Mar 15 2020 is a Sunday.
	assert.Equal(t, "2020-03-16", c.Schedule.Installments[2].DueDate.String())
}

func TestExtend_AppendsAfterLast(t *testing.T) {
	c := monthlyFeeCharge(t)
	gen := charge.NewScheduleGenerator(nil, nil)

	require.NoError(t, gen.Extend(c, c.RecurrenceRule(), 3))

	require.Len(t, c.Schedule.Installments, 13)
	assert.Equal(t, 11, c.Schedule.Installments[10].Number)
	assert.Equal(t, "2020-11-15", c.Schedule.Installments[10].DueDate.String())
	assert.Equal(t, "2021-01-15", c.Schedule.Installments[12].DueDate.String())
}

func TestExtend_EmptyScheduleRejected(t *testing.T) {
	c := monthlyFeeCharge(t)
	c.Schedule = charge.Schedule{}

	gen := charge.NewScheduleGenerator(nil, nil)
	err := gen.Extend(c, c.RecurrenceRule(), 3)
	assert.ErrorIs(t, err, charge.ErrScheduleAnchorMissing)
}

func TestRegenerate_RewritesFromChangeDate(t *testing.T) {
	// GIVEN: A generated monthly schedule on the 15th and a meeting
	//        calendar change effective Apr 1 moving the day to the 20th
	// THEN: Installments before the change date keep their dates; later
	//       ones follow the new rule

	c := monthlyFeeCharge(t)
	today := calendar.NewDate(2020, time.January, 10)
	gen := charge.NewScheduleGenerator(nil, nil)

	newRule := calendar.Rule{
		Frequency:  calendar.Monthly,
		Interval:   1,
		Start:      calendar.NewDate(2020, time.April, 1),
		DayOfMonth: 20,
	}
	require.NoError(t, gen.Regenerate(c, newRule, today))

	require.Len(t, c.Schedule.Installments, 10)
	assert.Equal(t, "2020-01-15", c.Schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2020-03-15", c.Schedule.Installments[2].DueDate.String())
	assert.Equal(t, "2020-04-20", c.Schedule.Installments[3].DueDate.String())
	assert.Equal(t, "2020-05-20", c.Schedule.Installments[4].DueDate.String())
	assert.Equal(t, "2020-10-20", c.Schedule.Installments[9].DueDate.String())

	assert.Equal(t, "2020-01-15", c.DueDate.String())
	assert.True(t, c.AmountOutstanding.Equal(usd(100)))
}

func TestRegenerate_EmptyScheduleGenerates(t *testing.T) {
	c := monthlyFeeCharge(t)
	c.Schedule = charge.Schedule{}
	today := calendar.NewDate(2020, time.January, 10)

	gen := charge.NewScheduleGenerator(nil, nil)
	require.NoError(t, gen.Regenerate(c, c.RecurrenceRule(), today))
	assert.Len(t, c.Schedule.Installments, 10)
}

func TestRollForwardDueDate_AccumulatesMissedCycles(t *testing.T) {
	// GIVEN: A generated schedule whose active due date (Jan 15) has
	//        elapsed unpaid
	// WHEN: Rolling forward as of Mar 20
	// THEN: The due date lands on Apr 15 and each rolled period stays
	//       owed in outstanding

	c := monthlyFeeCharge(t)
	moved := c.RollForwardDueDate(calendar.NewDate(2020, time.March, 20))

	assert.True(t, moved)
	assert.Equal(t, "2020-04-15", c.DueDate.String())
	// Jan + Feb + Mar cycles rolled past, plus the active one.
	assert.True(t, c.AmountOutstanding.Equal(usd(400)))
	assert.False(t, c.IsPaid())

	// Idempotent once synchronized.
	assert.False(t, c.RollForwardDueDate(calendar.NewDate(2020, time.March, 20)))
	assert.True(t, c.AmountOutstanding.Equal(usd(400)))
}

func TestRollForwardDueDate_StopsAtScheduleEnd(t *testing.T) {
	c := monthlyFeeCharge(t)
	moved := c.RollForwardDueDate(calendar.NewDate(2022, time.January, 1))

	assert.True(t, moved)
	// Nine advances exhaust the ten-installment schedule.
	assert.Equal(t, "2020-10-15", c.DueDate.String())
	assert.True(t, c.AmountOutstanding.Equal(usd(1000)))
}
