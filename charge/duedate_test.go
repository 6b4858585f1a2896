package charge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
)

func TestNextDueDate_Annual_LeapDayClampsToFeb28(t *testing.T) {
	// GIVEN: Annual fee anchored on Feb 29
	// WHEN: The next target year is not a leap year
	// THEN: The due date clamps to Feb 28, never overflowing into March

	cfg := charge.DueDateConfig{
		Timing:     charge.TimingAnnual,
		FeeOnMonth: time.February,
		FeeOnDay:   29,
	}

	next, err := charge.NextDueDate(calendar.NewDate(2020, time.February, 29), cfg)
	require.NoError(t, err)
	assert.Equal(t, "2021-02-28", next.String())

	// And back onto Feb 29 for the next leap year.
	next, err = charge.NextDueDate(calendar.NewDate(2023, time.February, 28), cfg)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", next.String())
}

func TestNextDueDate_Monthly_DayOfMonthClamping(t *testing.T) {
	cfg := charge.DueDateConfig{
		Timing:      charge.TimingMonthly,
		FeeOnDay:    31,
		FeeInterval: 1,
	}

	next, err := charge.NextDueDate(calendar.NewDate(2021, time.January, 31), cfg)
	require.NoError(t, err)
	assert.Equal(t, "2021-02-28", next.String())

	// The configured anchor day reasserts itself once the month allows.
	next, err = charge.NextDueDate(next, cfg)
	require.NoError(t, err)
	assert.Equal(t, "2021-03-31", next.String())
}

func TestNextDueDate_Monthly_Interval(t *testing.T) {
	cfg := charge.DueDateConfig{
		Timing:      charge.TimingMonthly,
		FeeOnDay:    15,
		FeeInterval: 3,
	}
	next, err := charge.NextDueDate(calendar.NewDate(2020, time.January, 15), cfg)
	require.NoError(t, err)
	assert.Equal(t, "2020-04-15", next.String())
}

func TestNextDueDate_Weekly_PreservesWeekday(t *testing.T) {
	// GIVEN: Weekly fee on Wednesday (ISO 3), every 2 weeks
	// WHEN: Advancing from a Wednesday due date
	// THEN: The result is 14 days later and still a Wednesday

	cfg := charge.DueDateConfig{
		Timing:      charge.TimingWeekly,
		FeeOnDay:    3,
		FeeInterval: 2,
	}
	wednesday := calendar.NewDate(2020, time.January, 15)
	require.Equal(t, time.Wednesday, wednesday.Weekday())

	next, err := charge.NextDueDate(wednesday, cfg)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-29", next.String())
	assert.Equal(t, time.Wednesday, next.Weekday())
}

func TestNextDueDate_Weekly_CorrectsDriftedWeekday(t *testing.T) {
	// A calendar-inherited date may sit off the configured weekday; the
	// correction pulls it back within the target week.
	cfg := charge.DueDateConfig{
		Timing:      charge.TimingWeekly,
		FeeOnDay:    3,
		FeeInterval: 1,
	}
	friday := calendar.NewDate(2020, time.January, 17)

	next, err := charge.NextDueDate(friday, cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.Equal(t, "2020-01-22", next.String())
}

func TestPreviousDueDate_MirrorsNext(t *testing.T) {
	cfg := charge.DueDateConfig{
		Timing:      charge.TimingMonthly,
		FeeOnDay:    15,
		FeeInterval: 1,
	}
	d := calendar.NewDate(2020, time.March, 15)

	prev, err := charge.PreviousDueDate(d, cfg)
	require.NoError(t, err)
	assert.Equal(t, "2020-02-15", prev.String())

	next, err := charge.NextDueDate(prev, cfg)
	require.NoError(t, err)
	assert.True(t, next.Equal(d))
}

func TestNextDueDate_ConfigValidation(t *testing.T) {
	_, err := charge.NextDueDate(calendar.NewDate(2020, time.January, 1), charge.DueDateConfig{
		Timing: charge.TimingAnnual,
	})
	assert.ErrorIs(t, err, charge.ErrScheduleAnchorMissing)

	_, err = charge.NextDueDate(calendar.NewDate(2020, time.January, 1), charge.DueDateConfig{
		Timing:   charge.TimingMonthly,
		FeeOnDay: 15,
	})
	assert.ErrorIs(t, err, charge.ErrInvalidFeeInterval)

	_, err = charge.NextDueDate(calendar.NewDate(2020, time.January, 1), charge.DueDateConfig{
		Timing: charge.TimingSpecifiedDueDate,
	})
	assert.ErrorIs(t, err, charge.ErrNotRecurring)
}
