/*
duedate.go - Next/previous due date arithmetic for recurring charges

Pure functions over a charge's timing configuration:

  Annual:  plus one year, month forced to feeOnMonth, day clamped to the
           target month's length.
  Monthly: plus feeInterval months, same day clamping.
  Weekly:  plus feeInterval*7 days, corrected to the configured ISO
           weekday. The correction is a no-op in the common case (adding
           whole weeks preserves the weekday) but protects against drift
           from calendar-inherited recurrences.

Clamping policy: never overflow into the next month. Feb 29 on a non-leap
year lands on Feb 28.
*/
package charge

import (
	"time"

	"github.com/warp/charge-engine/calendar"
)

// DueDateConfig is the slice of charge configuration that due date
// arithmetic needs.
type DueDateConfig struct {
	Timing      TimingType
	FeeOnMonth  time.Month // annual anchor month
	FeeOnDay    int        // day of month (annual/monthly) or ISO weekday (weekly)
	FeeInterval int        // repeat every N periods (monthly/weekly; annual is always 1)
}

// NextDueDate returns the due date one period after date.
func NextDueDate(date calendar.Date, cfg DueDateConfig) (calendar.Date, error) {
	if err := cfg.validate(); err != nil {
		return calendar.Date{}, err
	}
	switch cfg.Timing {
	case TimingAnnual:
		return calendar.NewDate(date.Year()+1, cfg.FeeOnMonth, 1).WithDayClamped(cfg.FeeOnDay), nil
	case TimingMonthly:
		return date.AddMonthsClamped(cfg.FeeInterval).WithDayClamped(cfg.FeeOnDay), nil
	case TimingWeekly:
		return date.AddDays(7 * cfg.FeeInterval).WithISOWeekday(cfg.FeeOnDay), nil
	default:
		return calendar.Date{}, ErrNotRecurring
	}
}

// PreviousDueDate returns the due date one period before date.
func PreviousDueDate(date calendar.Date, cfg DueDateConfig) (calendar.Date, error) {
	if err := cfg.validate(); err != nil {
		return calendar.Date{}, err
	}
	switch cfg.Timing {
	case TimingAnnual:
		return calendar.NewDate(date.Year()-1, cfg.FeeOnMonth, 1).WithDayClamped(cfg.FeeOnDay), nil
	case TimingMonthly:
		return date.AddMonthsClamped(-cfg.FeeInterval).WithDayClamped(cfg.FeeOnDay), nil
	case TimingWeekly:
		return date.AddDays(-7 * cfg.FeeInterval).WithISOWeekday(cfg.FeeOnDay), nil
	default:
		return calendar.Date{}, ErrNotRecurring
	}
}

func (cfg DueDateConfig) validate() error {
	switch cfg.Timing {
	case TimingAnnual:
		if cfg.FeeOnMonth == 0 || cfg.FeeOnDay == 0 {
			return ErrScheduleAnchorMissing
		}
	case TimingMonthly:
		if cfg.FeeOnDay == 0 {
			return ErrScheduleAnchorMissing
		}
		if cfg.FeeInterval < 1 {
			return ErrInvalidFeeInterval
		}
	case TimingWeekly:
		if cfg.FeeOnDay < 1 || cfg.FeeOnDay > 7 {
			return ErrScheduleAnchorMissing
		}
		if cfg.FeeInterval < 1 {
			return ErrInvalidFeeInterval
		}
	}
	return nil
}
