/*
Package calendar provides the date arithmetic underneath charge scheduling.

PURPOSE:
  Charges come due on calendar dates, not instants. This package owns the
  day-granularity Date type, clamped month arithmetic (Jan 31 + 1 month is
  Feb 28, never Mar 3), ISO weekday handling, recurrence rule resolution,
  and holiday adjustment.

KEY CONCEPTS:
  - Date: A day-granularity point in time (UTC, midnight-normalized)
  - MonthDay: A recurring month/day anchor (e.g., "Feb 29" for annual fees)
  - Rule/Resolver: Recurrence rules and the occurrence-date resolver
  - Adjuster: Holiday/working-day due-date adjustment

DESIGN PRINCIPLES:
  1. Clamping, never overflow: month arithmetic pins the day-of-month to
     the target month's length.
  2. Pure functions: no clocks hidden inside arithmetic; "today" is always
     an explicit argument in the charge engine.

SEE ALSO:
  - recurrence.go: Rule and Resolver
  - holiday.go: Adjuster implementations
*/
package calendar

import "time"

// =============================================================================
// DATE - Day-granularity calendar date
// =============================================================================

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return FromTime(time.Now().UTC())
}

// ParseDate parses the ISO date form produced by String (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return FromTime(t), nil
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d.t.IsZero() }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Time() time.Time       { return d.t }

// ISOWeekday returns the ISO 8601 day of the week: Monday=1 .. Sunday=7.
func (d Date) ISOWeekday() int {
	wd := int(d.t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// AddMonthsClamped advances n months keeping day-of-month, clamped to the
// target month's length. time.AddDate would overflow Jan 31 into March.
func (d Date) AddMonthsClamped(n int) Date {
	return monthShift(d.Year(), d.Month(), n, d.Day())
}

// WithDayClamped returns the date with day-of-month set to
// min(day, daysInMonth).
func (d Date) WithDayClamped(day int) Date {
	return monthShift(d.Year(), d.Month(), 0, day)
}

// WithISOWeekday moves the date within its Monday-based week to the given
// ISO weekday.
func (d Date) WithISOWeekday(iso int) Date {
	return d.AddDays(iso - d.ISOWeekday())
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthShift(year int, month time.Month, addMonths, day int) Date {
	// Normalize through the first of the month so the shift itself can
	// never overflow, then clamp the day.
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, addMonths, 0)
	max := DaysInMonth(first.Year(), first.Month())
	if day > max {
		day = max
	}
	return NewDate(first.Year(), first.Month(), day)
}

// MonthsBetween returns the number of whole months from a to b (0 when b
// precedes a).
func MonthsBetween(a, b Date) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// WeeksBetween returns the number of whole weeks from a to b.
func WeeksBetween(a, b Date) int {
	if b.Before(a) {
		return 0
	}
	return int(b.t.Sub(a.t).Hours() / 24 / 7)
}

// YearsBetween returns the number of whole years from a to b.
func YearsBetween(a, b Date) int {
	if b.Before(a) {
		return 0
	}
	years := b.Year() - a.Year()
	if b.Month() < a.Month() || (b.Month() == a.Month() && b.Day() < a.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// =============================================================================
// MONTH DAY - Recurring month/day anchor
// =============================================================================

// MonthDay anchors an annual or monthly fee: "on the 15th", "on Feb 29".
type MonthDay struct {
	Month time.Month
	Day   int
}

// In resolves the anchor within a year, clamping Feb 29 to Feb 28 on
// non-leap years.
func (md MonthDay) In(year int) Date {
	return monthShift(year, md.Month, 0, md.Day)
}
