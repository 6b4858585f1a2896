package calendar

import "time"

// =============================================================================
// RECURRENCE RULE - Frequency + interval + anchor
// =============================================================================

type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Rule describes a recurrence: repeat every Interval periods of Frequency,
// anchored on a weekday (weekly) or month-day (monthly/yearly). Zero-value
// anchor fields are derived from Start.
type Rule struct {
	Frequency Frequency
	Interval  int
	Start     Date

	// Weekly anchor: ISO weekday (Monday=1 .. Sunday=7).
	Weekday int

	// Monthly/yearly anchor: day of month, clamped to month length.
	DayOfMonth int

	// Yearly anchor month.
	MonthOfYear time.Month
}

// normalized fills derivable anchors and coerces invalid intervals to 1.
// Calendar-inherited rules occasionally arrive with interval -1 ("not
// set"), which means every period.
func (r Rule) normalized() Rule {
	if r.Interval < 1 {
		r.Interval = 1
	}
	if r.Weekday == 0 {
		r.Weekday = r.Start.ISOWeekday()
	}
	if r.DayOfMonth == 0 {
		r.DayOfMonth = r.Start.Day()
	}
	if r.MonthOfYear == 0 {
		r.MonthOfYear = r.Start.Month()
	}
	return r
}

// =============================================================================
// RESOLVER - Turns a rule into concrete occurrence dates
// =============================================================================

// Resolver produces the concrete occurrence dates of a recurrence rule.
// It is holiday-unaware; callers post-process dates with an Adjuster.
type Resolver interface {
	// Next returns the first occurrence strictly after from.
	Next(rule Rule, from Date) Date

	// Between returns all occurrences in (from, until], oldest first.
	Between(rule Rule, from, until Date) []Date
}

// StandardResolver implements plain calendar recurrence with month-length
// clamping and weekday correction.
type StandardResolver struct{}

var _ Resolver = StandardResolver{}

func (StandardResolver) Next(rule Rule, from Date) Date {
	r := rule.normalized()
	switch r.Frequency {
	case Weekly:
		// Plus N weeks preserves the weekday by construction; the
		// correction only matters when from drifted off the anchor.
		return from.AddDays(7 * r.Interval).WithISOWeekday(r.Weekday)
	case Monthly:
		return monthShift(from.Year(), from.Month(), r.Interval, r.DayOfMonth)
	case Yearly:
		return monthShift(from.Year()+r.Interval, r.MonthOfYear, 0, r.DayOfMonth)
	default:
		return from
	}
}

func (sr StandardResolver) Between(rule Rule, from, until Date) []Date {
	var dates []Date
	d := sr.Next(rule, from)
	for d.BeforeOrEqual(until) {
		dates = append(dates, d)
		d = sr.Next(rule, d)
	}
	return dates
}
