/*
schedule.go - Installment schedule generation

The generator turns a charge's recurrence rule into a concrete schedule
of installments, with three entry points:

  Generate:   initial schedule for a newly recurring charge. Targets a
              minimum of ten future installments; when the start date is
              already in the past the window widens by the elapsed
              periods so the effective horizon stays "today + 10
              periods".
  Regenerate: rewrite of due dates after the owning calendar's recurrence
              changes; only installments due on or after the meeting
              change date move.
  Extend:     append installments when the batch job finds the remaining
              lookahead below its floor.

While generating, the first installment due on or after today becomes the
charge's active due date. Installments before that point are backfill:
owed (folded into outstanding) but never exposed as the next bill.
*/
package charge

import (
	"sort"

	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/money"
)

// minFutureInstallments is the generation lookahead floor.
const minFutureInstallments = 10

// =============================================================================
// SCHEDULE - Ordered sequence of installments
// =============================================================================

type Schedule struct {
	Installments []*Installment
}

func (s *Schedule) sort() {
	sort.SliceStable(s.Installments, func(i, j int) bool {
		a, b := s.Installments[i], s.Installments[j]
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.DueDate.Before(b.DueDate)
	})
}

func (s *Schedule) indexOfDueDate(d calendar.Date) int {
	for i, in := range s.Installments {
		if in.DueDate.Equal(d) {
			return i
		}
	}
	return -1
}

func (s *Schedule) Last() *Installment {
	if len(s.Installments) == 0 {
		return nil
	}
	return s.Installments[len(s.Installments)-1]
}

// FutureCount returns the number of installments due on or after asOf.
func (s *Schedule) FutureCount(asOf calendar.Date) int {
	n := 0
	for _, in := range s.Installments {
		if in.DueDate.AfterOrEqual(asOf) {
			n++
		}
	}
	return n
}

// TotalOverdue sums the overdue amounts of all installments.
func (s *Schedule) TotalOverdue(currency money.Currency) money.Money {
	total := money.Zero(currency)
	for _, in := range s.Installments {
		total = total.Add(in.Overdue())
	}
	return total
}

// =============================================================================
// SCHEDULE GENERATOR
// =============================================================================

type ScheduleGenerator struct {
	Resolver calendar.Resolver
	Adjuster calendar.Adjuster
}

// NewScheduleGenerator wires a generator; a nil adjuster disables holiday
// handling.
func NewScheduleGenerator(resolver calendar.Resolver, adjuster calendar.Adjuster) *ScheduleGenerator {
	if resolver == nil {
		resolver = calendar.StandardResolver{}
	}
	if adjuster == nil {
		adjuster = calendar.NoAdjustment{}
	}
	return &ScheduleGenerator{Resolver: resolver, Adjuster: adjuster}
}

// Generate builds the initial installment schedule for a recurring
// charge and sets its active due date. Any existing schedule is
// discarded wholesale.
func (g *ScheduleGenerator) Generate(c *Charge, rule calendar.Rule, today calendar.Date) error {
	if err := g.validateAnchors(c); err != nil {
		return err
	}

	start := g.scheduleStart(c, rule, today)
	till := generationWindowEnd(rule, start, today)

	c.Schedule = Schedule{}
	dueDateSet := false
	number := 1

	for d := start; d.Before(till); d = g.Resolver.Next(rule, d) {
		in := newInstallment(number, g.Adjuster.Adjust(d), c.Amount)
		c.Schedule.Installments = append(c.Schedule.Installments, in)
		dueDateSet = g.updateChargeFields(c, in.DueDate, today, dueDateSet)
		number++
	}
	c.Schedule.sort()
	return nil
}

// Regenerate rewrites the schedule after the owning calendar's recurrence
// changed. Installments due before the meeting change date (rule.Start)
// keep their dates; later ones follow the new rule from the previous
// installment's original date.
func (g *ScheduleGenerator) Regenerate(c *Charge, rule calendar.Rule, today calendar.Date) error {
	if err := g.validateAnchors(c); err != nil {
		return err
	}
	if len(c.Schedule.Installments) == 0 {
		return g.Generate(c, rule, today)
	}

	// Reset for recalculation; backfill re-accumulates below.
	c.AmountOutstanding = c.Amount

	last := c.Schedule.Installments[0].DueDate
	dueDateSet := false
	for _, in := range c.Schedule.Installments {
		original := in.DueDate
		if original.AfterOrEqual(rule.Start) {
			in.DueDate = g.Adjuster.Adjust(g.Resolver.Next(rule, last))
		}
		dueDateSet = g.updateChargeFields(c, in.DueDate, today, dueDateSet)
		last = original
	}
	c.Schedule.sort()
	return nil
}

// Extend appends count installments after the last scheduled one.
func (g *ScheduleGenerator) Extend(c *Charge, rule calendar.Rule, count int) error {
	last := c.Schedule.Last()
	if last == nil {
		return ErrScheduleAnchorMissing
	}
	number := last.Number
	d := last.DueDate
	for i := 0; i < count; i++ {
		d = g.Resolver.Next(rule, d)
		number++
		in := newInstallment(number, g.Adjuster.Adjust(d), c.Amount)
		c.Schedule.Installments = append(c.Schedule.Installments, in)
	}
	return nil
}

// updateChargeFields applies the "first installment not before today
// becomes the active due date; earlier ones backfill into outstanding"
// split. Returns the updated dueDateSet flag.
func (g *ScheduleGenerator) updateChargeFields(c *Charge, dueDate, today calendar.Date, dueDateSet bool) bool {
	if dueDateSet {
		return true
	}
	if !dueDate.Before(today) {
		c.DueDate = dueDate
		return true
	}
	c.AmountOutstanding = c.AmountOutstanding.Add(c.Amount)
	return false
}

// scheduleStart resolves the first installment date. Calendar-inherited
// charges start on the parent calendar's next occurrence; independent
// ones start on the charge's own applicable due date.
func (g *ScheduleGenerator) scheduleStart(c *Charge, rule calendar.Rule, today calendar.Date) calendar.Date {
	start := c.DueDate
	if c.Timing.IsAnnual() || c.Timing.IsMonthly() {
		start = c.applicableDueDate(today)
	}
	if c.CalendarInherited {
		return g.Resolver.Next(rule, start)
	}
	return start
}

func (g *ScheduleGenerator) validateAnchors(c *Charge) error {
	switch {
	case !c.IsRecurring():
		return ErrNotRecurring
	case c.Timing.IsAnnual() && (c.FeeOnMonth == 0 || c.FeeOnDay == 0):
		return ErrScheduleAnchorMissing
	case c.Timing.IsMonthly() && c.FeeOnDay == 0:
		return ErrScheduleAnchorMissing
	case c.Timing.IsWeekly() && c.DueDate.IsZero():
		return ErrScheduleAnchorMissing
	}
	return nil
}

// generationWindowEnd computes the exclusive end of the generation
// window: ten periods past the start, widened by the periods already
// elapsed when the start date lies in the past.
func generationWindowEnd(rule calendar.Rule, start, today calendar.Date) calendar.Date {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}
	periods := minFutureInstallments * interval

	switch rule.Frequency {
	case calendar.Weekly:
		if start.Before(today) {
			periods += calendar.WeeksBetween(start, today)
		}
		return start.AddDays(7 * periods)
	case calendar.Monthly:
		if start.Before(today) {
			periods += calendar.MonthsBetween(start, today)
		}
		return start.AddMonthsClamped(periods)
	case calendar.Yearly:
		if start.Before(today) {
			periods += calendar.YearsBetween(start, today)
		}
		return calendar.NewDate(start.Year()+periods, start.Month(), 1).WithDayClamped(start.Day())
	default:
		return start
	}
}
