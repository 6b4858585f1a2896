package calendar

import "time"

// =============================================================================
// HOLIDAY ADJUSTMENT - Shifting due dates off non-working days
// =============================================================================

// Holiday is a non-working date range with the date obligations falling
// inside it are rescheduled to.
type Holiday struct {
	Name         string
	From         Date
	To           Date
	RescheduleTo Date
}

func (h Holiday) Contains(d Date) bool {
	return d.AfterOrEqual(h.From) && d.BeforeOrEqual(h.To)
}

// WorkingDays records which weekdays count as business days.
type WorkingDays struct {
	days [7]bool // indexed by time.Weekday
}

// AllWeekdays is the default Monday-Friday working week.
func AllWeekdays() WorkingDays {
	var wd WorkingDays
	for d := time.Monday; d <= time.Friday; d++ {
		wd.days[d] = true
	}
	return wd
}

// EveryDay treats all seven days as working days; used by tenants without
// a working-day configuration.
func EveryDay() WorkingDays {
	var wd WorkingDays
	for i := range wd.days {
		wd.days[i] = true
	}
	return wd
}

func (wd WorkingDays) IsWorkingDay(d Date) bool {
	return wd.days[d.Weekday()]
}

// Adjuster shifts a computed due date when it lands on a holiday or
// non-working day. The charge engine applies it only when holiday
// handling is enabled for the tenant.
type Adjuster interface {
	Adjust(d Date) Date
}

// NoAdjustment leaves dates untouched; used when holiday handling is off.
type NoAdjustment struct{}

func (NoAdjustment) Adjust(d Date) Date { return d }

// HolidayAdjuster moves dates that fall inside a holiday to the holiday's
// reschedule date, then forward to the next working day.
type HolidayAdjuster struct {
	Holidays    []Holiday
	WorkingDays WorkingDays
}

func NewHolidayAdjuster(holidays []Holiday, workingDays WorkingDays) *HolidayAdjuster {
	return &HolidayAdjuster{Holidays: holidays, WorkingDays: workingDays}
}

func (ha *HolidayAdjuster) Adjust(d Date) Date {
	for _, h := range ha.Holidays {
		if h.Contains(d) {
			d = h.RescheduleTo
			break
		}
	}
	// Bounded scan; a configuration with more than a year of consecutive
	// non-working days is rejected upstream.
	for i := 0; i < 366 && !ha.WorkingDays.IsWorkingDay(d); i++ {
		d = d.AddDays(1)
	}
	return d
}
