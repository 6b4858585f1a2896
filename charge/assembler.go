/*
assembler.go - Building and validating account charge sets

The assembler is the construction-side counterpart of the allocator: it
merges product-level charge definitions with per-account overrides,
validates the resulting set as a whole, and generates schedules for the
recurring members.

Validation failures are business rule violations and are aggregated: the
caller receives every problem in the set at once, not just the first.
*/
package charge

import (
	"github.com/shopspring/decimal"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/money"
)

// =============================================================================
// DEFINITION - Product-level charge template
// =============================================================================

// Definition is the product-level template a charge is instantiated
// from. Per-account overrides take precedence over its defaults.
type Definition struct {
	ID          ChargeID
	Name        string
	Currency    money.Currency
	Penalty     bool
	Calculation CalculationType
	Timing      TimingType

	Amount        decimal.Decimal
	FeeOnMonthDay *calendar.MonthDay
	FeeInterval   *int
}

// Overrides carries the per-account values that may replace definition
// defaults. Nil means "use the definition's value".
type Overrides struct {
	AccountID         AccountID
	Amount            *decimal.Decimal
	DueDate           *calendar.Date
	FeeOnMonthDay     *calendar.MonthDay
	FeeInterval       *int
	CalendarInherited bool
}

// =============================================================================
// ASSEMBLER
// =============================================================================

type Assembler struct {
	Generator *ScheduleGenerator
}

func NewAssembler(generator *ScheduleGenerator) *Assembler {
	if generator == nil {
		generator = NewScheduleGenerator(nil, nil)
	}
	return &Assembler{Generator: generator}
}

// Assemble instantiates a charge from its definition and overrides.
func (a *Assembler) Assemble(def Definition, ov Overrides, today calendar.Date) (*Charge, error) {
	amount := def.Amount
	if ov.Amount != nil {
		amount = *ov.Amount
	}
	feeOnMonthDay := def.FeeOnMonthDay
	if ov.FeeOnMonthDay != nil {
		feeOnMonthDay = ov.FeeOnMonthDay
	}
	feeInterval := def.FeeInterval
	if ov.FeeInterval != nil {
		feeInterval = ov.FeeInterval
	}

	return NewCharge(Spec{
		ID:                def.ID,
		AccountID:         ov.AccountID,
		Name:              def.Name,
		Currency:          def.Currency,
		Penalty:           def.Penalty,
		Calculation:       def.Calculation,
		Timing:            def.Timing,
		Amount:            amount,
		DueDate:           ov.DueDate,
		FeeOnMonthDay:     feeOnMonthDay,
		FeeInterval:       feeInterval,
		CalendarInherited: ov.CalendarInherited,
	}, today)
}

// GenerateSchedules builds the initial schedule for every recurring
// charge that does not have one yet.
func (a *Assembler) GenerateSchedules(charges []*Charge, today calendar.Date) error {
	for _, c := range charges {
		if c.IsRecurring() && len(c.Schedule.Installments) == 0 {
			if err := a.Generator.Generate(c, c.RecurrenceRule(), today); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// ACCOUNT-LEVEL VALIDATION
// =============================================================================

// ValidateAccountCharges checks an account's charge set as a whole:
// every charge must match the account currency, and at most one
// withdrawal fee and one annual fee are supported per account. Penalties
// do not count against the fee limits. All violations are reported
// together.
func ValidateAccountCharges(charges []*Charge, accountCurrency money.Currency) error {
	violations := &ViolationError{}

	withdrawalSeen := false
	annualSeen := false
	for _, c := range charges {
		if !c.HasCurrency(accountCurrency) {
			violations.add("currency.mismatch",
				"charge %q is in %s but the account is in %s", c.Name, c.Currency, accountCurrency)
		}
		if c.IsFee() && c.Timing.IsWithdrawal() {
			if withdrawalSeen {
				violations.add("withdrawal.fee.duplicate",
					"multiple withdrawal fees per account are not supported")
			}
			withdrawalSeen = true
		}
		if c.IsFee() && c.Timing.IsAnnual() {
			if annualSeen {
				violations.add("annual.fee.duplicate",
					"multiple annual fees per account are not supported")
			}
			annualSeen = true
		}
	}
	return violations.errOrNil()
}

// ValidateInheritedRecurrence checks a calendar-inherited charge against
// its parent meeting calendar: the frequencies and intervals must match,
// otherwise the charge cannot follow the meeting schedule.
func ValidateInheritedRecurrence(c *Charge, meeting calendar.Rule) error {
	if !c.CalendarInherited || !c.IsRecurring() {
		return nil
	}
	violations := &ViolationError{}

	if c.Timing.Frequency() != meeting.Frequency {
		violations.add("meeting.frequency.mismatch",
			"charge %q recurs %s but the meeting calendar recurs %s", c.Name, c.Timing.Frequency(), meeting.Frequency)
	}
	meetingInterval := meeting.Interval
	if meetingInterval < 1 {
		meetingInterval = 1
	}
	if c.FeeInterval != meetingInterval {
		violations.add("meeting.interval.mismatch",
			"charge %q repeats every %d period(s) but the meeting calendar repeats every %d", c.Name, c.FeeInterval, meetingInterval)
	}
	return violations.errOrNil()
}
