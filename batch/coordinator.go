/*
coordinator.go - Scheduled maintenance jobs over the charge portfolio

PURPOSE:
  Drives the three recurring maintenance passes the engine needs to stay
  synchronized with the calendar:

    RollDueDatesForward - active recurring charges whose due date elapsed
                          without settlement advance to the next
                          installment; each missed cycle stays owed.
    SettleDueCharges    - charges due as of the run date are handed to the
                          applier page by page; per-item failures are
                          captured and the run continues.
    ExtendSchedules     - schedules whose remaining lookahead dropped
                          below the floor get fresh installments appended.

DESIGN:
  - The coordinator owns no DB connection: pagination and lookups go
    through the ChargeRepository port, settlement posting through the
    Applier port. Both are injected.
  - Every pass is idempotent; re-running against an already synchronized
    portfolio is a no-op.
  - A pass never aborts on a bad item. Failures are collected into the
    run Report and logged; the caller decides whether the run as a whole
    counts as failed.

USAGE:
  coord := batch.NewCoordinator(repo, applier, nil, logger)
  report, err := coord.SettleDueCharges(ctx, calendar.Today())

SEE ALSO:
  - runner.go: cron wiring for unattended execution
  - charge/schedule.go: the generation/extension mechanics
*/
package batch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
)

// DefaultPageSize bounds how many due charges a settlement pass loads at
// once.
const DefaultPageSize = 500

// DefaultLookaheadFloor is the minimum number of future installments a
// recurring schedule keeps available.
const DefaultLookaheadFloor = 10

// =============================================================================
// PORTS
// =============================================================================

// ChargeRepository is the persistence port the coordinator paginates
// through.
type ChargeRepository interface {
	// ChargesRequiringUpdate returns active recurring charges whose due
	// date lies strictly before asOf.
	ChargesRequiringUpdate(ctx context.Context, asOf calendar.Date) ([]*charge.Charge, error)

	// DueCharges returns a page of active charges due as of asOf, ordered
	// stably so offset pagination is coherent within a run.
	DueCharges(ctx context.Context, asOf calendar.Date, offset, limit int) ([]*charge.Charge, error)

	// ChargesWithLowLookahead returns active recurring charges with fewer
	// than floor installments due on or after asOf.
	ChargesWithLowLookahead(ctx context.Context, asOf calendar.Date, floor int) ([]*charge.Charge, error)

	SaveCharge(ctx context.Context, c *charge.Charge) error
}

// Applier posts a due charge against its account. The engine does not
// manage balances itself; whoever owns the account ledger implements
// this.
type Applier interface {
	ApplyDue(ctx context.Context, c *charge.Charge, asOf calendar.Date) error
}

// =============================================================================
// RUN REPORT
// =============================================================================

// Failure records one charge a pass could not process.
type Failure struct {
	ChargeID  charge.ChargeID
	AccountID charge.AccountID
	Err       error
}

// Report summarizes one coordinator pass. Failed items are listed
// individually; the pass itself still ran to completion.
type Report struct {
	Job       string
	Processed int
	Skipped   int
	Failures  []Failure
}

func (r *Report) fail(c *charge.Charge, err error) {
	r.Failures = append(r.Failures, Failure{ChargeID: c.ID, AccountID: c.AccountID, Err: err})
}

// Err collapses the failure list into a single error, nil when the pass
// was clean.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d charge(s) failed, first: %w",
		r.Job, len(r.Failures), r.Processed+len(r.Failures), r.Failures[0].Err)
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	Repo      ChargeRepository
	Applier   Applier
	Generator *charge.ScheduleGenerator
	PageSize  int

	log *logrus.Logger
}

// NewCoordinator wires a coordinator with defaults: the standard schedule
// generator, page size 500, and the logrus standard logger when none is
// given.
func NewCoordinator(repo ChargeRepository, applier Applier, generator *charge.ScheduleGenerator, log *logrus.Logger) *Coordinator {
	if generator == nil {
		generator = charge.NewScheduleGenerator(nil, nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		Repo:      repo,
		Applier:   applier,
		Generator: generator,
		PageSize:  DefaultPageSize,
		log:       log,
	}
}

// RollDueDatesForward advances every active recurring charge whose due
// date elapsed without settlement. Each rolled period remains owed in the
// charge's outstanding amount.
func (co *Coordinator) RollDueDatesForward(ctx context.Context, asOf calendar.Date) (*Report, error) {
	report := &Report{Job: "roll-due-dates"}

	charges, err := co.Repo.ChargesRequiringUpdate(ctx, asOf)
	if err != nil {
		return report, fmt.Errorf("loading charges requiring update: %w", err)
	}

	for _, c := range charges {
		if !c.RollForwardDueDate(asOf) {
			report.Skipped++
			continue
		}
		if err := co.Repo.SaveCharge(ctx, c); err != nil {
			report.fail(c, err)
			co.logFailure(report.Job, c, err)
			continue
		}
		report.Processed++
	}

	co.logDone(report, asOf)
	return report, nil
}

// SettleDueCharges walks due charges page by page and hands each to the
// applier. A failed item is recorded and the pass moves on; the page
// offset keeps advancing so one poisoned charge cannot stall the run.
func (co *Coordinator) SettleDueCharges(ctx context.Context, asOf calendar.Date) (*Report, error) {
	report := &Report{Job: "settle-due-charges"}
	pageSize := co.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	for offset := 0; ; offset += pageSize {
		page, err := co.Repo.DueCharges(ctx, asOf, offset, pageSize)
		if err != nil {
			return report, fmt.Errorf("loading due charges at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for _, c := range page {
			if err := co.settleOne(ctx, c, asOf); err != nil {
				report.fail(c, err)
				co.logFailure(report.Job, c, err)
				continue
			}
			report.Processed++
		}

		if len(page) < pageSize {
			break
		}
	}

	co.logDone(report, asOf)
	return report, nil
}

func (co *Coordinator) settleOne(ctx context.Context, c *charge.Charge, asOf calendar.Date) error {
	if err := co.Applier.ApplyDue(ctx, c, asOf); err != nil {
		return err
	}
	return co.Repo.SaveCharge(ctx, c)
}

// ExtendSchedules tops up recurring schedules whose remaining lookahead
// fell below floor, appending holiday-adjusted installments after the
// last known one.
func (co *Coordinator) ExtendSchedules(ctx context.Context, asOf calendar.Date, floor int) (*Report, error) {
	report := &Report{Job: "extend-schedules"}
	if floor < 1 {
		floor = DefaultLookaheadFloor
	}

	charges, err := co.Repo.ChargesWithLowLookahead(ctx, asOf, floor)
	if err != nil {
		return report, fmt.Errorf("loading low-lookahead charges: %w", err)
	}

	for _, c := range charges {
		missing := floor - c.Schedule.FutureCount(asOf)
		if missing <= 0 {
			report.Skipped++
			continue
		}
		if err := co.Generator.Extend(c, c.RecurrenceRule(), missing); err != nil {
			report.fail(c, err)
			co.logFailure(report.Job, c, err)
			continue
		}
		if err := co.Repo.SaveCharge(ctx, c); err != nil {
			report.fail(c, err)
			co.logFailure(report.Job, c, err)
			continue
		}
		report.Processed++
	}

	co.logDone(report, asOf)
	return report, nil
}

func (co *Coordinator) logFailure(job string, c *charge.Charge, err error) {
	co.log.WithFields(logrus.Fields{
		"job":     job,
		"charge":  c.ID,
		"account": c.AccountID,
	}).WithError(err).Warn("charge skipped after failure")
}

func (co *Coordinator) logDone(r *Report, asOf calendar.Date) {
	co.log.WithFields(logrus.Fields{
		"job":       r.Job,
		"asOf":      asOf.String(),
		"processed": r.Processed,
		"skipped":   r.Skipped,
		"failed":    len(r.Failures),
	}).Info("batch pass completed")
}
