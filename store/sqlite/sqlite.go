/*
Package sqlite provides the SQLite-backed charge repository.

PURPOSE:
  Persists the charge aggregate (charge row + installment rows) and serves
  the batch coordinator's queries: charges whose due date elapsed, pages of
  due charges, and schedules running low on lookahead. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  batch.ChargeRepository: the coordinator's persistence port

AGGREGATE SAVES:
  A charge and its installments are written in one database transaction;
  the installment rows are replaced wholesale on save. Partial aggregates
  are never visible to readers.

ABSENT-MEANS-ZERO:
  paid_amount and waived_amount are stored as NULL when zero and
  rehydrated as zero amounts in the charge's currency. This only happens
  at this boundary; the domain types always carry explicit zeros.

KEY TABLES:
  charges:             One row per charge aggregate
  charge_installments: Schedule rows, (charge_id, number) keyed

INDEXES:
  - idx_charges_due: due-charge pagination (hot path for the batch run)
  - idx_charges_account: account-level charge listing
  - idx_installments_due: lookahead counting

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened in WAL mode so
  readers do not block each other. Saves are version-guarded: every
  charge row carries a version counter, a save only succeeds when the
  caller's loaded version is still current, and a lost race surfaces as
  charge.ErrConcurrentUpdate so the caller can reload and retry. The
  load-mutate-save cycle therefore never silently drops a concurrent
  settlement.

USAGE:
  store, err := sqlite.New("./data/charges.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - batch/coordinator.go: the queries' consumer
  - charge/charge.go: the aggregate being persisted
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
	"github.com/warp/charge-engine/money"
)

// Store implements the charge repository on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		penalty BOOLEAN NOT NULL DEFAULT FALSE,
		calculation TEXT NOT NULL,
		timing TEXT NOT NULL,
		amount TEXT NOT NULL,
		percentage TEXT NOT NULL DEFAULT '0',
		percentage_base TEXT NOT NULL DEFAULT '0',
		start_date TEXT,
		due_date TEXT,
		fee_on_month INTEGER NOT NULL DEFAULT 0,
		fee_on_day INTEGER NOT NULL DEFAULT 0,
		fee_interval INTEGER NOT NULL DEFAULT 0,
		calendar_inherited BOOLEAN NOT NULL DEFAULT FALSE,
		amount_paid TEXT NOT NULL DEFAULT '0',
		amount_waived TEXT NOT NULL DEFAULT '0',
		amount_written_off TEXT NOT NULL DEFAULT '0',
		amount_outstanding TEXT NOT NULL DEFAULT '0',
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		waived BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		inactivated_on TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	-- Due-charge pagination (hot path for the nightly run)
	CREATE INDEX IF NOT EXISTS idx_charges_due
		ON charges(due_date, id) WHERE active;

	CREATE INDEX IF NOT EXISTS idx_charges_account
		ON charges(account_id);

	CREATE TABLE IF NOT EXISTS charge_installments (
		charge_id TEXT NOT NULL REFERENCES charges(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		due_amount TEXT NOT NULL,
		paid_amount TEXT,
		waived_amount TEXT,
		obligations_met_on TEXT,
		waived BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (charge_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_due
		ON charge_installments(charge_id, due_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// AGGREGATE SAVE / LOAD
// =============================================================================

// SaveCharge writes the charge row and replaces its installment rows in
// one transaction. Saves are guarded by the aggregate version: a caller
// holding a stale copy gets charge.ErrConcurrentUpdate and nothing is
// written.
func (s *Store) SaveCharge(ctx context.Context, c *charge.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if c.Version == 0 {
		err = insertCharge(ctx, tx, c, now)
	} else {
		err = updateCharge(ctx, tx, c, now)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM charge_installments WHERE charge_id = ?", c.ID); err != nil {
		return fmt.Errorf("failed to clear installments for %s: %w", c.ID, err)
	}
	for _, in := range c.Schedule.Installments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO charge_installments
			(charge_id, number, due_date, due_amount, paid_amount, waived_amount, obligations_met_on, waived)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID,
			in.Number,
			in.DueDate.String(),
			in.DueAmount.Amount.String(),
			nullWhenZero(in.PaidAmount),
			nullWhenZero(in.WaivedAmount),
			nullDatePtr(in.ObligationsMetOn),
			in.Waived,
		)
		if err != nil {
			return fmt.Errorf("failed to save installment %d of %s: %w", in.Number, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge %s: %w", c.ID, err)
	}
	c.Version++
	return nil
}

// insertCharge creates the row for a never-persisted aggregate at version
// one. A primary key collision means somebody else created it first.
func insertCharge(ctx context.Context, tx *sql.Tx, c *charge.Charge, now string) error {
	query := `
		INSERT INTO charges
		(id, account_id, name, currency, penalty, calculation, timing,
		 amount, percentage, percentage_base, start_date, due_date,
		 fee_on_month, fee_on_day, fee_interval, calendar_inherited,
		 amount_paid, amount_waived, amount_written_off, amount_outstanding,
		 paid, waived, active, inactivated_on, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`
	_, err := tx.ExecContext(ctx, query, append(chargeColumns(c), now, now)...)
	var serr sqlite3.Error
	if errors.As(err, &serr) &&
		(serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || serr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("charge %s was created concurrently: %w", c.ID, charge.ErrConcurrentUpdate)
	}
	if err != nil {
		return fmt.Errorf("failed to save charge %s: %w", c.ID, err)
	}
	return nil
}

// updateCharge rewrites the row of a persisted aggregate, bumping the
// version. Zero rows affected means the loaded version is stale.
func updateCharge(ctx context.Context, tx *sql.Tx, c *charge.Charge, now string) error {
	query := `
		UPDATE charges SET
			account_id = ?, name = ?, currency = ?, penalty = ?,
			calculation = ?, timing = ?, amount = ?, percentage = ?,
			percentage_base = ?, start_date = ?, due_date = ?,
			fee_on_month = ?, fee_on_day = ?, fee_interval = ?,
			calendar_inherited = ?, amount_paid = ?, amount_waived = ?,
			amount_written_off = ?, amount_outstanding = ?, paid = ?,
			waived = ?, active = ?, inactivated_on = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := tx.ExecContext(ctx, query, append(chargeColumns(c)[1:], now, c.ID, c.Version)...)
	if err != nil {
		return fmt.Errorf("failed to save charge %s: %w", c.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save charge %s: %w", c.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("charge %s at version %d: %w", c.ID, c.Version, charge.ErrConcurrentUpdate)
	}
	return nil
}

// chargeColumns lists the bind values shared by insert and update, in
// schema order up to inactivated_on.
func chargeColumns(c *charge.Charge) []any {
	return []any{
		c.ID,
		c.AccountID,
		c.Name,
		string(c.Currency),
		c.Penalty,
		string(c.Calculation),
		string(c.Timing),
		c.Amount.Amount.String(),
		c.Percentage.String(),
		c.PercentageBase.Amount.String(),
		nullDate(c.StartDate),
		nullDate(c.DueDate),
		int(c.FeeOnMonth),
		c.FeeOnDay,
		c.FeeInterval,
		c.CalendarInherited,
		c.AmountPaid.Amount.String(),
		c.AmountWaived.Amount.String(),
		c.AmountWrittenOff.Amount.String(),
		c.AmountOutstanding.Amount.String(),
		c.Paid,
		c.Waived,
		c.Active,
		nullDatePtr(c.InactivatedOn),
	}
}

// GetCharge loads one charge aggregate by ID.
func (s *Store) GetCharge(ctx context.Context, id charge.ChargeID) (*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectCharge+" WHERE id = ?", id)
	c, err := scanCharge(row)
	if err == sql.ErrNoRows {
		return nil, charge.ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadInstallments(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListAccountCharges loads every charge of an account, active first.
func (s *Store) ListAccountCharges(ctx context.Context, accountID charge.AccountID) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCharges(ctx,
		selectCharge+" WHERE account_id = ? ORDER BY active DESC, due_date, id", accountID)
}

// =============================================================================
// BATCH COORDINATOR QUERIES (batch.ChargeRepository)
// =============================================================================

// ChargesRequiringUpdate returns active recurring charges whose due date
// lies strictly before asOf.
func (s *Store) ChargesRequiringUpdate(ctx context.Context, asOf calendar.Date) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCharges(ctx, selectCharge+`
		WHERE active AND due_date < ?
		  AND timing IN (?, ?, ?)
		ORDER BY due_date, id`,
		asOf.String(), charge.TimingAnnual, charge.TimingMonthly, charge.TimingWeekly)
}

// DueCharges returns one page of active charges due as of asOf, ordered
// by (due_date, id) so offsets stay coherent within a run.
func (s *Store) DueCharges(ctx context.Context, asOf calendar.Date, offset, limit int) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCharges(ctx, selectCharge+`
		WHERE active AND NOT paid AND NOT waived AND due_date < ?
		ORDER BY due_date, id
		LIMIT ? OFFSET ?`,
		asOf.String(), limit, offset)
}

// ChargesWithLowLookahead returns active recurring charges with fewer
// than floor installments due on or after asOf.
func (s *Store) ChargesWithLowLookahead(ctx context.Context, asOf calendar.Date, floor int) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCharges(ctx, selectCharge+`
		WHERE active
		  AND timing IN (?, ?, ?)
		  AND (SELECT COUNT(*) FROM charge_installments i
		       WHERE i.charge_id = charges.id AND i.due_date >= ?) < ?
		ORDER BY id`,
		charge.TimingAnnual, charge.TimingMonthly, charge.TimingWeekly,
		asOf.String(), floor)
}

// =============================================================================
// SCANNING
// =============================================================================

const selectCharge = `
	SELECT id, account_id, name, currency, penalty, calculation, timing,
	       amount, percentage, percentage_base, start_date, due_date,
	       fee_on_month, fee_on_day, fee_interval, calendar_inherited,
	       amount_paid, amount_waived, amount_written_off, amount_outstanding,
	       paid, waived, active, inactivated_on, version
	FROM charges`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryCharges(ctx context.Context, query string, args ...any) ([]*charge.Charge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var charges []*charge.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range charges {
		if err := s.loadInstallments(ctx, c); err != nil {
			return nil, err
		}
	}
	return charges, nil
}

func scanCharge(row rowScanner) (*charge.Charge, error) {
	var (
		c             charge.Charge
		currency      string
		calculation   string
		timing        string
		amount        string
		percentage    string
		pctBase       string
		startDate     sql.NullString
		dueDate       sql.NullString
		feeOnMonth    int
		paid          string
		waived        string
		writtenOff    string
		outstanding   string
		inactivatedOn sql.NullString
	)

	err := row.Scan(
		&c.ID, &c.AccountID, &c.Name, &currency, &c.Penalty, &calculation, &timing,
		&amount, &percentage, &pctBase, &startDate, &dueDate,
		&feeOnMonth, &c.FeeOnDay, &c.FeeInterval, &c.CalendarInherited,
		&paid, &waived, &writtenOff, &outstanding,
		&c.Paid, &c.Waived, &c.Active, &inactivatedOn, &c.Version,
	)
	if err != nil {
		return nil, err
	}

	c.Currency = money.Currency(currency)
	c.Calculation = charge.CalculationType(calculation)
	c.Timing = charge.TimingType(timing)
	c.FeeOnMonth = time.Month(feeOnMonth)

	if c.Amount, err = parseMoney(c.Currency, amount); err != nil {
		return nil, fmt.Errorf("charge %s: bad amount: %w", c.ID, err)
	}
	if c.Percentage, err = decimal.NewFromString(percentage); err != nil {
		return nil, fmt.Errorf("charge %s: bad percentage: %w", c.ID, err)
	}
	if c.PercentageBase, err = parseMoney(c.Currency, pctBase); err != nil {
		return nil, fmt.Errorf("charge %s: bad percentage base: %w", c.ID, err)
	}
	if c.AmountPaid, err = parseMoney(c.Currency, paid); err != nil {
		return nil, fmt.Errorf("charge %s: bad paid amount: %w", c.ID, err)
	}
	if c.AmountWaived, err = parseMoney(c.Currency, waived); err != nil {
		return nil, fmt.Errorf("charge %s: bad waived amount: %w", c.ID, err)
	}
	if c.AmountWrittenOff, err = parseMoney(c.Currency, writtenOff); err != nil {
		return nil, fmt.Errorf("charge %s: bad written-off amount: %w", c.ID, err)
	}
	if c.AmountOutstanding, err = parseMoney(c.Currency, outstanding); err != nil {
		return nil, fmt.Errorf("charge %s: bad outstanding amount: %w", c.ID, err)
	}
	if c.StartDate, err = parseNullDate(startDate); err != nil {
		return nil, fmt.Errorf("charge %s: bad start date: %w", c.ID, err)
	}
	if c.DueDate, err = parseNullDate(dueDate); err != nil {
		return nil, fmt.Errorf("charge %s: bad due date: %w", c.ID, err)
	}
	if inactivatedOn.Valid {
		d, err := calendar.ParseDate(inactivatedOn.String)
		if err != nil {
			return nil, fmt.Errorf("charge %s: bad inactivation date: %w", c.ID, err)
		}
		c.InactivatedOn = &d
	}

	return &c, nil
}

func (s *Store) loadInstallments(ctx context.Context, c *charge.Charge) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, due_date, due_amount, paid_amount, waived_amount, obligations_met_on, waived
		FROM charge_installments
		WHERE charge_id = ?
		ORDER BY number`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to query installments for %s: %w", c.ID, err)
	}
	defer rows.Close()

	c.Schedule = charge.Schedule{}
	for rows.Next() {
		var (
			in               charge.Installment
			dueDate          string
			dueAmount        string
			paidAmount       sql.NullString
			waivedAmount     sql.NullString
			obligationsMetOn sql.NullString
		)
		if err := rows.Scan(&in.Number, &dueDate, &dueAmount, &paidAmount, &waivedAmount, &obligationsMetOn, &in.Waived); err != nil {
			return fmt.Errorf("failed to scan installment for %s: %w", c.ID, err)
		}

		if in.DueDate, err = calendar.ParseDate(dueDate); err != nil {
			return fmt.Errorf("installment of %s: bad due date: %w", c.ID, err)
		}
		if in.DueAmount, err = parseMoney(c.Currency, dueAmount); err != nil {
			return fmt.Errorf("installment of %s: bad due amount: %w", c.ID, err)
		}
		// Absent means zero for the settled columns.
		if in.PaidAmount, err = parseNullMoney(c.Currency, paidAmount); err != nil {
			return fmt.Errorf("installment of %s: bad paid amount: %w", c.ID, err)
		}
		if in.WaivedAmount, err = parseNullMoney(c.Currency, waivedAmount); err != nil {
			return fmt.Errorf("installment of %s: bad waived amount: %w", c.ID, err)
		}
		if obligationsMetOn.Valid {
			d, err := calendar.ParseDate(obligationsMetOn.String)
			if err != nil {
				return fmt.Errorf("installment of %s: bad settlement date: %w", c.ID, err)
			}
			in.ObligationsMetOn = &d
		}

		c.Schedule.Installments = append(c.Schedule.Installments, &in)
	}
	return rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func parseMoney(currency money.Currency, raw string) (money.Money, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(currency, d), nil
}

func parseNullMoney(currency money.Currency, ns sql.NullString) (money.Money, error) {
	if !ns.Valid {
		return money.Zero(currency), nil
	}
	return parseMoney(currency, ns.String)
}

func parseNullDate(ns sql.NullString) (calendar.Date, error) {
	if !ns.Valid {
		return calendar.Date{}, nil
	}
	return calendar.ParseDate(ns.String)
}

func nullDate(d calendar.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDatePtr(d *calendar.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullWhenZero(m money.Money) sql.NullString {
	if m.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: m.Amount.String(), Valid: true}
}
