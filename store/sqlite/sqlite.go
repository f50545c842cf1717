/*
Package sqlite provides a SQLite-backed implementation of payroll.TxRepository.

PURPOSE:
  Persists employees, their append-only facts, and payroll runs. The same
  capability set is implemented for PostgreSQL in store/postgres; only the
  SQL dialect differs.

KEY TABLES:
  employees:        Mutable employee records, one nullable column per
                    compensation field (hourly_wage, monthly_salary,
                    commission_rate). Commissioned base salary lives in
                    monthly_salary.
  union_members:    Optional 1:1 membership row
  time_records:     Append-only time cards
  sales_receipts:   Append-only sales
  service_charges:  Append-only union charges
  bank_accounts:    Append-only direct-deposit destinations
  payments:         One row per completed payroll run

  Every fact table references employees ON DELETE CASCADE: deleting an
  employee removes the facts it owns.

AMOUNTS:
  Decimals are stored as TEXT and scanned back into decimal.Decimal, so no
  float rounding ever touches money.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection. WithTx holds the
  write lock for the whole callback; the Repository handed to the callback is
  bound to the *sql.Tx and does not lock again.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  proc := payroll.NewProcessor(store)

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.TxRepository using SQLite.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	repo repo
}

var _ payroll.TxRepository = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite has
	// a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, repo: repo{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		comp_kind TEXT NOT NULL,
		hourly_wage TEXT,
		monthly_salary TEXT,
		commission_rate TEXT,
		pay_method TEXT NOT NULL DEFAULT '',
		mail_address TEXT NOT NULL DEFAULT '',
		held INTEGER NOT NULL DEFAULT 0,
		deposit TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS union_members (
		employee_id TEXT PRIMARY KEY REFERENCES employees(id) ON DELETE CASCADE,
		member_id TEXT NOT NULL,
		dues_rate TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS time_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		work_date TEXT NOT NULL,
		hours TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_time_records_employee_date
		ON time_records(employee_id, work_date);

	CREATE TABLE IF NOT EXISTS sales_receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		sale_date TEXT NOT NULL,
		amount TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sales_receipts_employee_date
		ON sales_receipts(employee_id, sale_date);

	CREATE TABLE IF NOT EXISTS service_charges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		charge_date TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bank_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		bank TEXT NOT NULL,
		account TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		pay_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(pay_date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REPOSITORY (payroll.Repository interface)
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.GetEmployee(ctx, id)
}

func (s *Store) PutEmployee(ctx context.Context, emp payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeTx(ctx, func(r repo) error { return r.PutEmployee(ctx, emp) })
}

func (s *Store) DeleteEmployee(ctx context.Context, id payroll.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.DeleteEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.ListEmployees(ctx)
}

func (s *Store) AppendTimeRecord(ctx context.Context, rec payroll.TimeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.AppendTimeRecord(ctx, rec)
}

func (s *Store) AppendSalesReceipt(ctx context.Context, rec payroll.SalesReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.AppendSalesReceipt(ctx, rec)
}

func (s *Store) AppendServiceCharge(ctx context.Context, rec payroll.ServiceCharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.AppendServiceCharge(ctx, rec)
}

func (s *Store) AppendBankAccount(ctx context.Context, acct payroll.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.AppendBankAccount(ctx, acct)
}

func (s *Store) ListEmployeesWithFacts(ctx context.Context) ([]payroll.EmployeeFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.ListEmployeesWithFacts(ctx)
}

func (s *Store) LatestPaymentDate(ctx context.Context) (payroll.Date, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.LatestPaymentDate(ctx)
}

func (s *Store) RecordPayment(ctx context.Context, p payroll.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.RecordPayment(ctx, p)
}

func (s *Store) ListPayments(ctx context.Context) ([]payroll.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.ListPayments(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (payroll.TxRepository interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(repo{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// writeTx runs a multi-statement write atomically. Caller holds s.mu.
func (s *Store) writeTx(ctx context.Context, fn func(repo) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(repo{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - Shared by *sql.DB and *sql.Tx
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repo struct {
	q queryer
}

const employeeColumns = `
	e.id, e.name, e.address, e.comp_kind, e.hourly_wage, e.monthly_salary, e.commission_rate,
	e.pay_method, e.mail_address, e.held, e.deposit, u.member_id, u.dues_rate`

const employeeFrom = `
	FROM employees e
	LEFT JOIN union_members u ON u.employee_id = e.id`

func (r repo) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	row := r.q.QueryRowContext(ctx, "SELECT"+employeeColumns+employeeFrom+" WHERE e.id = ?", string(id))
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &payroll.NotFoundError{EmployeeID: id}
	}
	if err != nil {
		return nil, err
	}
	return emp, nil
}

func (r repo) PutEmployee(ctx context.Context, emp payroll.Employee) error {
	if emp.Compensation == nil {
		return fmt.Errorf("put employee %s: compensation is required", emp.ID)
	}
	comp := emp.Compensation.Record()

	// Upsert rather than REPLACE: REPLACE deletes the row and would cascade
	// to the employee's facts.
	query := `
		INSERT INTO employees
		(id, name, address, comp_kind, hourly_wage, monthly_salary, commission_rate,
		 pay_method, mail_address, held, deposit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			comp_kind = excluded.comp_kind,
			hourly_wage = excluded.hourly_wage,
			monthly_salary = excluded.monthly_salary,
			commission_rate = excluded.commission_rate,
			pay_method = excluded.pay_method,
			mail_address = excluded.mail_address,
			held = excluded.held,
			deposit = excluded.deposit
	`
	_, err := r.q.ExecContext(ctx, query,
		string(emp.ID), emp.Name, emp.Address, string(comp.Kind),
		nullDecimal(comp.HourlyWage), nullDecimal(comp.MonthlySalary), nullDecimal(comp.CommissionRate),
		string(emp.PayMethod), emp.MailAddress, emp.Held, string(emp.Deposit),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}

	if emp.Union == nil {
		_, err = r.q.ExecContext(ctx, "DELETE FROM union_members WHERE employee_id = ?", string(emp.ID))
	} else {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO union_members (employee_id, member_id, dues_rate) VALUES (?, ?, ?)
			ON CONFLICT(employee_id) DO UPDATE SET
				member_id = excluded.member_id,
				dues_rate = excluded.dues_rate`,
			string(emp.ID), emp.Union.MemberID, emp.Union.DuesRate.String())
	}
	if err != nil {
		return fmt.Errorf("failed to save union membership: %w", err)
	}
	return nil
}

func (r repo) DeleteEmployee(ctx context.Context, id payroll.EmployeeID) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &payroll.NotFoundError{EmployeeID: id}
	}
	return nil
}

func (r repo) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT"+employeeColumns+employeeFrom+" ORDER BY e.id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *emp)
	}
	return employees, rows.Err()
}

func (r repo) AppendTimeRecord(ctx context.Context, rec payroll.TimeRecord) error {
	return r.appendFact(ctx, rec.EmployeeID,
		"INSERT INTO time_records (employee_id, work_date, hours) VALUES (?, ?, ?)",
		string(rec.EmployeeID), rec.Date.String(), rec.Hours.String())
}

func (r repo) AppendSalesReceipt(ctx context.Context, rec payroll.SalesReceipt) error {
	return r.appendFact(ctx, rec.EmployeeID,
		"INSERT INTO sales_receipts (employee_id, sale_date, amount) VALUES (?, ?, ?)",
		string(rec.EmployeeID), rec.Date.String(), rec.Amount.String())
}

func (r repo) AppendServiceCharge(ctx context.Context, rec payroll.ServiceCharge) error {
	return r.appendFact(ctx, rec.EmployeeID,
		"INSERT INTO service_charges (employee_id, charge_date, amount) VALUES (?, ?, ?)",
		string(rec.EmployeeID), rec.Date.String(), rec.Amount.String())
}

func (r repo) AppendBankAccount(ctx context.Context, acct payroll.BankAccount) error {
	return r.appendFact(ctx, acct.EmployeeID,
		"INSERT INTO bank_accounts (employee_id, bank, account) VALUES (?, ?, ?)",
		string(acct.EmployeeID), acct.Bank, acct.Account)
}

func (r repo) appendFact(ctx context.Context, id payroll.EmployeeID, query string, args ...any) error {
	var exists int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees WHERE id = ?", string(id)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return &payroll.NotFoundError{EmployeeID: id}
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append fact: %w", err)
	}
	return nil
}

// ListEmployeesWithFacts loads employees, then each fact table once, and
// groups facts by employee.
func (r repo) ListEmployeesWithFacts(ctx context.Context) ([]payroll.EmployeeFacts, error) {
	employees, err := r.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]payroll.EmployeeFacts, len(employees))
	index := make(map[payroll.EmployeeID]*payroll.EmployeeFacts, len(employees))
	for i, emp := range employees {
		result[i].Employee = emp
		index[emp.ID] = &result[i]
	}

	err = r.eachRow(ctx, "SELECT employee_id, work_date, hours FROM time_records ORDER BY employee_id, work_date, id",
		func(id payroll.EmployeeID, a, b string) error {
			date, amount, err := parseFact(a, b)
			if err != nil {
				return err
			}
			if f := index[id]; f != nil {
				f.TimeRecords = append(f.TimeRecords, payroll.TimeRecord{EmployeeID: id, Date: date, Hours: amount})
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = r.eachRow(ctx, "SELECT employee_id, sale_date, amount FROM sales_receipts ORDER BY employee_id, sale_date, id",
		func(id payroll.EmployeeID, a, b string) error {
			date, amount, err := parseFact(a, b)
			if err != nil {
				return err
			}
			if f := index[id]; f != nil {
				f.SalesReceipts = append(f.SalesReceipts, payroll.SalesReceipt{EmployeeID: id, Date: date, Amount: amount})
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = r.eachRow(ctx, "SELECT employee_id, charge_date, amount FROM service_charges ORDER BY employee_id, charge_date, id",
		func(id payroll.EmployeeID, a, b string) error {
			date, amount, err := parseFact(a, b)
			if err != nil {
				return err
			}
			if f := index[id]; f != nil {
				f.ServiceCharges = append(f.ServiceCharges, payroll.ServiceCharge{EmployeeID: id, Date: date, Amount: amount})
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = r.eachRow(ctx, "SELECT employee_id, bank, account FROM bank_accounts ORDER BY employee_id, id",
		func(id payroll.EmployeeID, bank, account string) error {
			if f := index[id]; f != nil {
				f.BankAccounts = append(f.BankAccounts, payroll.BankAccount{EmployeeID: id, Bank: bank, Account: account})
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r repo) eachRow(ctx context.Context, query string, fn func(id payroll.EmployeeID, a, b string) error) error {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, a, b string
		if err := rows.Scan(&id, &a, &b); err != nil {
			return err
		}
		if err := fn(payroll.EmployeeID(id), a, b); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r repo) LatestPaymentDate(ctx context.Context) (payroll.Date, bool, error) {
	var latest sql.NullString
	if err := r.q.QueryRowContext(ctx, "SELECT MAX(pay_date) FROM payments").Scan(&latest); err != nil {
		return payroll.Date{}, false, fmt.Errorf("failed to query latest payment: %w", err)
	}
	if !latest.Valid {
		return payroll.Date{}, false, nil
	}
	d, err := payroll.ParseDate(latest.String)
	if err != nil {
		return payroll.Date{}, false, err
	}
	return d, true, nil
}

func (r repo) RecordPayment(ctx context.Context, p payroll.Payment) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO payments (id, pay_date, created_at) VALUES (?, ?, ?)",
		p.ID, p.Date.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("payment %s already recorded: %w", p.ID, err)
		}
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

func (r repo) ListPayments(ctx context.Context) ([]payroll.Payment, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT id, pay_date FROM payments ORDER BY pay_date, created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []payroll.Payment
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			return nil, err
		}
		d, err := payroll.ParseDate(date)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payroll.Payment{ID: id, Date: d})
	}
	return payments, rows.Err()
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(sc scanner) (*payroll.Employee, error) {
	var (
		emp                   payroll.Employee
		id, kind, method, dep string
		comp                  payroll.CompensationRecord
		memberID, dues        sql.NullString
	)
	err := sc.Scan(&id, &emp.Name, &emp.Address, &kind,
		&comp.HourlyWage, &comp.MonthlySalary, &comp.CommissionRate,
		&method, &emp.MailAddress, &emp.Held, &dep, &memberID, &dues)
	if err != nil {
		return nil, err
	}

	emp.ID = payroll.EmployeeID(id)
	emp.PayMethod = payroll.PayMethod(method)
	emp.Deposit = payroll.DisbursementRoute(dep)

	comp.Kind = payroll.CompensationKind(kind)
	emp.Compensation, err = payroll.CompensationFromRecord(comp)
	if err != nil {
		var dataErr *payroll.DataError
		if errors.As(err, &dataErr) {
			dataErr.EmployeeID = emp.ID
		}
		return nil, err
	}

	if memberID.Valid {
		rate, err := decimal.NewFromString(dues.String)
		if err != nil {
			return nil, fmt.Errorf("employee %s: invalid dues rate %q: %w", id, dues.String, err)
		}
		emp.Union = &payroll.UnionMembership{MemberID: memberID.String, DuesRate: rate}
	}
	return &emp, nil
}

func parseFact(date, amount string) (payroll.Date, decimal.Decimal, error) {
	d, err := payroll.ParseDate(date)
	if err != nil {
		return payroll.Date{}, decimal.Zero, err
	}
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return payroll.Date{}, decimal.Zero, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d, v, nil
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
