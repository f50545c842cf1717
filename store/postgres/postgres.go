/*
Package postgres provides a PostgreSQL-backed payroll.TxRepository using pgx.

PURPOSE:
  Same capability set and table layout as store/sqlite, for deployments that
  need a shared database. The schema is owned by the versioned migrations in
  migrations/ (see Migrate and cmd/migrate); the store never creates tables.

AMOUNTS:
  Amounts are NUMERIC columns. They are sent as decimal strings and read back
  with ::text so values never pass through float64.

TRANSACTIONS:
  WithTx begins a read-write transaction, takes a transaction-scoped
  advisory lock (pg_advisory_xact_lock), and hands fn a Repository bound to
  the pgx.Tx. The lock serializes WithTx callers the way the SQLite store's
  mutex does; it is released on commit or rollback. PutEmployee outside WithTx opens its own transaction because it
  writes two tables.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - pool.go: pgxpool construction from config
  - migrate.go: embedded golang-migrate migrations
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// writeLockKey identifies the transaction-scoped advisory lock taken by WithTx.
const writeLockKey int64 = 0x706179726f6c6c // "payroll"

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
)

// Queryer is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool is a Queryer that can start transactions.
type Pool interface {
	Queryer
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store implements payroll.TxRepository on PostgreSQL.
type Store struct {
	pool Pool
	repo repo
}

var _ payroll.TxRepository = (*Store)(nil)

// New wraps an open pool. The caller owns the pool.
func New(pool Pool) *Store {
	return &Store{pool: pool, repo: repo{q: pool}}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a read-write transaction holding the payroll
// write lock. Concurrent WithTx calls, from this process or another, run one
// at a time, so two payroll runs never read the same latest payment.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	return s.within(ctx, func(r repo) error {
		if _, err := r.q.Exec(ctx, queryWriteLock, writeLockKey); err != nil {
			return fmt.Errorf("postgres: acquire write lock: %w", err)
		}
		return fn(r)
	})
}

func (s *Store) within(ctx context.Context, fn func(repo) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(repo{q: tx}); err != nil {
		finished = true
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	finished = true
	return nil
}

// =============================================================================
// REPOSITORY (payroll.Repository interface)
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

func (s *Store) PutEmployee(ctx context.Context, emp payroll.Employee) error {
	return s.within(ctx, func(r repo) error { return r.PutEmployee(ctx, emp) })
}

func (s *Store) DeleteEmployee(ctx context.Context, id payroll.EmployeeID) error {
	return s.repo.DeleteEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *Store) AppendTimeRecord(ctx context.Context, rec payroll.TimeRecord) error {
	return s.repo.AppendTimeRecord(ctx, rec)
}

func (s *Store) AppendSalesReceipt(ctx context.Context, rec payroll.SalesReceipt) error {
	return s.repo.AppendSalesReceipt(ctx, rec)
}

func (s *Store) AppendServiceCharge(ctx context.Context, rec payroll.ServiceCharge) error {
	return s.repo.AppendServiceCharge(ctx, rec)
}

func (s *Store) AppendBankAccount(ctx context.Context, acct payroll.BankAccount) error {
	return s.repo.AppendBankAccount(ctx, acct)
}

func (s *Store) ListEmployeesWithFacts(ctx context.Context) ([]payroll.EmployeeFacts, error) {
	return s.repo.ListEmployeesWithFacts(ctx)
}

func (s *Store) LatestPaymentDate(ctx context.Context) (payroll.Date, bool, error) {
	return s.repo.LatestPaymentDate(ctx)
}

func (s *Store) RecordPayment(ctx context.Context, p payroll.Payment) error {
	return s.repo.RecordPayment(ctx, p)
}

func (s *Store) ListPayments(ctx context.Context) ([]payroll.Payment, error) {
	return s.repo.ListPayments(ctx)
}

// =============================================================================
// QUERIES
// =============================================================================

const selectEmployees = `
        SELECT e.id, e.name, e.address, e.comp_kind,
               e.hourly_wage::text, e.monthly_salary::text, e.commission_rate::text,
               e.pay_method, e.mail_address, e.held, e.deposit,
               u.member_id, u.dues_rate::text
          FROM employees e
          LEFT JOIN union_members u ON u.employee_id = e.id`

const (
	queryGetEmployee   = selectEmployees + ` WHERE e.id = $1`
	queryListEmployees = selectEmployees + ` ORDER BY e.id`

	queryUpsertEmployee = `
        INSERT INTO employees (id, name, address, comp_kind, hourly_wage, monthly_salary, commission_rate,
                               pay_method, mail_address, held, deposit)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET
               name = EXCLUDED.name,
               address = EXCLUDED.address,
               comp_kind = EXCLUDED.comp_kind,
               hourly_wage = EXCLUDED.hourly_wage,
               monthly_salary = EXCLUDED.monthly_salary,
               commission_rate = EXCLUDED.commission_rate,
               pay_method = EXCLUDED.pay_method,
               mail_address = EXCLUDED.mail_address,
               held = EXCLUDED.held,
               deposit = EXCLUDED.deposit,
               updated_at = now()`

	queryUpsertUnion = `
        INSERT INTO union_members (employee_id, member_id, dues_rate)
        VALUES ($1, $2, $3)
        ON CONFLICT (employee_id) DO UPDATE SET
               member_id = EXCLUDED.member_id,
               dues_rate = EXCLUDED.dues_rate`

	queryDeleteUnion    = `DELETE FROM union_members WHERE employee_id = $1`
	queryDeleteEmployee = `DELETE FROM employees WHERE id = $1`

	queryInsertTimeRecord    = `INSERT INTO time_records (employee_id, work_date, hours) VALUES ($1, $2, $3)`
	queryInsertSalesReceipt  = `INSERT INTO sales_receipts (employee_id, sale_date, amount) VALUES ($1, $2, $3)`
	queryInsertServiceCharge = `INSERT INTO service_charges (employee_id, charge_date, amount) VALUES ($1, $2, $3)`
	queryInsertBankAccount   = `INSERT INTO bank_accounts (employee_id, bank, account) VALUES ($1, $2, $3)`

	queryListTimeRecords    = `SELECT employee_id, work_date::text, hours::text FROM time_records ORDER BY employee_id, work_date, id`
	queryListSalesReceipts  = `SELECT employee_id, sale_date::text, amount::text FROM sales_receipts ORDER BY employee_id, sale_date, id`
	queryListServiceCharges = `SELECT employee_id, charge_date::text, amount::text FROM service_charges ORDER BY employee_id, charge_date, id`
	queryListBankAccounts   = `SELECT employee_id, bank, account FROM bank_accounts ORDER BY employee_id, id`

	queryWriteLock = `SELECT pg_advisory_xact_lock($1)`

	queryLatestPayment = `SELECT COALESCE(MAX(pay_date)::text, '') FROM payments`
	queryInsertPayment = `INSERT INTO payments (id, pay_date) VALUES ($1, $2)`
	queryListPayments  = `SELECT id::text, pay_date::text FROM payments ORDER BY pay_date, created_at`
)

type repo struct {
	q Queryer
}

func (r repo) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	emp, err := scanEmployee(r.q.QueryRow(ctx, queryGetEmployee, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &payroll.NotFoundError{EmployeeID: id}
	}
	if err != nil {
		return nil, translatePgError(err, id)
	}
	return emp, nil
}

func (r repo) PutEmployee(ctx context.Context, emp payroll.Employee) error {
	if emp.Compensation == nil {
		return fmt.Errorf("put employee %s: compensation is required", emp.ID)
	}
	comp := emp.Compensation.Record()

	_, err := r.q.Exec(ctx, queryUpsertEmployee,
		string(emp.ID), emp.Name, emp.Address, string(comp.Kind),
		nullableDecimal(comp.HourlyWage), nullableDecimal(comp.MonthlySalary), nullableDecimal(comp.CommissionRate),
		string(emp.PayMethod), emp.MailAddress, emp.Held, string(emp.Deposit),
	)
	if err != nil {
		return fmt.Errorf("postgres: save employee: %w", translatePgError(err, emp.ID))
	}

	if emp.Union == nil {
		_, err = r.q.Exec(ctx, queryDeleteUnion, string(emp.ID))
	} else {
		_, err = r.q.Exec(ctx, queryUpsertUnion, string(emp.ID), emp.Union.MemberID, emp.Union.DuesRate.String())
	}
	if err != nil {
		return fmt.Errorf("postgres: save union membership: %w", translatePgError(err, emp.ID))
	}
	return nil
}

func (r repo) DeleteEmployee(ctx context.Context, id payroll.EmployeeID) error {
	tag, err := r.q.Exec(ctx, queryDeleteEmployee, string(id))
	if err != nil {
		return translatePgError(err, id)
	}
	if tag.RowsAffected() == 0 {
		return &payroll.NotFoundError{EmployeeID: id}
	}
	return nil
}

func (r repo) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	rows, err := r.q.Query(ctx, queryListEmployees)
	if err != nil {
		return nil, fmt.Errorf("postgres: list employees: %w", err)
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

// Facts reference employees by foreign key; a violation means the employee
// does not exist.
func (r repo) AppendTimeRecord(ctx context.Context, rec payroll.TimeRecord) error {
	_, err := r.q.Exec(ctx, queryInsertTimeRecord, string(rec.EmployeeID), rec.Date.String(), rec.Hours.String())
	return translatePgError(err, rec.EmployeeID)
}

func (r repo) AppendSalesReceipt(ctx context.Context, rec payroll.SalesReceipt) error {
	_, err := r.q.Exec(ctx, queryInsertSalesReceipt, string(rec.EmployeeID), rec.Date.String(), rec.Amount.String())
	return translatePgError(err, rec.EmployeeID)
}

func (r repo) AppendServiceCharge(ctx context.Context, rec payroll.ServiceCharge) error {
	_, err := r.q.Exec(ctx, queryInsertServiceCharge, string(rec.EmployeeID), rec.Date.String(), rec.Amount.String())
	return translatePgError(err, rec.EmployeeID)
}

func (r repo) AppendBankAccount(ctx context.Context, acct payroll.BankAccount) error {
	_, err := r.q.Exec(ctx, queryInsertBankAccount, string(acct.EmployeeID), acct.Bank, acct.Account)
	return translatePgError(err, acct.EmployeeID)
}

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

	err = r.eachDatedAmount(ctx, queryListTimeRecords, func(id payroll.EmployeeID, d payroll.Date, v decimal.Decimal) {
		if f := index[id]; f != nil {
			f.TimeRecords = append(f.TimeRecords, payroll.TimeRecord{EmployeeID: id, Date: d, Hours: v})
		}
	})
	if err != nil {
		return nil, err
	}

	err = r.eachDatedAmount(ctx, queryListSalesReceipts, func(id payroll.EmployeeID, d payroll.Date, v decimal.Decimal) {
		if f := index[id]; f != nil {
			f.SalesReceipts = append(f.SalesReceipts, payroll.SalesReceipt{EmployeeID: id, Date: d, Amount: v})
		}
	})
	if err != nil {
		return nil, err
	}

	err = r.eachDatedAmount(ctx, queryListServiceCharges, func(id payroll.EmployeeID, d payroll.Date, v decimal.Decimal) {
		if f := index[id]; f != nil {
			f.ServiceCharges = append(f.ServiceCharges, payroll.ServiceCharge{EmployeeID: id, Date: d, Amount: v})
		}
	})
	if err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx, queryListBankAccounts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bank accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, bank, account string
		if err := rows.Scan(&id, &bank, &account); err != nil {
			return nil, err
		}
		if f := index[payroll.EmployeeID(id)]; f != nil {
			f.BankAccounts = append(f.BankAccounts, payroll.BankAccount{EmployeeID: f.Employee.ID, Bank: bank, Account: account})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r repo) eachDatedAmount(ctx context.Context, query string, fn func(payroll.EmployeeID, payroll.Date, decimal.Decimal)) error {
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres: list facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, date, amount string
		if err := rows.Scan(&id, &date, &amount); err != nil {
			return err
		}
		d, err := payroll.ParseDate(date)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("postgres: invalid amount %q: %w", amount, err)
		}
		fn(payroll.EmployeeID(id), d, v)
	}
	return rows.Err()
}

func (r repo) LatestPaymentDate(ctx context.Context) (payroll.Date, bool, error) {
	var latest string
	if err := r.q.QueryRow(ctx, queryLatestPayment).Scan(&latest); err != nil {
		return payroll.Date{}, false, fmt.Errorf("postgres: latest payment: %w", err)
	}
	if latest == "" {
		return payroll.Date{}, false, nil
	}
	d, err := payroll.ParseDate(latest)
	if err != nil {
		return payroll.Date{}, false, fmt.Errorf("postgres: %w", err)
	}
	return d, true, nil
}

func (r repo) RecordPayment(ctx context.Context, p payroll.Payment) error {
	if _, err := r.q.Exec(ctx, queryInsertPayment, p.ID, p.Date.String()); err != nil {
		return fmt.Errorf("postgres: record payment: %w", err)
	}
	return nil
}

func (r repo) ListPayments(ctx context.Context) ([]payroll.Payment, error) {
	rows, err := r.q.Query(ctx, queryListPayments)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payments: %w", err)
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
			return nil, fmt.Errorf("postgres: %w", err)
		}
		payments = append(payments, payroll.Payment{ID: id, Date: d})
	}
	return payments, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func scanEmployee(row pgx.Row) (*payroll.Employee, error) {
	var (
		emp                         payroll.Employee
		id, kind, method, deposit   string
		hourly, monthly, commission sql.NullString
		memberID, dues              sql.NullString
	)
	if err := row.Scan(&id, &emp.Name, &emp.Address, &kind,
		&hourly, &monthly, &commission,
		&method, &emp.MailAddress, &emp.Held, &deposit,
		&memberID, &dues); err != nil {
		return nil, err
	}

	emp.ID = payroll.EmployeeID(id)
	emp.PayMethod = payroll.PayMethod(method)
	emp.Deposit = payroll.DisbursementRoute(deposit)

	rec := payroll.CompensationRecord{Kind: payroll.CompensationKind(kind)}
	var err error
	if rec.HourlyWage, err = parseNullable(hourly); err != nil {
		return nil, err
	}
	if rec.MonthlySalary, err = parseNullable(monthly); err != nil {
		return nil, err
	}
	if rec.CommissionRate, err = parseNullable(commission); err != nil {
		return nil, err
	}

	emp.Compensation, err = payroll.CompensationFromRecord(rec)
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
			return nil, fmt.Errorf("postgres: employee %s: invalid dues rate: %w", id, err)
		}
		emp.Union = &payroll.UnionMembership{MemberID: memberID.String, DuesRate: rate}
	}
	return &emp, nil
}

func parseNullable(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("postgres: invalid decimal %q: %w", s.String, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// translatePgError maps constraint violations onto payroll errors.
func translatePgError(err error, id payroll.EmployeeID) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &payroll.NotFoundError{EmployeeID: id}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case foreignKeyViolationCode:
			return &payroll.NotFoundError{EmployeeID: id}
		case uniqueViolationCode:
			return &payroll.UserError{Op: "postgres", Msg: fmt.Sprintf("duplicate record for employee %s (%s)", id, pgErr.ConstraintName)}
		case checkViolationCode:
			return &payroll.UserError{Op: "postgres", Msg: fmt.Sprintf("value rejected by %s", pgErr.ConstraintName)}
		}
	}
	return err
}
