package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

var employeeCols = []string{
	"id", "name", "address", "comp_kind", "hourly_wage", "monthly_salary", "commission_rate",
	"pay_method", "mail_address", "held", "deposit", "member_id", "dues_rate",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func q(query string) string { return regexp.QuoteMeta(query) }

func expectWriteLock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(q(queryWriteLock)).
		WithArgs(writeLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestGetEmployee_Hourly_WithUnion(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectQuery(q(queryGetEmployee)).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows(employeeCols).
			AddRow("e1", "Ann", "1 Main St", "hourly", "20.0000", nil, nil, "Cash", "", false, "", "m-7", "2.5000"))

	emp, err := store.GetEmployee(context.Background(), "e1")
	require.NoError(t, err)

	assert.Equal(t, "Ann", emp.Name)
	assert.Equal(t, payroll.PayCash, emp.PayMethod)
	h, ok := emp.Compensation.(payroll.Hourly)
	require.True(t, ok, "expected hourly, got %T", emp.Compensation)
	assert.True(t, h.HourlyWage.Valid)
	assert.True(t, decimal.NewFromInt(20).Equal(h.HourlyWage.Decimal))
	require.NotNil(t, emp.Union)
	assert.Equal(t, "m-7", emp.Union.MemberID)
	assert.True(t, decimal.RequireFromString("2.5").Equal(emp.Union.DuesRate))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmployee_NotFound(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectQuery(q(queryGetEmployee)).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetEmployee(context.Background(), "ghost")
	assert.True(t, payroll.IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmployee_UnknownKindIsDataError(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectQuery(q(queryGetEmployee)).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows(employeeCols).
			AddRow("e1", "Ann", "", "piecework", nil, nil, nil, "", "", false, "", nil, nil))

	_, err := store.GetEmployee(context.Background(), "e1")
	assert.True(t, payroll.IsDataError(err), "got %v", err)
}

func TestPutEmployee_UpsertsInOwnTransaction(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	comp, err := payroll.NewCommissioned(decimal.NewFromInt(1000), decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	emp := payroll.Employee{ID: "c1", Name: "Cy", Compensation: comp, PayMethod: payroll.PayCheque}

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec(q(queryUpsertEmployee)).
		WithArgs("c1", "Cy", "", "commissioned", nil, "1000", "0.1", "Cheque", "", false, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q(queryDeleteUnion)).
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, store.PutEmployee(context.Background(), emp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutEmployee_WritesUnionMembership(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	comp, err := payroll.NewSalaried(decimal.NewFromInt(3000))
	require.NoError(t, err)
	emp := payroll.Employee{
		ID:           "s1",
		Name:         "Sam",
		Compensation: comp,
		Union:        &payroll.UnionMembership{MemberID: "u-1", DuesRate: decimal.RequireFromString("9.42")},
	}

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec(q(queryUpsertEmployee)).
		WithArgs("s1", "Sam", "", "salaried", nil, "3000", nil, "", "", false, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q(queryUpsertUnion)).
		WithArgs("s1", "u-1", "9.42").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.PutEmployee(context.Background(), emp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEmployee(t *testing.T) {
	t.Parallel()

	t.Run("deletes", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(q(queryDeleteEmployee)).WithArgs("e1").WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, store.DeleteEmployee(context.Background(), "e1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(q(queryDeleteEmployee)).WithArgs("ghost").WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := store.DeleteEmployee(context.Background(), "ghost")
		assert.True(t, payroll.IsNotFound(err), "got %v", err)
	})
}

func TestAppendTimeRecord_ForeignKeyViolationIsNotFound(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectExec(q(queryInsertTimeRecord)).
		WithArgs("ghost", "2024-01-15", "8").
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "time_records_employee_id_fkey"})

	err := store.AppendTimeRecord(context.Background(), payroll.TimeRecord{
		EmployeeID: "ghost", Date: payroll.NewDate(2024, 1, 15), Hours: decimal.NewFromInt(8),
	})
	assert.True(t, payroll.IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEmployeesWithFacts_GroupsByEmployee(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectQuery(q(queryListEmployees)).
		WillReturnRows(pgxmock.NewRows(employeeCols).
			AddRow("c1", "Cy", "", "commissioned", nil, "1000", "0.1", "Postal", "PO Box 1", false, "mail", nil, nil).
			AddRow("h1", "Hal", "", "hourly", "20", nil, nil, "Cash", "", true, "", nil, nil))
	mock.ExpectQuery(q(queryListTimeRecords)).
		WillReturnRows(pgxmock.NewRows([]string{"employee_id", "work_date", "hours"}).
			AddRow("h1", "2024-01-02", "10").
			AddRow("h1", "2024-01-03", "8"))
	mock.ExpectQuery(q(queryListSalesReceipts)).
		WillReturnRows(pgxmock.NewRows([]string{"employee_id", "sale_date", "amount"}).
			AddRow("c1", "2024-01-15", "500"))
	mock.ExpectQuery(q(queryListServiceCharges)).
		WillReturnRows(pgxmock.NewRows([]string{"employee_id", "charge_date", "amount"}))
	mock.ExpectQuery(q(queryListBankAccounts)).
		WillReturnRows(pgxmock.NewRows([]string{"employee_id", "bank", "account"}).
			AddRow("h1", "First Bank", "123"))

	facts, err := store.ListEmployeesWithFacts(context.Background())
	require.NoError(t, err)
	require.Len(t, facts, 2)

	assert.Equal(t, payroll.EmployeeID("c1"), facts[0].Employee.ID)
	assert.Equal(t, payroll.RouteMail, facts[0].Employee.Route())
	require.Len(t, facts[0].SalesReceipts, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(facts[0].SalesReceipts[0].Amount))
	assert.Empty(t, facts[0].TimeRecords)

	assert.Equal(t, payroll.EmployeeID("h1"), facts[1].Employee.ID)
	assert.True(t, facts[1].Employee.Held)
	require.Len(t, facts[1].TimeRecords, 2)
	assert.Equal(t, payroll.NewDate(2024, 1, 2), facts[1].TimeRecords[0].Date)
	require.Len(t, facts[1].BankAccounts, 1)
	assert.Equal(t, "First Bank", facts[1].BankAccounts[0].Bank)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestPaymentDate(t *testing.T) {
	t.Parallel()

	t.Run("no payments", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(q(queryLatestPayment)).
			WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(""))

		_, ok, err := store.LatestPaymentDate(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("latest", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(q(queryLatestPayment)).
			WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow("2024-01-31"))

		d, ok, err := store.LatestPaymentDate(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, payroll.NewDate(2024, 1, 31), d)
	})
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	expectWriteLock(mock)
	mock.ExpectExec(q(queryInsertPayment)).
		WithArgs("p-1", "2024-01-31").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	boom := errors.New("sink failed")
	err := store.WithTx(context.Background(), func(repo payroll.Repository) error {
		if err := repo.RecordPayment(context.Background(), payroll.Payment{ID: "p-1", Date: payroll.NewDate(2024, 1, 31)}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commits(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	expectWriteLock(mock)
	mock.ExpectQuery(q(queryListPayments)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "pay_date"}).AddRow("p-1", "2024-01-31"))
	mock.ExpectCommit()

	var payments []payroll.Payment
	err := store.WithTx(context.Background(), func(repo payroll.Repository) error {
		var err error
		payments, err = repo.ListPayments(context.Background())
		return err
	})

	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "p-1", payments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RunsUnderWriteLock(t *testing.T) {
	// GIVEN: A payroll run's reads and writes inside WithTx
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	expectWriteLock(mock)
	mock.ExpectQuery(q(queryLatestPayment)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow("2024-01-31"))
	mock.ExpectExec(q(queryInsertPayment)).
		WithArgs("p-2", "2024-02-29").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	// WHEN: The run reads the latest payment and records its own
	err := store.WithTx(context.Background(), func(repo payroll.Repository) error {
		if _, _, err := repo.LatestPaymentDate(context.Background()); err != nil {
			return err
		}
		return repo.RecordPayment(context.Background(), payroll.Payment{ID: "p-2", Date: payroll.NewDate(2024, 2, 29)})
	})

	// THEN: The lock is taken before the first read
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_LockFailureRollsBack(t *testing.T) {
	t.Parallel()
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec(q(queryWriteLock)).
		WithArgs(writeLockKey).
		WillReturnError(errors.New("canceling statement due to lock timeout"))
	mock.ExpectRollback()

	called := false
	err := store.WithTx(context.Background(), func(payroll.Repository) error {
		called = true
		return nil
	})

	assert.ErrorContains(t, err, "acquire write lock")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslatePgError(t *testing.T) {
	t.Parallel()

	assert.True(t, payroll.IsNotFound(translatePgError(&pgconn.PgError{Code: foreignKeyViolationCode}, "e1")))
	assert.True(t, payroll.IsUserError(translatePgError(&pgconn.PgError{Code: uniqueViolationCode}, "e1")))
	assert.True(t, payroll.IsUserError(translatePgError(&pgconn.PgError{Code: checkViolationCode}, "e1")))
	assert.Nil(t, translatePgError(nil, "e1"))

	other := errors.New("other")
	assert.Same(t, other, translatePgError(other, "e1"))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	t.Parallel()

	up, err := Migrations.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS employees")
	assert.NotRegexp(t, `NUMERIC\(`, string(up), "amount columns are unconstrained NUMERIC")

	down, err := Migrations.ReadFile("migrations/000001_init.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP TABLE IF EXISTS employees")
}

func TestMigrate_RejectsUnknownAction(t *testing.T) {
	t.Parallel()
	_, err := Migrate("postgres://unused", "sideways")
	assert.Error(t, err)
}
