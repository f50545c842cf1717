// Package storetest holds the behavior every payroll.TxRepository must show.
// Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) payroll.TxRepository

// Run exercises repo behavior the processor and runner depend on.
func Run(t *testing.T, newRepo Factory) {
	t.Run("GetEmployee_NotFound", func(t *testing.T) { testGetNotFound(t, newRepo(t)) })
	t.Run("PutEmployee_RoundTrip", func(t *testing.T) { testPutRoundTrip(t, newRepo(t)) })
	t.Run("PutEmployee_Overwrites", func(t *testing.T) { testPutOverwrites(t, newRepo(t)) })
	t.Run("DeleteEmployee_CascadesFacts", func(t *testing.T) { testDeleteCascades(t, newRepo(t)) })
	t.Run("AppendFact_UnknownEmployee", func(t *testing.T) { testAppendUnknown(t, newRepo(t)) })
	t.Run("ListEmployeesWithFacts_Ordered", func(t *testing.T) { testListWithFacts(t, newRepo(t)) })
	t.Run("Payments", func(t *testing.T) { testPayments(t, newRepo(t)) })
	t.Run("WithTx_Rollback", func(t *testing.T) { testRollback(t, newRepo(t)) })
	t.Run("WithTx_Commit", func(t *testing.T) { testCommit(t, newRepo(t)) })
}

func hourly(t *testing.T, wage int64) payroll.Compensation {
	t.Helper()
	c, err := payroll.NewHourly(decimal.NewFromInt(wage))
	require.NoError(t, err)
	return c
}

func commissioned(t *testing.T, base int64, rate string) payroll.Compensation {
	t.Helper()
	c, err := payroll.NewCommissioned(decimal.NewFromInt(base), decimal.RequireFromString(rate))
	require.NoError(t, err)
	return c
}

func put(t *testing.T, repo payroll.Repository, emp payroll.Employee) {
	t.Helper()
	require.NoError(t, repo.PutEmployee(context.Background(), emp))
}

func testGetNotFound(t *testing.T, repo payroll.TxRepository) {
	_, err := repo.GetEmployee(context.Background(), "ghost")
	assert.True(t, payroll.IsNotFound(err), "got %v", err)

	var nf *payroll.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, payroll.EmployeeID("ghost"), nf.EmployeeID)
}

func testPutRoundTrip(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	emp := payroll.Employee{
		ID:           "c1",
		Name:         "Cora",
		Address:      "12 Elm St",
		Compensation: commissioned(t, 1000, "0.1"),
		PayMethod:    payroll.PayPostal,
		MailAddress:  "PO Box 9",
		Held:         true,
		Deposit:      payroll.RouteMail,
		Union:        &payroll.UnionMembership{MemberID: "u-42", DuesRate: decimal.RequireFromString("9.42")},
	}
	put(t, repo, emp)

	got, err := repo.GetEmployee(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, emp.Name, got.Name)
	assert.Equal(t, emp.Address, got.Address)
	assert.Equal(t, emp.PayMethod, got.PayMethod)
	assert.Equal(t, emp.MailAddress, got.MailAddress)
	assert.True(t, got.Held)
	assert.Equal(t, payroll.RouteHold, got.Route())

	c, ok := got.Compensation.(payroll.Commissioned)
	require.True(t, ok, "expected commissioned, got %T", got.Compensation)
	assert.True(t, decimal.NewFromInt(1000).Equal(c.BaseMonthlySalary.Decimal))
	assert.True(t, decimal.RequireFromString("0.1").Equal(c.CommissionRate.Decimal))

	require.NotNil(t, got.Union)
	assert.Equal(t, "u-42", got.Union.MemberID)
	assert.True(t, decimal.RequireFromString("9.42").Equal(got.Union.DuesRate))
}

func testPutOverwrites(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	emp := payroll.Employee{
		ID:           "h1",
		Name:         "Hal",
		Compensation: hourly(t, 20),
		Union:        &payroll.UnionMembership{MemberID: "u-1", DuesRate: decimal.NewFromInt(5)},
	}
	put(t, repo, emp)
	require.NoError(t, repo.AppendTimeRecord(ctx, payroll.TimeRecord{EmployeeID: "h1", Date: payroll.NewDate(2024, 1, 2), Hours: decimal.NewFromInt(8)}))

	emp.Name = "Harold"
	emp.Compensation = hourly(t, 25)
	emp.Union = nil
	put(t, repo, emp)

	got, err := repo.GetEmployee(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Harold", got.Name)
	assert.Nil(t, got.Union, "union membership cleared")
	assert.True(t, decimal.NewFromInt(25).Equal(got.Compensation.(payroll.Hourly).HourlyWage.Decimal))

	facts, err := repo.ListEmployeesWithFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Len(t, facts[0].TimeRecords, 1, "updating an employee keeps its facts")
}

func testDeleteCascades(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	put(t, repo, payroll.Employee{ID: "h1", Name: "Hal", Compensation: hourly(t, 20)})
	put(t, repo, payroll.Employee{ID: "h2", Name: "Hana", Compensation: hourly(t, 20)})
	day := payroll.NewDate(2024, 1, 2)
	require.NoError(t, repo.AppendTimeRecord(ctx, payroll.TimeRecord{EmployeeID: "h1", Date: day, Hours: decimal.NewFromInt(8)}))
	require.NoError(t, repo.AppendTimeRecord(ctx, payroll.TimeRecord{EmployeeID: "h2", Date: day, Hours: decimal.NewFromInt(4)}))

	require.NoError(t, repo.DeleteEmployee(ctx, "h1"))

	_, err := repo.GetEmployee(ctx, "h1")
	assert.True(t, payroll.IsNotFound(err))

	facts, err := repo.ListEmployeesWithFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, payroll.EmployeeID("h2"), facts[0].Employee.ID)
	assert.Len(t, facts[0].TimeRecords, 1)

	err = repo.DeleteEmployee(ctx, "h1")
	assert.True(t, payroll.IsNotFound(err), "second delete reports not found")
}

func testAppendUnknown(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	day := payroll.NewDate(2024, 1, 2)

	errs := []error{
		repo.AppendTimeRecord(ctx, payroll.TimeRecord{EmployeeID: "ghost", Date: day, Hours: decimal.NewFromInt(8)}),
		repo.AppendSalesReceipt(ctx, payroll.SalesReceipt{EmployeeID: "ghost", Date: day, Amount: decimal.NewFromInt(1)}),
		repo.AppendServiceCharge(ctx, payroll.ServiceCharge{EmployeeID: "ghost", Date: day, Amount: decimal.NewFromInt(1)}),
		repo.AppendBankAccount(ctx, payroll.BankAccount{EmployeeID: "ghost", Bank: "b", Account: "a"}),
	}
	for i, err := range errs {
		assert.True(t, payroll.IsNotFound(err), "append #%d: got %v", i, err)
	}
}

func testListWithFacts(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	put(t, repo, payroll.Employee{ID: "b", Name: "Bea", Compensation: commissioned(t, 1000, "0.1")})
	put(t, repo, payroll.Employee{ID: "a", Name: "Abe", Compensation: hourly(t, 20)})

	require.NoError(t, repo.AppendTimeRecord(ctx, payroll.TimeRecord{EmployeeID: "a", Date: payroll.NewDate(2024, 1, 3), Hours: decimal.RequireFromString("7.5")}))
	require.NoError(t, repo.AppendTimeRecord(ctx, payroll.TimeRecord{EmployeeID: "a", Date: payroll.NewDate(2024, 1, 2), Hours: decimal.NewFromInt(10)}))
	require.NoError(t, repo.AppendSalesReceipt(ctx, payroll.SalesReceipt{EmployeeID: "b", Date: payroll.NewDate(2024, 1, 15), Amount: decimal.RequireFromString("500.25")}))
	require.NoError(t, repo.AppendServiceCharge(ctx, payroll.ServiceCharge{EmployeeID: "b", Date: payroll.NewDate(2024, 1, 16), Amount: decimal.NewFromInt(12)}))
	require.NoError(t, repo.AppendBankAccount(ctx, payroll.BankAccount{EmployeeID: "b", Bank: "First", Account: "001"}))

	facts, err := repo.ListEmployeesWithFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	a, b := facts[0], facts[1]
	assert.Equal(t, payroll.EmployeeID("a"), a.Employee.ID)
	assert.Equal(t, payroll.EmployeeID("b"), b.Employee.ID)

	require.Len(t, a.TimeRecords, 2)
	hours := decimal.Zero
	for _, r := range a.TimeRecords {
		hours = hours.Add(r.Hours)
	}
	assert.True(t, decimal.RequireFromString("17.5").Equal(hours))
	earliest, ok := a.EarliestDate()
	assert.True(t, ok)
	assert.Equal(t, payroll.NewDate(2024, 1, 2), earliest)

	require.Len(t, b.SalesReceipts, 1)
	assert.True(t, decimal.RequireFromString("500.25").Equal(b.SalesReceipts[0].Amount))
	assert.Len(t, b.ServiceCharges, 1)
	require.Len(t, b.BankAccounts, 1)
	assert.Equal(t, "First", b.BankAccounts[0].Bank)

	list, err := repo.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, payroll.EmployeeID("a"), list[0].ID)
}

func testPayments(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()

	_, ok, err := repo.LatestPaymentDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.RecordPayment(ctx, payroll.Payment{ID: "11111111-1111-1111-1111-111111111111", Date: payroll.NewDate(2024, 2, 29)}))
	require.NoError(t, repo.RecordPayment(ctx, payroll.Payment{ID: "22222222-2222-2222-2222-222222222222", Date: payroll.NewDate(2024, 1, 31)}))

	latest, ok, err := repo.LatestPaymentDate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payroll.NewDate(2024, 2, 29), latest)

	payments, err := repo.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, payroll.NewDate(2024, 1, 31), payments[0].Date, "oldest first")
}

func testRollback(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	put(t, repo, payroll.Employee{ID: "h1", Name: "Hal", Compensation: hourly(t, 20)})

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx payroll.Repository) error {
		emp, err := tx.GetEmployee(ctx, "h1")
		if err != nil {
			return err
		}
		emp.Name = "Changed"
		if err := tx.PutEmployee(ctx, *emp); err != nil {
			return err
		}
		if err := tx.RecordPayment(ctx, payroll.Payment{ID: "33333333-3333-3333-3333-333333333333", Date: payroll.NewDate(2024, 1, 31)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.GetEmployee(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Hal", got.Name, "write inside failed tx discarded")

	_, ok, err := repo.LatestPaymentDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "payment inside failed tx discarded")
}

func testCommit(t *testing.T, repo payroll.TxRepository) {
	ctx := context.Background()
	err := repo.WithTx(ctx, func(tx payroll.Repository) error {
		return tx.PutEmployee(ctx, payroll.Employee{ID: "h1", Name: "Hal", Compensation: hourly(t, 20)})
	})
	require.NoError(t, err)

	_, err = repo.GetEmployee(ctx, "h1")
	assert.NoError(t, err)
}
