package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestProcessor(t *testing.T) (*payroll.Processor, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	return payroll.NewProcessor(repo), repo
}

func addHourly(t *testing.T, p *payroll.Processor, id, wage string) {
	t.Helper()
	comp, err := payroll.NewHourly(dec(wage))
	require.NoError(t, err)
	_, err = p.AddEmployee(context.Background(), payroll.NewEmployee{
		ID: payroll.EmployeeID(id), Name: "Hourly " + id, Compensation: comp, PayMethod: payroll.PayCheque,
	})
	require.NoError(t, err)
}

func addSalaried(t *testing.T, p *payroll.Processor, id, salary string) {
	t.Helper()
	comp, err := payroll.NewSalaried(dec(salary))
	require.NoError(t, err)
	_, err = p.AddEmployee(context.Background(), payroll.NewEmployee{
		ID: payroll.EmployeeID(id), Name: "Salaried " + id, Compensation: comp, PayMethod: payroll.PayCash,
	})
	require.NoError(t, err)
}

func addCommissioned(t *testing.T, p *payroll.Processor, id, base, rate string) {
	t.Helper()
	comp, err := payroll.NewCommissioned(dec(base), dec(rate))
	require.NoError(t, err)
	_, err = p.AddEmployee(context.Background(), payroll.NewEmployee{
		ID: payroll.EmployeeID(id), Name: "Commissioned " + id, Compensation: comp, PayMethod: payroll.PayPostal,
	})
	require.NoError(t, err)
}

// sampleCommand returns a well-formed command of each kind, suitable for a
// commissioned employee.
func sampleCommand(kind payroll.CommandKind) payroll.Command {
	switch kind {
	case payroll.CmdName:
		return payroll.SetName{Name: "Renamed"}
	case payroll.CmdAddress:
		return payroll.SetAddress{Address: "1 Main St"}
	case payroll.CmdHourly:
		return payroll.SetHourlyRate{Rate: dec("30")}
	case payroll.CmdSalaried:
		return payroll.SetMonthlySalary{Salary: dec("4000")}
	case payroll.CmdCommissioned:
		return payroll.SetCommission{Rate: dec("0.2")}
	case payroll.CmdPayMethod:
		return payroll.SetPayMethod{Method: payroll.PayCash}
	case payroll.CmdHold:
		return payroll.Hold{}
	case payroll.CmdDirect:
		return payroll.SetDirectDeposit{Bank: "First Bank", Account: "12345"}
	case payroll.CmdMail:
		return payroll.SetMailAddress{Address: "PO Box 9"}
	case payroll.CmdMember:
		return payroll.SetUnionMember{MemberID: "U-7", Dues: dec("0.02")}
	case payroll.CmdNoMember:
		return payroll.ClearUnionMember{}
	}
	return nil
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestProcessor_EveryCommandKindHasHandler(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t)
	addCommissioned(t, p, "c1", "1000", "0.1")

	for _, kind := range payroll.CommandKinds() {
		cmd := sampleCommand(kind)
		require.NotNil(t, cmd, "no sample for %s", kind)
		assert.Equal(t, kind, cmd.Kind())

		err := p.Apply(ctx, "c1", cmd)
		assert.False(t, payroll.IsInternal(err), "%s reached the fallback: %v", kind, err)
	}
}

func TestProcessor_NilCommand_IsInternal(t *testing.T) {
	p, _ := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	err := p.Apply(context.Background(), "h1", nil)
	assert.True(t, payroll.IsInternal(err))
}

func TestProcessor_UnknownEmployee_NotFound(t *testing.T) {
	p, _ := newTestProcessor(t)

	err := p.Apply(context.Background(), "ghost", payroll.SetName{Name: "x"})
	assert.True(t, payroll.IsNotFound(err))
	assert.True(t, payroll.IsUserError(err))
}

// =============================================================================
// RATE COMMANDS
// =============================================================================

func TestProcessor_SetHourlyRate_OnSalaried_Rejected(t *testing.T) {
	// GIVEN: A salaried employee
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addSalaried(t, p, "s1", "3000")

	// WHEN: An hourly rate is set
	err := p.Apply(ctx, "s1", payroll.SetHourlyRate{Rate: dec("25")})

	// THEN: User error, compensation untouched
	require.Error(t, err)
	assert.True(t, payroll.IsUserError(err))
	assert.Contains(t, err.Error(), "not hourly")

	emp, err := repo.GetEmployee(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, payroll.KindSalaried, emp.Compensation.Kind())
}

func TestProcessor_RateCommands_RejectWrongVariant(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t)
	addHourly(t, p, "h1", "20")
	addSalaried(t, p, "s1", "3000")
	addCommissioned(t, p, "c1", "1000", "0.1")

	cases := []struct {
		id  payroll.EmployeeID
		cmd payroll.Command
	}{
		{"h1", payroll.SetMonthlySalary{Salary: dec("1")}},
		{"h1", payroll.SetCommission{Rate: dec("0.1")}},
		{"s1", payroll.SetCommission{Rate: dec("0.1")}},
		{"c1", payroll.SetHourlyRate{Rate: dec("1")}},
		{"c1", payroll.SetMonthlySalary{Salary: dec("1")}},
	}
	for _, c := range cases {
		err := p.Apply(ctx, c.id, c.cmd)
		assert.True(t, payroll.IsUserError(err), "%s on %s: %v", c.cmd.Kind(), c.id, err)
	}
}

func TestProcessor_SetHourlyRate_UsedByNextRun(t *testing.T) {
	// GIVEN: An hourly employee at 20/h with one 8-hour day
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addHourly(t, p, "h1", "20")
	require.NoError(t, p.AddTimeCard(ctx, payroll.TimeRecord{
		EmployeeID: "h1", Date: date(2024, time.January, 10), Hours: dec("8"),
	}))

	// WHEN: The rate becomes 25 before payday
	require.NoError(t, p.Apply(ctx, "h1", payroll.SetHourlyRate{Rate: dec("25")}))

	// THEN: The run pays 8*25
	res, err := payroll.NewRunner(repo, nil, payroll.RunnerOptions{}).Run(ctx, date(2024, time.January, 31))
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].Amount.Equal(dec("200")), "got %s", res.Lines[0].Amount)
}

func TestProcessor_SetHourlyRate_Negative_Rejected(t *testing.T) {
	p, _ := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	err := p.Apply(context.Background(), "h1", payroll.SetHourlyRate{Rate: dec("-1")})
	assert.True(t, payroll.IsUserError(err))
}

func TestProcessor_SetCommission_KeepsSalaryUnlessGiven(t *testing.T) {
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addCommissioned(t, p, "c1", "1000", "0.1")

	// Rate only
	require.NoError(t, p.Apply(ctx, "c1", payroll.SetCommission{Rate: dec("0.2")}))
	emp, _ := repo.GetEmployee(ctx, "c1")
	comm := emp.Compensation.(payroll.Commissioned)
	assert.True(t, comm.CommissionRate.Decimal.Equal(dec("0.2")))
	assert.True(t, comm.BaseMonthlySalary.Decimal.Equal(dec("1000")))

	// Rate and salary
	require.NoError(t, p.Apply(ctx, "c1", payroll.SetCommission{
		Salary: decimal.NewNullDecimal(dec("1500")),
		Rate:   dec("0.05"),
	}))
	emp, _ = repo.GetEmployee(ctx, "c1")
	comm = emp.Compensation.(payroll.Commissioned)
	assert.True(t, comm.CommissionRate.Decimal.Equal(dec("0.05")))
	assert.True(t, comm.BaseMonthlySalary.Decimal.Equal(dec("1500")))
}

// =============================================================================
// DISBURSEMENT & UNION
// =============================================================================

func TestProcessor_Direct_AppendsBankAccount(t *testing.T) {
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	require.NoError(t, p.Apply(ctx, "h1", payroll.SetDirectDeposit{Bank: "A", Account: "1"}))
	require.NoError(t, p.Apply(ctx, "h1", payroll.SetDirectDeposit{Bank: "B", Account: "2"}))

	rows, err := repo.ListEmployeesWithFacts(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].BankAccounts, 2)
	assert.Equal(t, payroll.RouteDirect, rows[0].Employee.Route())
}

func TestProcessor_Direct_MissingAccount_RollsBack(t *testing.T) {
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	err := p.Apply(ctx, "h1", payroll.SetDirectDeposit{Bank: "A"})
	assert.True(t, payroll.IsUserError(err))

	rows, _ := repo.ListEmployeesWithFacts(ctx)
	assert.Empty(t, rows[0].BankAccounts)
	assert.Equal(t, payroll.RoutePaymaster, rows[0].Employee.Route())
}

func TestProcessor_Hold_OverridesDeposit(t *testing.T) {
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	require.NoError(t, p.Apply(ctx, "h1", payroll.SetMailAddress{Address: "PO Box 1"}))
	emp, _ := repo.GetEmployee(ctx, "h1")
	assert.Equal(t, payroll.RouteMail, emp.Route())
	assert.Equal(t, "PO Box 1", emp.MailAddress)

	require.NoError(t, p.Apply(ctx, "h1", payroll.Hold{}))
	emp, _ = repo.GetEmployee(ctx, "h1")
	assert.True(t, emp.Held)
	assert.Equal(t, payroll.RouteHold, emp.Route())
}

func TestProcessor_UnionMembership(t *testing.T) {
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addSalaried(t, p, "s1", "3000")

	require.NoError(t, p.Apply(ctx, "s1", payroll.SetUnionMember{MemberID: "U-1", Dues: dec("9.42")}))
	emp, _ := repo.GetEmployee(ctx, "s1")
	require.NotNil(t, emp.Union)
	assert.Equal(t, "U-1", emp.Union.MemberID)

	require.NoError(t, p.Apply(ctx, "s1", payroll.ClearUnionMember{}))
	emp, _ = repo.GetEmployee(ctx, "s1")
	assert.Nil(t, emp.Union)

	// Clearing twice is a no-op
	require.NoError(t, p.Apply(ctx, "s1", payroll.ClearUnionMember{}))
}

func TestProcessor_ClearUnionMember_UnknownEmployee_NoOp(t *testing.T) {
	p, _ := newTestProcessor(t)

	err := p.Apply(context.Background(), "ghost", payroll.ClearUnionMember{})
	assert.NoError(t, err)
}

func TestProcessor_SetPayMethod_Unknown_Rejected(t *testing.T) {
	p, _ := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	err := p.Apply(context.Background(), "h1", payroll.SetPayMethod{Method: "Bitcoin"})
	assert.True(t, payroll.IsUserError(err))
}

// =============================================================================
// LIFECYCLE & FACTS
// =============================================================================

func TestProcessor_AddEmployee_Duplicate_Rejected(t *testing.T) {
	p, _ := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	comp, _ := payroll.NewSalaried(dec("1"))
	_, err := p.AddEmployee(context.Background(), payroll.NewEmployee{ID: "h1", Name: "Dup", Compensation: comp})
	require.Error(t, err)
	assert.True(t, payroll.IsUserError(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestProcessor_AddEmployee_MissingFields_Rejected(t *testing.T) {
	p, _ := newTestProcessor(t)
	comp, _ := payroll.NewHourly(dec("10"))

	for name, in := range map[string]payroll.NewEmployee{
		"no id":           {Name: "A", Compensation: comp},
		"no name":         {ID: "e1", Compensation: comp},
		"no compensation": {ID: "e1", Name: "A"},
		"bad method":      {ID: "e1", Name: "A", Compensation: comp, PayMethod: "Gold"},
	} {
		_, err := p.AddEmployee(context.Background(), in)
		assert.True(t, payroll.IsUserError(err), name)
	}
}

func TestProcessor_DeleteEmployee(t *testing.T) {
	ctx := context.Background()
	p, repo := newTestProcessor(t)
	addHourly(t, p, "h1", "20")

	require.NoError(t, p.DeleteEmployee(ctx, "h1"))

	_, err := repo.GetEmployee(ctx, "h1")
	assert.True(t, payroll.IsNotFound(err))
	assert.True(t, payroll.IsNotFound(p.DeleteEmployee(ctx, "h1")))
}

func TestProcessor_Facts_Validation(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t)
	addHourly(t, p, "h1", "20")
	day := date(2024, time.March, 4)

	assert.True(t, payroll.IsUserError(p.AddTimeCard(ctx, payroll.TimeRecord{EmployeeID: "h1", Date: day, Hours: dec("0")})))
	assert.True(t, payroll.IsUserError(p.AddTimeCard(ctx, payroll.TimeRecord{EmployeeID: "h1", Date: day, Hours: dec("24.5")})))
	assert.True(t, payroll.IsUserError(p.AddTimeCard(ctx, payroll.TimeRecord{EmployeeID: "h1", Hours: dec("8")})))
	assert.True(t, payroll.IsUserError(p.AddSalesReceipt(ctx, payroll.SalesReceipt{EmployeeID: "h1", Date: day, Amount: dec("-5")})))
	assert.True(t, payroll.IsUserError(p.AddServiceCharge(ctx, payroll.ServiceCharge{EmployeeID: "h1", Date: day, Amount: dec("-5")})))

	assert.NoError(t, p.AddTimeCard(ctx, payroll.TimeRecord{EmployeeID: "h1", Date: day, Hours: dec("24")}))
	assert.NoError(t, p.AddServiceCharge(ctx, payroll.ServiceCharge{EmployeeID: "h1", Date: day, Amount: dec("12.5")}))
}

func TestProcessor_Facts_UnknownEmployee_NotFound(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t)
	day := date(2024, time.March, 4)

	assert.True(t, payroll.IsNotFound(p.AddTimeCard(ctx, payroll.TimeRecord{EmployeeID: "x", Date: day, Hours: dec("8")})))
	assert.True(t, payroll.IsNotFound(p.AddSalesReceipt(ctx, payroll.SalesReceipt{EmployeeID: "x", Date: day, Amount: dec("5")})))
	assert.True(t, payroll.IsNotFound(p.AddServiceCharge(ctx, payroll.ServiceCharge{EmployeeID: "x", Date: day, Amount: dec("5")})))
}
