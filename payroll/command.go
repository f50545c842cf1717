/*
command.go - Employee mutation commands

PURPOSE:

	The only way employee attributes change. The command set is closed: every
	Command kind is listed in CommandKinds and handled by Processor.apply.

RATE COMMANDS:

	SetHourlyRate, SetMonthlySalary and SetCommission must target the variant
	the employee currently holds. A mismatch is rejected, never converted: the
	compensation scheme is fixed when the employee is added.

ATOMICITY:

	Each Apply is one read-modify-write. When the repository is a TxRepository
	it runs inside WithTx.

SEE ALSO:
  - factory/command.go: textual grammar -> Command
  - runner.go: consumes the state these commands maintain
*/
package payroll

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CommandKind names a command type.
type CommandKind string

const (
	CmdName         CommandKind = "Name"
	CmdAddress      CommandKind = "Address"
	CmdHourly       CommandKind = "Hourly"
	CmdSalaried     CommandKind = "Salaried"
	CmdCommissioned CommandKind = "Commissioned"
	CmdPayMethod    CommandKind = "PayMethod"
	CmdHold         CommandKind = "Hold"
	CmdDirect       CommandKind = "Direct"
	CmdMail         CommandKind = "Mail"
	CmdMember       CommandKind = "Member"
	CmdNoMember     CommandKind = "NoMember"
)

// CommandKinds lists every command the processor handles.
func CommandKinds() []CommandKind {
	return []CommandKind{
		CmdName, CmdAddress, CmdHourly, CmdSalaried, CmdCommissioned, CmdPayMethod,
		CmdHold, CmdDirect, CmdMail, CmdMember, CmdNoMember,
	}
}

// Command is implemented only by the types in this file.
type Command interface {
	Kind() CommandKind
	command()
}

type (
	SetName          struct{ Name string }
	SetAddress       struct{ Address string }
	SetHourlyRate    struct{ Rate decimal.Decimal }
	SetMonthlySalary struct{ Salary decimal.Decimal }

	// SetCommission always updates the rate; the base salary only when Salary is valid.
	SetCommission struct {
		Salary decimal.NullDecimal
		Rate   decimal.Decimal
	}

	SetPayMethod     struct{ Method PayMethod }
	Hold             struct{}
	SetDirectDeposit struct{ Bank, Account string }
	SetMailAddress   struct{ Address string }
	SetUnionMember   struct {
		MemberID string
		Dues     decimal.Decimal
	}
	ClearUnionMember struct{}
)

func (SetName) Kind() CommandKind          { return CmdName }
func (SetAddress) Kind() CommandKind       { return CmdAddress }
func (SetHourlyRate) Kind() CommandKind    { return CmdHourly }
func (SetMonthlySalary) Kind() CommandKind { return CmdSalaried }
func (SetCommission) Kind() CommandKind    { return CmdCommissioned }
func (SetPayMethod) Kind() CommandKind     { return CmdPayMethod }
func (Hold) Kind() CommandKind             { return CmdHold }
func (SetDirectDeposit) Kind() CommandKind { return CmdDirect }
func (SetMailAddress) Kind() CommandKind   { return CmdMail }
func (SetUnionMember) Kind() CommandKind   { return CmdMember }
func (ClearUnionMember) Kind() CommandKind { return CmdNoMember }

func (SetName) command()          {}
func (SetAddress) command()       {}
func (SetHourlyRate) command()    {}
func (SetMonthlySalary) command() {}
func (SetCommission) command()    {}
func (SetPayMethod) command()     {}
func (Hold) command()             {}
func (SetDirectDeposit) command() {}
func (SetMailAddress) command()   {}
func (SetUnionMember) command()   {}
func (ClearUnionMember) command() {}

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor applies commands and records facts against a Repository.
type Processor struct {
	repo Repository
}

// NewProcessor creates a processor over repo.
func NewProcessor(repo Repository) *Processor {
	return &Processor{repo: repo}
}

// Apply runs cmd against employee id as one atomic read-modify-write.
func (p *Processor) Apply(ctx context.Context, id EmployeeID, cmd Command) error {
	if cmd == nil {
		return &InternalError{Msg: "nil command"}
	}
	return withinTx(ctx, p.repo, func(repo Repository) error {
		emp, err := repo.GetEmployee(ctx, id)
		if err != nil {
			if _, ok := cmd.(ClearUnionMember); ok && IsNotFound(err) {
				return nil
			}
			return err
		}
		if err := p.apply(ctx, repo, emp, cmd); err != nil {
			return err
		}
		return repo.PutEmployee(ctx, *emp)
	})
}

func (p *Processor) apply(ctx context.Context, repo Repository, emp *Employee, cmd Command) error {
	op := string(cmd.Kind())

	switch c := cmd.(type) {
	case SetName:
		if strings.TrimSpace(c.Name) == "" {
			return userErrorf(op, "name must not be empty")
		}
		emp.Name = c.Name

	case SetAddress:
		emp.Address = c.Address

	case SetHourlyRate:
		h, ok := emp.Compensation.(Hourly)
		if !ok {
			return userErrorf(op, "employee %s is not hourly", emp.ID)
		}
		if err := checkNonNegative(op, "hourly rate", c.Rate); err != nil {
			return err
		}
		h.HourlyWage = valid(c.Rate)
		emp.Compensation = h

	case SetMonthlySalary:
		s, ok := emp.Compensation.(Salaried)
		if !ok {
			return userErrorf(op, "employee %s is not salaried", emp.ID)
		}
		if err := checkNonNegative(op, "monthly salary", c.Salary); err != nil {
			return err
		}
		s.MonthlySalary = valid(c.Salary)
		emp.Compensation = s

	case SetCommission:
		cm, ok := emp.Compensation.(Commissioned)
		if !ok {
			return userErrorf(op, "employee %s is not commissioned", emp.ID)
		}
		if err := checkNonNegative(op, "commission rate", c.Rate); err != nil {
			return err
		}
		cm.CommissionRate = valid(c.Rate)
		if c.Salary.Valid {
			if err := checkNonNegative(op, "monthly salary", c.Salary.Decimal); err != nil {
				return err
			}
			cm.BaseMonthlySalary = c.Salary
		}
		emp.Compensation = cm

	case SetPayMethod:
		if _, err := ParsePayMethod(string(c.Method)); err != nil {
			return err
		}
		emp.PayMethod = c.Method

	case Hold:
		emp.Held = true

	case SetDirectDeposit:
		if c.Bank == "" || c.Account == "" {
			return userErrorf(op, "bank and account are required")
		}
		if err := repo.AppendBankAccount(ctx, BankAccount{EmployeeID: emp.ID, Bank: c.Bank, Account: c.Account}); err != nil {
			return fmt.Errorf("append bank account: %w", err)
		}
		emp.Deposit = RouteDirect

	case SetMailAddress:
		if strings.TrimSpace(c.Address) == "" {
			return userErrorf(op, "mail address must not be empty")
		}
		emp.MailAddress = c.Address
		emp.Deposit = RouteMail

	case SetUnionMember:
		if c.MemberID == "" {
			return userErrorf(op, "member id is required")
		}
		if err := checkNonNegative(op, "dues rate", c.Dues); err != nil {
			return err
		}
		emp.Union = &UnionMembership{MemberID: c.MemberID, DuesRate: c.Dues}

	case ClearUnionMember:
		emp.Union = nil

	default:
		return &InternalError{Msg: fmt.Sprintf("no handler for command %T", cmd)}
	}
	return nil
}

// =============================================================================
// LIFECYCLE & FACTS
// =============================================================================

// AddEmployee creates a new employee. The compensation must come from one of
// the validating constructors.
func (p *Processor) AddEmployee(ctx context.Context, in NewEmployee) (*Employee, error) {
	const op = "AddEmployee"

	if in.ID == "" {
		return nil, userErrorf(op, "id is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, userErrorf(op, "name is required")
	}
	if in.Compensation == nil {
		return nil, userErrorf(op, "compensation is required")
	}
	if in.PayMethod != "" {
		if _, err := ParsePayMethod(string(in.PayMethod)); err != nil {
			return nil, err
		}
	}

	emp := Employee{
		ID:           in.ID,
		Name:         in.Name,
		Address:      in.Address,
		Compensation: in.Compensation,
		PayMethod:    in.PayMethod,
	}
	err := withinTx(ctx, p.repo, func(repo Repository) error {
		_, err := repo.GetEmployee(ctx, in.ID)
		switch {
		case err == nil:
			return userErrorf(op, "employee %s already exists", in.ID)
		case !IsNotFound(err):
			return err
		}
		return repo.PutEmployee(ctx, emp)
	})
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// DeleteEmployee hard-deletes an employee. There is no undo.
func (p *Processor) DeleteEmployee(ctx context.Context, id EmployeeID) error {
	return withinTx(ctx, p.repo, func(repo Repository) error {
		return repo.DeleteEmployee(ctx, id)
	})
}

// AddTimeCard records hours worked on a day.
func (p *Processor) AddTimeCard(ctx context.Context, rec TimeRecord) error {
	const op = "TimeCard"
	if !rec.Hours.IsPositive() || rec.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return userErrorf(op, "hours must be in (0, 24], got %s", rec.Hours)
	}
	if rec.Date.IsZero() {
		return userErrorf(op, "date is required")
	}
	return p.appendFact(ctx, rec.EmployeeID, func(repo Repository) error {
		return repo.AppendTimeRecord(ctx, rec)
	})
}

// AddSalesReceipt records a sale.
func (p *Processor) AddSalesReceipt(ctx context.Context, rec SalesReceipt) error {
	const op = "SalesReceipt"
	if err := checkNonNegative(op, "amount", rec.Amount); err != nil {
		return err
	}
	if rec.Date.IsZero() {
		return userErrorf(op, "date is required")
	}
	return p.appendFact(ctx, rec.EmployeeID, func(repo Repository) error {
		return repo.AppendSalesReceipt(ctx, rec)
	})
}

// AddServiceCharge records a union service charge.
func (p *Processor) AddServiceCharge(ctx context.Context, rec ServiceCharge) error {
	const op = "ServiceCharge"
	if err := checkNonNegative(op, "amount", rec.Amount); err != nil {
		return err
	}
	if rec.Date.IsZero() {
		return userErrorf(op, "date is required")
	}
	return p.appendFact(ctx, rec.EmployeeID, func(repo Repository) error {
		return repo.AppendServiceCharge(ctx, rec)
	})
}

func (p *Processor) appendFact(ctx context.Context, id EmployeeID, fn func(Repository) error) error {
	return withinTx(ctx, p.repo, func(repo Repository) error {
		if _, err := repo.GetEmployee(ctx, id); err != nil {
			return err
		}
		return fn(repo)
	})
}
