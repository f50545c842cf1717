/*
script.go - Batch payroll scripts

PURPOSE:
  A script is a text file with one instruction per line. It is how the
  command-line tool feeds a whole pay period into the engine.

INSTRUCTIONS:
  AddEmp <id> <name> <address> H <hourlyRate>
  AddEmp <id> <name> <address> S <monthlySalary>
  AddEmp <id> <name> <address> C <monthlySalary> <commissionRate>
  DelEmp <id>
  TimeCard <id> <YYYY-MM-DD> <hours>
  SalesReceipt <id> <YYYY-MM-DD> <amount>
  ServiceCharge <id> <YYYY-MM-DD> <amount>
  ChgEmp <id> <command>          (command grammar in command.go)
  Payday <YYYY-MM-DD>

  Blank lines and lines starting with # are ignored.

EXAMPLE:
  AddEmp c1 "Ada Lovelace" "12 Analytical Way" C 1000 0.1
  ChgEmp c1 PayMethod Cheque
  SalesReceipt c1 2024-01-15 500
  Payday 2024-01-31
*/
package factory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Target is what a script acts on.
type Target struct {
	Processor *payroll.Processor
	Runner    *payroll.Runner
}

// Instruction is one executable script line.
type Instruction interface {
	Exec(ctx context.Context, t Target) error
}

type (
	AddEmp        struct{ Employee payroll.NewEmployee }
	DelEmp        struct{ ID payroll.EmployeeID }
	TimeCard      struct{ Record payroll.TimeRecord }
	SalesReceipt  struct{ Receipt payroll.SalesReceipt }
	ServiceCharge struct{ Charge payroll.ServiceCharge }
	Payday        struct{ Date payroll.Date }

	ChgEmp struct {
		ID      payroll.EmployeeID
		Command payroll.Command
	}
)

func (i AddEmp) Exec(ctx context.Context, t Target) error {
	_, err := t.Processor.AddEmployee(ctx, i.Employee)
	return err
}

func (i DelEmp) Exec(ctx context.Context, t Target) error {
	return t.Processor.DeleteEmployee(ctx, i.ID)
}

func (i TimeCard) Exec(ctx context.Context, t Target) error {
	return t.Processor.AddTimeCard(ctx, i.Record)
}

func (i SalesReceipt) Exec(ctx context.Context, t Target) error {
	return t.Processor.AddSalesReceipt(ctx, i.Receipt)
}

func (i ServiceCharge) Exec(ctx context.Context, t Target) error {
	return t.Processor.AddServiceCharge(ctx, i.Charge)
}

func (i ChgEmp) Exec(ctx context.Context, t Target) error {
	return t.Processor.Apply(ctx, i.ID, i.Command)
}

func (i Payday) Exec(ctx context.Context, t Target) error {
	_, err := t.Runner.Run(ctx, i.Date)
	return err
}

// =============================================================================
// PARSING
// =============================================================================

// Line is a parsed script line.
type Line struct {
	No          int
	Text        string
	Instruction Instruction
}

// Script is a parsed script in file order.
type Script []Line

// ParseScript reads every instruction from r. The first malformed line aborts
// parsing; its error carries the line number.
func (f *CommandFactory) ParseScript(r io.Reader) (Script, error) {
	var script Script
	scanner := bufio.NewScanner(r)
	no := 0
	for scanner.Scan() {
		no++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		inst, err := f.ParseInstruction(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", no, err)
		}
		script = append(script, Line{No: no, Text: text, Instruction: inst})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return script, nil
}

// ParseInstruction parses a single script line.
func (f *CommandFactory) ParseInstruction(line string) (Instruction, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, parseErrorf("empty instruction")
	}
	verb, args := tokens[0], tokens[1:]

	switch strings.ToLower(verb) {
	case "addemp":
		return parseAddEmp(args)

	case "delemp":
		if len(args) != 1 {
			return nil, parseErrorf("DelEmp expects <id>")
		}
		return DelEmp{ID: payroll.EmployeeID(args[0])}, nil

	case "timecard":
		id, day, amount, err := parseFact("TimeCard", "hours", args)
		if err != nil {
			return nil, err
		}
		return TimeCard{Record: payroll.TimeRecord{EmployeeID: id, Date: day, Hours: amount}}, nil

	case "salesreceipt":
		id, day, amount, err := parseFact("SalesReceipt", "amount", args)
		if err != nil {
			return nil, err
		}
		return SalesReceipt{Receipt: payroll.SalesReceipt{EmployeeID: id, Date: day, Amount: amount}}, nil

	case "servicecharge":
		id, day, amount, err := parseFact("ServiceCharge", "amount", args)
		if err != nil {
			return nil, err
		}
		return ServiceCharge{Charge: payroll.ServiceCharge{EmployeeID: id, Date: day, Amount: amount}}, nil

	case "chgemp":
		if len(args) < 2 {
			return nil, parseErrorf("ChgEmp expects <id> <command>")
		}
		cmd, err := f.fromTokens(args[1:])
		if err != nil {
			return nil, err
		}
		return ChgEmp{ID: payroll.EmployeeID(args[0]), Command: cmd}, nil

	case "payday":
		if len(args) != 1 {
			return nil, parseErrorf("Payday expects <date>")
		}
		day, err := parseDay(args[0])
		if err != nil {
			return nil, err
		}
		return Payday{Date: day}, nil
	}
	return nil, parseErrorf("unknown instruction %q", verb)
}

func parseAddEmp(args []string) (Instruction, error) {
	if len(args) < 5 {
		return nil, parseErrorf("AddEmp expects <id> <name> <address> H|S|C <amounts>")
	}
	id, name, address, scheme, amounts := args[0], args[1], args[2], args[3], args[4:]

	var (
		comp payroll.Compensation
		err  error
	)
	switch strings.ToUpper(scheme) {
	case "H":
		if len(amounts) != 1 {
			return nil, parseErrorf("AddEmp H expects <hourlyRate>")
		}
		rate, perr := parseAmount("hourly rate", amounts[0])
		if perr != nil {
			return nil, perr
		}
		comp, err = payroll.NewHourly(rate)
	case "S":
		if len(amounts) != 1 {
			return nil, parseErrorf("AddEmp S expects <monthlySalary>")
		}
		salary, perr := parseAmount("salary", amounts[0])
		if perr != nil {
			return nil, perr
		}
		comp, err = payroll.NewSalaried(salary)
	case "C":
		if len(amounts) != 2 {
			return nil, parseErrorf("AddEmp C expects <monthlySalary> <commissionRate>")
		}
		salary, perr := parseAmount("salary", amounts[0])
		if perr != nil {
			return nil, perr
		}
		rate, perr := parseAmount("commission rate", amounts[1])
		if perr != nil {
			return nil, perr
		}
		comp, err = payroll.NewCommissioned(salary, rate)
	default:
		return nil, parseErrorf("unknown compensation scheme %q", scheme)
	}
	if err != nil {
		return nil, err
	}

	return AddEmp{Employee: payroll.NewEmployee{
		ID:           payroll.EmployeeID(id),
		Name:         name,
		Address:      address,
		Compensation: comp,
	}}, nil
}

func parseFact(verb, field string, args []string) (payroll.EmployeeID, payroll.Date, decimal.Decimal, error) {
	if len(args) != 3 {
		return "", payroll.Date{}, decimal.Zero, parseErrorf("%s expects <id> <date> <%s>", verb, field)
	}
	day, err := parseDay(args[1])
	if err != nil {
		return "", payroll.Date{}, decimal.Zero, err
	}
	amount, err := parseAmount(field, args[2])
	if err != nil {
		return "", payroll.Date{}, decimal.Zero, err
	}
	return payroll.EmployeeID(args[0]), day, amount, nil
}

func parseDay(s string) (payroll.Date, error) {
	d, err := payroll.ParseDate(s)
	if err != nil {
		return payroll.Date{}, parseErrorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// =============================================================================
// EXECUTION
// =============================================================================

// ExecOptions control script execution.
type ExecOptions struct {
	// ContinueOnError logs user errors and moves on to the next line.
	// Data and internal errors always stop the script.
	ContinueOnError bool
	Logger          *slog.Logger
}

// ExecResult summarizes a script execution.
type ExecResult struct {
	Executed int
	Failed   int
}

// Exec runs every line in order.
func (s Script) Exec(ctx context.Context, t Target, opts ExecOptions) (ExecResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var res ExecResult
	for _, line := range s {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := line.Instruction.Exec(ctx, t)
		if err == nil {
			res.Executed++
			continue
		}
		res.Failed++
		if opts.ContinueOnError && payroll.IsUserError(err) {
			logger.Warn("script line rejected", "line", line.No, "text", line.Text, "error", err)
			continue
		}
		return res, fmt.Errorf("line %d (%s): %w", line.No, line.Text, err)
	}
	return res, nil
}
