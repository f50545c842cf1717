/*
Package factory converts textual and JSON command definitions into payroll
commands.

PURPOSE:
  Employee changes arrive as short text lines (batch scripts, the CLI, the
  HTTP API) or as JSON objects (the HTTP API). The factory turns either form
  into a payroll.Command so the processor only ever sees typed values.

TEXT GRAMMAR:
  Name <name>
  Address <address>
  Hourly <rate>
  Salaried <amount>
  Commissioned <amount> <rate>     (or Commissioned <rate> to keep the salary)
  PayMethod Cash|Cheque|Postal
  Hold
  Direct <bank> <account>
  Mail <address>
  Member <memberId> Dues <rate>
  NoMember

  Verbs are case-insensitive. Arguments containing spaces are double-quoted;
  inside quotes \" and \\ are escapes. Name, Address and Mail also accept
  several bare words, which are joined with single spaces.

JSON SCHEMA:
  {"kind": "Commissioned", "salary": "1500", "rate": "0.05"}
  {"kind": "Direct", "bank": "First Bank", "account": "12345"}
  {"kind": "Member", "member_id": "U-7", "rate": "0.02"}

ERRORS:
  Unknown verbs, wrong argument counts and malformed numbers are returned as
  *payroll.UserError.

USAGE:
  f := factory.NewCommandFactory()
  cmd, err := f.ParseCommand(`Name "Ada Lovelace"`)
  err = processor.Apply(ctx, id, cmd)

SEE ALSO:
  - payroll/command.go: Command types and the processor
  - factory/script.go: batch scripts built on ParseCommand
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CommandJSON is the JSON representation of a command. Only the fields the
// kind uses are read.
type CommandJSON struct {
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
	Rate     string `json:"rate,omitempty"`   // hourly rate, commission rate or dues rate
	Salary   string `json:"salary,omitempty"` // monthly salary; optional for Commissioned
	Method   string `json:"method,omitempty"`
	Bank     string `json:"bank,omitempty"`
	Account  string `json:"account,omitempty"`
	MemberID string `json:"member_id,omitempty"`
}

// =============================================================================
// COMMAND FACTORY
// =============================================================================

// CommandFactory converts text and JSON into payroll commands.
type CommandFactory struct{}

// NewCommandFactory creates a new command factory.
func NewCommandFactory() *CommandFactory {
	return &CommandFactory{}
}

// ParseCommand parses one command line.
func (f *CommandFactory) ParseCommand(line string) (payroll.Command, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, parseErrorf("empty command")
	}
	return f.fromTokens(tokens)
}

// ParseJSON parses a JSON command object.
func (f *CommandFactory) ParseJSON(data []byte) (payroll.Command, error) {
	var cj CommandJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, parseErrorf("invalid command JSON: %v", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts CommandJSON to a payroll.Command.
func (f *CommandFactory) FromJSON(cj CommandJSON) (payroll.Command, error) {
	kind, err := parseKind(cj.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case payroll.CmdName:
		return payroll.SetName{Name: cj.Name}, nil
	case payroll.CmdAddress:
		return payroll.SetAddress{Address: cj.Address}, nil
	case payroll.CmdHourly:
		rate, err := parseAmount("rate", cj.Rate)
		if err != nil {
			return nil, err
		}
		return payroll.SetHourlyRate{Rate: rate}, nil
	case payroll.CmdSalaried:
		salary, err := parseAmount("salary", cj.Salary)
		if err != nil {
			return nil, err
		}
		return payroll.SetMonthlySalary{Salary: salary}, nil
	case payroll.CmdCommissioned:
		rate, err := parseAmount("rate", cj.Rate)
		if err != nil {
			return nil, err
		}
		cmd := payroll.SetCommission{Rate: rate}
		if cj.Salary != "" {
			salary, err := parseAmount("salary", cj.Salary)
			if err != nil {
				return nil, err
			}
			cmd.Salary = decimal.NewNullDecimal(salary)
		}
		return cmd, nil
	case payroll.CmdPayMethod:
		method, err := payroll.ParsePayMethod(cj.Method)
		if err != nil {
			return nil, err
		}
		return payroll.SetPayMethod{Method: method}, nil
	case payroll.CmdHold:
		return payroll.Hold{}, nil
	case payroll.CmdDirect:
		return payroll.SetDirectDeposit{Bank: cj.Bank, Account: cj.Account}, nil
	case payroll.CmdMail:
		return payroll.SetMailAddress{Address: cj.Address}, nil
	case payroll.CmdMember:
		dues, err := parseAmount("rate", cj.Rate)
		if err != nil {
			return nil, err
		}
		return payroll.SetUnionMember{MemberID: cj.MemberID, Dues: dues}, nil
	case payroll.CmdNoMember:
		return payroll.ClearUnionMember{}, nil
	}
	return nil, parseErrorf("unsupported command kind %q", cj.Kind)
}

func (f *CommandFactory) fromTokens(tokens []string) (payroll.Command, error) {
	kind, err := parseKind(tokens[0])
	if err != nil {
		return nil, err
	}
	args := tokens[1:]

	switch kind {
	case payroll.CmdName:
		text, err := freeText(kind, args)
		if err != nil {
			return nil, err
		}
		return payroll.SetName{Name: text}, nil

	case payroll.CmdAddress:
		text, err := freeText(kind, args)
		if err != nil {
			return nil, err
		}
		return payroll.SetAddress{Address: text}, nil

	case payroll.CmdHourly:
		if err := wantArgs(kind, args, 1); err != nil {
			return nil, err
		}
		rate, err := parseAmount("rate", args[0])
		if err != nil {
			return nil, err
		}
		return payroll.SetHourlyRate{Rate: rate}, nil

	case payroll.CmdSalaried:
		if err := wantArgs(kind, args, 1); err != nil {
			return nil, err
		}
		salary, err := parseAmount("salary", args[0])
		if err != nil {
			return nil, err
		}
		return payroll.SetMonthlySalary{Salary: salary}, nil

	case payroll.CmdCommissioned:
		switch len(args) {
		case 1:
			rate, err := parseAmount("rate", args[0])
			if err != nil {
				return nil, err
			}
			return payroll.SetCommission{Rate: rate}, nil
		case 2:
			salary, err := parseAmount("salary", args[0])
			if err != nil {
				return nil, err
			}
			rate, err := parseAmount("rate", args[1])
			if err != nil {
				return nil, err
			}
			return payroll.SetCommission{Salary: decimal.NewNullDecimal(salary), Rate: rate}, nil
		}
		return nil, parseErrorf("%s expects <amount> <rate> or <rate>, got %d arguments", kind, len(args))

	case payroll.CmdPayMethod:
		if err := wantArgs(kind, args, 1); err != nil {
			return nil, err
		}
		method, err := payroll.ParsePayMethod(args[0])
		if err != nil {
			return nil, err
		}
		return payroll.SetPayMethod{Method: method}, nil

	case payroll.CmdHold:
		if err := wantArgs(kind, args, 0); err != nil {
			return nil, err
		}
		return payroll.Hold{}, nil

	case payroll.CmdDirect:
		if err := wantArgs(kind, args, 2); err != nil {
			return nil, err
		}
		return payroll.SetDirectDeposit{Bank: args[0], Account: args[1]}, nil

	case payroll.CmdMail:
		text, err := freeText(kind, args)
		if err != nil {
			return nil, err
		}
		return payroll.SetMailAddress{Address: text}, nil

	case payroll.CmdMember:
		if len(args) != 3 || !strings.EqualFold(args[1], "Dues") {
			return nil, parseErrorf("%s expects <memberId> Dues <rate>", kind)
		}
		dues, err := parseAmount("dues", args[2])
		if err != nil {
			return nil, err
		}
		return payroll.SetUnionMember{MemberID: args[0], Dues: dues}, nil

	case payroll.CmdNoMember:
		if err := wantArgs(kind, args, 0); err != nil {
			return nil, err
		}
		return payroll.ClearUnionMember{}, nil
	}
	return nil, parseErrorf("unsupported command %q", tokens[0])
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatCommand renders cmd in the text grammar. ParseCommand(FormatCommand(c))
// yields a command equal to c.
func FormatCommand(cmd payroll.Command) string {
	switch c := cmd.(type) {
	case payroll.SetName:
		return join(payroll.CmdName, quote(c.Name))
	case payroll.SetAddress:
		return join(payroll.CmdAddress, quote(c.Address))
	case payroll.SetHourlyRate:
		return join(payroll.CmdHourly, c.Rate.String())
	case payroll.SetMonthlySalary:
		return join(payroll.CmdSalaried, c.Salary.String())
	case payroll.SetCommission:
		if c.Salary.Valid {
			return join(payroll.CmdCommissioned, c.Salary.Decimal.String(), c.Rate.String())
		}
		return join(payroll.CmdCommissioned, c.Rate.String())
	case payroll.SetPayMethod:
		return join(payroll.CmdPayMethod, string(c.Method))
	case payroll.Hold:
		return string(payroll.CmdHold)
	case payroll.SetDirectDeposit:
		return join(payroll.CmdDirect, quote(c.Bank), quote(c.Account))
	case payroll.SetMailAddress:
		return join(payroll.CmdMail, quote(c.Address))
	case payroll.SetUnionMember:
		return join(payroll.CmdMember, quote(c.MemberID), "Dues", c.Dues.String())
	case payroll.ClearUnionMember:
		return string(payroll.CmdNoMember)
	}
	return fmt.Sprintf("<%T>", cmd)
}

func join(kind payroll.CommandKind, args ...string) string {
	return string(kind) + " " + strings.Join(args, " ")
}

// quote wraps s in double quotes when it would not survive as a single bare token.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// =============================================================================
// HELPERS
// =============================================================================

func parseKind(verb string) (payroll.CommandKind, error) {
	for _, k := range payroll.CommandKinds() {
		if strings.EqualFold(verb, string(k)) {
			return k, nil
		}
	}
	return "", parseErrorf("unknown command %q", verb)
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, parseErrorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, parseErrorf("invalid %s %q", field, s)
	}
	return d, nil
}

func wantArgs(kind payroll.CommandKind, args []string, n int) error {
	if len(args) != n {
		return parseErrorf("%s expects %d arguments, got %d", kind, n, len(args))
	}
	return nil
}

func freeText(kind payroll.CommandKind, args []string) (string, error) {
	if len(args) == 0 {
		return "", parseErrorf("%s expects an argument", kind)
	}
	return strings.Join(args, " "), nil
}

func parseErrorf(format string, args ...any) error {
	return &payroll.UserError{Op: "parse", Msg: fmt.Sprintf(format, args...)}
}

// Tokenize splits a line on whitespace, keeping double-quoted runs together.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inQuote bool
		escaped bool
		started bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}

	if inQuote || escaped {
		return nil, parseErrorf("unterminated quote in %q", line)
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
