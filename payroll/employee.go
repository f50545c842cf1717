package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string

// =============================================================================
// PAY METHOD & DISBURSEMENT
// =============================================================================

// PayMethod is the payment instrument. The zero value means "not yet assigned".
type PayMethod string

const (
	PayCash   PayMethod = "Cash"
	PayCheque PayMethod = "Cheque"
	PayPostal PayMethod = "Postal"
)

// ParsePayMethod accepts the method names case-insensitively.
func ParsePayMethod(s string) (PayMethod, error) {
	for _, m := range []PayMethod{PayCash, PayCheque, PayPostal} {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", userErrorf("PayMethod", "unknown pay method %q", s)
}

func (m PayMethod) String() string {
	if m == "" {
		return "Unassigned"
	}
	return string(m)
}

// DisbursementRoute is how pay physically reaches the employee. It is
// orthogonal to the compensation variant.
type DisbursementRoute string

const (
	RoutePaymaster DisbursementRoute = "paymaster" // handed out by the payroll clerk
	RouteHold      DisbursementRoute = "hold"      // withheld until released
	RouteDirect    DisbursementRoute = "direct"    // direct deposit to a bank account
	RouteMail      DisbursementRoute = "mail"      // cheque mailed to MailAddress
)

// =============================================================================
// EMPLOYEE
// =============================================================================

// UnionMembership links an employee to the union and its dues rate.
type UnionMembership struct {
	MemberID string
	DuesRate decimal.Decimal
}

// Employee is the mutable employee record. Attributes change only through
// commands; see command.go.
type Employee struct {
	ID           EmployeeID
	Name         string
	Address      string
	Compensation Compensation
	PayMethod    PayMethod
	MailAddress  string
	Held         bool

	// Deposit is the route picked by the last Direct or Mail command.
	Deposit DisbursementRoute

	Union *UnionMembership
}

// Route returns the effective disbursement route.
func (e Employee) Route() DisbursementRoute {
	switch {
	case e.Held:
		return RouteHold
	case e.Deposit != "":
		return e.Deposit
	default:
		return RoutePaymaster
	}
}

// Clone returns a deep copy safe to hand out of a store.
func (e Employee) Clone() Employee {
	if e.Union != nil {
		u := *e.Union
		e.Union = &u
	}
	return e
}

// NewEmployee is the input of AddEmployee.
type NewEmployee struct {
	ID           EmployeeID
	Name         string
	Address      string
	Compensation Compensation
	PayMethod    PayMethod
}

// =============================================================================
// FACTS - Append-only inputs owned by an employee
// =============================================================================

// TimeRecord is one day of hours worked.
type TimeRecord struct {
	EmployeeID EmployeeID
	Date       Date
	Hours      decimal.Decimal
}

// SalesReceipt is one sale credited to a commissioned employee.
type SalesReceipt struct {
	EmployeeID EmployeeID
	Date       Date
	Amount     decimal.Decimal
}

// ServiceCharge is a union-related deduction input. It is recorded but not
// consumed by the pay formulas.
type ServiceCharge struct {
	EmployeeID EmployeeID
	Date       Date
	Amount     decimal.Decimal
}

// BankAccount is a direct-deposit destination.
type BankAccount struct {
	EmployeeID EmployeeID
	Bank       string
	Account    string
}

// EmployeeFacts is one row of the payroll snapshot.
type EmployeeFacts struct {
	Employee       Employee
	TimeRecords    []TimeRecord
	SalesReceipts  []SalesReceipt
	ServiceCharges []ServiceCharge
	BankAccounts   []BankAccount
}

// EarliestDate returns the earliest time-card or receipt date, if any.
func (f EmployeeFacts) EarliestDate() (Date, bool) {
	var earliest Date
	found := false
	consider := func(d Date) {
		if !found || d.Before(earliest) {
			earliest, found = d, true
		}
	}
	for _, r := range f.TimeRecords {
		consider(r.Date)
	}
	for _, r := range f.SalesReceipts {
		consider(r.Date)
	}
	return earliest, found
}

// Payment marks one completed payroll run.
type Payment struct {
	ID   string
	Date Date
}

func (p Payment) String() string {
	return fmt.Sprintf("payment %s on %s", p.ID, p.Date)
}
