/*
compensation.go - How an employee is paid

PURPOSE:

	Compensation is a closed sum type with three variants. Exactly one is active
	per employee, and only the fields of the active variant are meaningful:

	  Hourly{HourlyWage}                          paid per time card
	  Salaried{MonthlySalary}                     paid monthly, prorated
	  Commissioned{BaseMonthlySalary, Rate}       prorated base + sales commission

VALIDATION:

	NewCompensation is the only validating constructor: it rejects unknown kinds,
	missing fields, and negative amounts with a UserError. Values loaded from
	storage go through CompensationFromRecord, which does not validate, so a
	corrupted row surfaces as a DataError when pay is computed.

PAY FORMULAS:

	Hourly:        Σ hours*wage, plus (hours-8)*wage*1.5 for days over 8 hours
	               (OvertimeLiteral). OvertimeCorrected pays the first 8 hours
	               at wage and only the excess at 1.5x.
	Salaried:      ratio * monthlySalary
	Commissioned:  Σ receipt*rate + ratio * baseMonthlySalary
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CompensationKind tags the active compensation variant.
type CompensationKind string

const (
	KindHourly       CompensationKind = "hourly"
	KindSalaried     CompensationKind = "salaried"
	KindCommissioned CompensationKind = "commissioned"
)

// OvertimeMode selects the hourly overtime formula.
type OvertimeMode string

const (
	// OvertimeLiteral pays base for every hour and adds the 1.5x premium on
	// top for hours beyond 8.
	OvertimeLiteral OvertimeMode = "literal"

	// OvertimeCorrected pays hours beyond 8 at 1.5x instead of 1x.
	OvertimeCorrected OvertimeMode = "corrected"
)

// ParseOvertimeMode accepts "literal", "corrected", or "" (literal).
func ParseOvertimeMode(s string) (OvertimeMode, error) {
	switch OvertimeMode(s) {
	case "", OvertimeLiteral:
		return OvertimeLiteral, nil
	case OvertimeCorrected:
		return OvertimeCorrected, nil
	}
	return "", fmt.Errorf("unknown overtime mode %q", s)
}

var (
	StandardDayHours   = decimal.NewFromInt(8)
	OvertimeMultiplier = decimal.NewFromFloat(1.5)
)

// =============================================================================
// COMPENSATION - Sealed variant
// =============================================================================

// Compensation is implemented only by Hourly, Salaried and Commissioned.
type Compensation interface {
	Kind() CompensationKind

	// Pay computes the amount owed for one payroll window.
	Pay(in PayInput) (decimal.Decimal, error)

	// Record flattens the variant into its stored form.
	Record() CompensationRecord

	sealed()
}

// PayInput is everything a pay formula may consume.
type PayInput struct {
	EmployeeID    EmployeeID
	Ratio         decimal.Decimal
	TimeRecords   []TimeRecord
	SalesReceipts []SalesReceipt
	Overtime      OvertimeMode
}

// Hourly is paid per recorded hour.
type Hourly struct {
	HourlyWage decimal.NullDecimal
}

// Salaried is paid a prorated monthly salary.
type Salaried struct {
	MonthlySalary decimal.NullDecimal
}

// Commissioned is paid a prorated base salary plus commission on sales.
type Commissioned struct {
	BaseMonthlySalary decimal.NullDecimal
	CommissionRate    decimal.NullDecimal
}

func (Hourly) Kind() CompensationKind       { return KindHourly }
func (Salaried) Kind() CompensationKind     { return KindSalaried }
func (Commissioned) Kind() CompensationKind { return KindCommissioned }

func (Hourly) sealed()       {}
func (Salaried) sealed()     {}
func (Commissioned) sealed() {}

// Pay sums base pay for every time card, plus overtime per the selected mode.
func (h Hourly) Pay(in PayInput) (decimal.Decimal, error) {
	if !h.HourlyWage.Valid {
		return decimal.Zero, &DataError{EmployeeID: in.EmployeeID, Field: "hourly_wage"}
	}
	wage := h.HourlyWage.Decimal

	amount := decimal.Zero
	for _, rec := range in.TimeRecords {
		overtime := rec.Hours.Sub(StandardDayHours)
		if !overtime.IsPositive() {
			amount = amount.Add(rec.Hours.Mul(wage))
			continue
		}

		premium := overtime.Mul(wage).Mul(OvertimeMultiplier)
		switch in.Overtime {
		case OvertimeCorrected:
			amount = amount.Add(StandardDayHours.Mul(wage)).Add(premium)
		default:
			amount = amount.Add(rec.Hours.Mul(wage)).Add(premium)
		}
	}
	return amount, nil
}

// Pay prorates the monthly salary.
func (s Salaried) Pay(in PayInput) (decimal.Decimal, error) {
	if !s.MonthlySalary.Valid {
		return decimal.Zero, &DataError{EmployeeID: in.EmployeeID, Field: "monthly_salary"}
	}
	return in.Ratio.Mul(s.MonthlySalary.Decimal), nil
}

// Pay adds commission on every receipt to the prorated base salary.
func (c Commissioned) Pay(in PayInput) (decimal.Decimal, error) {
	if !c.CommissionRate.Valid {
		return decimal.Zero, &DataError{EmployeeID: in.EmployeeID, Field: "commission_rate"}
	}
	if !c.BaseMonthlySalary.Valid {
		return decimal.Zero, &DataError{EmployeeID: in.EmployeeID, Field: "monthly_salary"}
	}

	amount := decimal.Zero
	for _, receipt := range in.SalesReceipts {
		amount = amount.Add(receipt.Amount.Mul(c.CommissionRate.Decimal))
	}
	return amount.Add(in.Ratio.Mul(c.BaseMonthlySalary.Decimal)), nil
}

// =============================================================================
// STORED FORM
// =============================================================================

// CompensationRecord is the flat, nullable-column shape every repository stores.
// Commissioned employees keep their base salary in MonthlySalary.
type CompensationRecord struct {
	Kind           CompensationKind
	HourlyWage     decimal.NullDecimal
	MonthlySalary  decimal.NullDecimal
	CommissionRate decimal.NullDecimal
}

func (h Hourly) Record() CompensationRecord {
	return CompensationRecord{Kind: KindHourly, HourlyWage: h.HourlyWage}
}

func (s Salaried) Record() CompensationRecord {
	return CompensationRecord{Kind: KindSalaried, MonthlySalary: s.MonthlySalary}
}

func (c Commissioned) Record() CompensationRecord {
	return CompensationRecord{Kind: KindCommissioned, MonthlySalary: c.BaseMonthlySalary, CommissionRate: c.CommissionRate}
}

// CompensationFromRecord rebuilds a variant from storage without validating
// fields. An unknown kind is a data error.
func CompensationFromRecord(rec CompensationRecord) (Compensation, error) {
	switch rec.Kind {
	case KindHourly:
		return Hourly{HourlyWage: rec.HourlyWage}, nil
	case KindSalaried:
		return Salaried{MonthlySalary: rec.MonthlySalary}, nil
	case KindCommissioned:
		return Commissioned{BaseMonthlySalary: rec.MonthlySalary, CommissionRate: rec.CommissionRate}, nil
	}
	return nil, &DataError{Field: fmt.Sprintf("compensation kind %q", rec.Kind)}
}

// =============================================================================
// VALIDATING CONSTRUCTORS
// =============================================================================

// NewCompensation validates a raw record and builds the matching variant.
func NewCompensation(rec CompensationRecord) (Compensation, error) {
	const op = "NewCompensation"

	switch rec.Kind {
	case KindHourly:
		if err := requireAmount(op, "hourly wage", rec.HourlyWage); err != nil {
			return nil, err
		}
	case KindSalaried:
		if err := requireAmount(op, "monthly salary", rec.MonthlySalary); err != nil {
			return nil, err
		}
	case KindCommissioned:
		if err := requireAmount(op, "monthly salary", rec.MonthlySalary); err != nil {
			return nil, err
		}
		if err := requireAmount(op, "commission rate", rec.CommissionRate); err != nil {
			return nil, err
		}
	default:
		return nil, userErrorf(op, "unknown compensation kind %q", rec.Kind)
	}
	return CompensationFromRecord(rec)
}

// NewHourly returns an hourly compensation.
func NewHourly(wage decimal.Decimal) (Compensation, error) {
	return NewCompensation(CompensationRecord{Kind: KindHourly, HourlyWage: valid(wage)})
}

// NewSalaried returns a salaried compensation.
func NewSalaried(monthly decimal.Decimal) (Compensation, error) {
	return NewCompensation(CompensationRecord{Kind: KindSalaried, MonthlySalary: valid(monthly)})
}

// NewCommissioned returns a commissioned compensation.
func NewCommissioned(baseMonthly, rate decimal.Decimal) (Compensation, error) {
	return NewCompensation(CompensationRecord{
		Kind:           KindCommissioned,
		MonthlySalary:  valid(baseMonthly),
		CommissionRate: valid(rate),
	})
}

func requireAmount(op, field string, v decimal.NullDecimal) error {
	if !v.Valid {
		return userErrorf(op, "%s is required", field)
	}
	return checkNonNegative(op, field, v.Decimal)
}

func checkNonNegative(op, field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return userErrorf(op, "%s must not be negative, got %s", field, v)
	}
	return nil
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
