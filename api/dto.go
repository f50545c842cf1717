/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Money, hours and rates travel as decimal strings ("1050.00", "0.1") so no
  precision is lost in JSON numbers. Dates are "YYYY-MM-DD".

VALIDATION:
  Validation is done in handlers and the payroll package, not in DTOs.
*/
package api

import (
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// EMPLOYEE DTOs
// =============================================================================

// EmployeeDTO is the API representation of an employee.
type EmployeeDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	Kind           string    `json:"kind"`
	HourlyWage     *string   `json:"hourly_wage,omitempty"`
	MonthlySalary  *string   `json:"monthly_salary,omitempty"`
	CommissionRate *string   `json:"commission_rate,omitempty"`
	PayMethod      string    `json:"pay_method"`
	Route          string    `json:"route"`
	MailAddress    string    `json:"mail_address,omitempty"`
	Held           bool      `json:"held"`
	Union          *UnionDTO `json:"union,omitempty"`
}

// UnionDTO is union membership.
type UnionDTO struct {
	MemberID string `json:"member_id"`
	DuesRate string `json:"dues_rate"`
}

// CreateEmployeeRequest is the request body for creating an employee.
// ID is generated when empty.
type CreateEmployeeRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Kind           string `json:"kind"` // hourly, salaried, commissioned
	HourlyWage     string `json:"hourly_wage,omitempty"`
	MonthlySalary  string `json:"monthly_salary,omitempty"`
	CommissionRate string `json:"commission_rate,omitempty"`
	PayMethod      string `json:"pay_method,omitempty"`
}

// CommandRequest carries either a text command or a structured one.
// Text wins when both are present.
type CommandRequest struct {
	Command string               `json:"command,omitempty"`
	Spec    *factory.CommandJSON `json:"spec,omitempty"`
}

// FactRequest is the body of timecard, receipt and charge posts.
// Hours is used by timecards, Amount by receipts and charges.
type FactRequest struct {
	Date   string `json:"date"`
	Hours  string `json:"hours,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// =============================================================================
// PAYROLL DTOs
// =============================================================================

// RunPayrollRequest triggers a run. AsOf defaults to today.
type RunPayrollRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// RunResultDTO describes a committed run.
type RunResultDTO struct {
	PaymentID   string           `json:"payment_id"`
	PayDate     string           `json:"pay_date"`
	WindowStart string           `json:"window_start"`
	Ratio       string           `json:"ratio"`
	Total       string           `json:"total"`
	Lines       []PaymentLineDTO `json:"lines"`
}

// PaymentLineDTO is one employee's pay.
type PaymentLineDTO struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	PayMethod  string `json:"pay_method"`
	Route      string `json:"route"`
	Held       bool   `json:"held"`
	Amount     string `json:"amount"`
}

// PaymentDTO is one recorded run.
type PaymentDTO struct {
	ID   string `json:"id"`
	Date string `json:"date"`
}

// ErrorResponse is the error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:          string(e.ID),
		Name:        e.Name,
		Address:     e.Address,
		PayMethod:   e.PayMethod.String(),
		Route:       string(e.Route()),
		MailAddress: e.MailAddress,
		Held:        e.Held,
	}
	if e.Compensation != nil {
		rec := e.Compensation.Record()
		dto.Kind = string(rec.Kind)
		if rec.HourlyWage.Valid {
			dto.HourlyWage = strPtr(rec.HourlyWage.Decimal.String())
		}
		if rec.MonthlySalary.Valid {
			dto.MonthlySalary = strPtr(rec.MonthlySalary.Decimal.String())
		}
		if rec.CommissionRate.Valid {
			dto.CommissionRate = strPtr(rec.CommissionRate.Decimal.String())
		}
	}
	if e.Union != nil {
		dto.Union = &UnionDTO{MemberID: e.Union.MemberID, DuesRate: e.Union.DuesRate.String()}
	}
	return dto
}

func toRunResultDTO(res *payroll.RunResult) RunResultDTO {
	dto := RunResultDTO{
		PaymentID:   res.Payment.ID,
		PayDate:     res.Payment.Date.String(),
		WindowStart: res.WindowStart.String(),
		Ratio:       res.Ratio.String(),
		Total:       res.Total().StringFixed(2),
		Lines:       make([]PaymentLineDTO, 0, len(res.Lines)),
	}
	for _, l := range res.Lines {
		dto.Lines = append(dto.Lines, PaymentLineDTO{
			EmployeeID: string(l.EmployeeID),
			Name:       l.Name,
			PayMethod:  l.PayMethod.String(),
			Route:      string(l.Route),
			Held:       l.Held,
			Amount:     l.Amount.StringFixed(2),
		})
	}
	return dto
}

func strPtr(s string) *string {
	return &s
}
