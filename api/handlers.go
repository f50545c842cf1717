/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements all HTTP endpoint handlers. Each handler:
  1. Parses request (URL params, body)
  2. Calls the payroll processor or runner
  3. Returns JSON response

HANDLER GROUPS:
  Employees:  ListEmployees, CreateEmployee, GetEmployee, DeleteEmployee
  Commands:   ApplyCommand (text grammar or structured JSON)
  Facts:      AddTimeCard, AddSalesReceipt, AddServiceCharge
  Payroll:    RunPayroll, ListPayments

ERROR MAPPING:
  payroll.ErrNotFound  -> 404
  payroll.ErrUser      -> 400
  payroll.ErrData      -> 422
  anything else        -> 500

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo      payroll.Repository
	Processor *payroll.Processor
	Runner    *payroll.Runner
	Factory   *factory.CommandFactory
}

// NewHandler creates a handler over repo. The runner is shared with the
// scheduler so both go through the same sink.
func NewHandler(repo payroll.Repository, runner *payroll.Runner) *Handler {
	return &Handler{
		Repo:      repo,
		Processor: payroll.NewProcessor(repo),
		Runner:    runner,
		Factory:   factory.NewCommandFactory(),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees ordered by id.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Repo.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		dtos = append(dtos, toEmployeeDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee adds an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	comp, err := compensationFromRequest(req)
	if err != nil {
		writeDomainError(w, "invalid compensation", err)
		return
	}

	in := payroll.NewEmployee{
		ID:           payroll.EmployeeID(req.ID),
		Name:         req.Name,
		Address:      req.Address,
		Compensation: comp,
	}
	if in.ID == "" {
		in.ID = payroll.EmployeeID(uuid.NewString())
	}
	if req.PayMethod != "" {
		method, err := payroll.ParsePayMethod(req.PayMethod)
		if err != nil {
			writeDomainError(w, "invalid pay method", err)
			return
		}
		in.PayMethod = method
	}

	emp, err := h.Processor.AddEmployee(r.Context(), in)
	if err != nil {
		writeDomainError(w, "failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// GetEmployee returns one employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Repo.GetEmployee(r.Context(), employeeID(r))
	if err != nil {
		writeDomainError(w, "failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// DeleteEmployee hard-deletes an employee and its facts.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Processor.DeleteEmployee(r.Context(), employeeID(r)); err != nil {
		writeDomainError(w, "failed to delete employee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyCommand parses and applies one command, then returns the employee.
func (h *Handler) ApplyCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var (
		cmd payroll.Command
		err error
	)
	switch {
	case req.Command != "":
		cmd, err = h.Factory.ParseCommand(req.Command)
	case req.Spec != nil:
		cmd, err = h.Factory.FromJSON(*req.Spec)
	default:
		writeError(w, http.StatusBadRequest, "command or spec is required", nil)
		return
	}
	if err != nil {
		writeDomainError(w, "invalid command", err)
		return
	}

	id := employeeID(r)
	if err := h.Processor.Apply(r.Context(), id, cmd); err != nil {
		writeDomainError(w, "command rejected", err)
		return
	}

	emp, err := h.Repo.GetEmployee(r.Context(), id)
	if err != nil {
		// NoMember on an unknown employee succeeds without creating anything.
		if payroll.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeDomainError(w, "failed to reload employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// =============================================================================
// FACT HANDLERS
// =============================================================================

// AddTimeCard records a day of hours.
func (h *Handler) AddTimeCard(w http.ResponseWriter, r *http.Request) {
	day, hours, ok := parseFact(w, r, func(req FactRequest) string { return req.Hours })
	if !ok {
		return
	}
	rec := payroll.TimeRecord{EmployeeID: employeeID(r), Date: day, Hours: hours}
	if err := h.Processor.AddTimeCard(r.Context(), rec); err != nil {
		writeDomainError(w, "failed to add time card", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// AddSalesReceipt records a sale.
func (h *Handler) AddSalesReceipt(w http.ResponseWriter, r *http.Request) {
	day, amount, ok := parseFact(w, r, func(req FactRequest) string { return req.Amount })
	if !ok {
		return
	}
	rec := payroll.SalesReceipt{EmployeeID: employeeID(r), Date: day, Amount: amount}
	if err := h.Processor.AddSalesReceipt(r.Context(), rec); err != nil {
		writeDomainError(w, "failed to add sales receipt", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// AddServiceCharge records a union service charge.
func (h *Handler) AddServiceCharge(w http.ResponseWriter, r *http.Request) {
	day, amount, ok := parseFact(w, r, func(req FactRequest) string { return req.Amount })
	if !ok {
		return
	}
	rec := payroll.ServiceCharge{EmployeeID: employeeID(r), Date: day, Amount: amount}
	if err := h.Processor.AddServiceCharge(r.Context(), rec); err != nil {
		writeDomainError(w, "failed to add service charge", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// RunPayroll runs payroll as of the requested date (today when omitted).
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req RunPayrollRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	asOf := payroll.Today()
	if req.AsOf != "" {
		d, err := payroll.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of date", err)
			return
		}
		asOf = d
	}

	res, err := h.Runner.Run(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "payroll run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(res))
}

// ListPayments returns the payment history, oldest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Repo.ListPayments(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, PaymentDTO{ID: p.ID, Date: p.Date.String()})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeID(r *http.Request) payroll.EmployeeID {
	return payroll.EmployeeID(chi.URLParam(r, "id"))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseFact(w http.ResponseWriter, r *http.Request, value func(FactRequest) string) (payroll.Date, decimal.Decimal, bool) {
	var req FactRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return payroll.Date{}, decimal.Zero, false
	}
	day, err := payroll.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return payroll.Date{}, decimal.Zero, false
	}
	amount, err := decimal.NewFromString(value(req))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return payroll.Date{}, decimal.Zero, false
	}
	return day, amount, true
}

func compensationFromRequest(req CreateEmployeeRequest) (payroll.Compensation, error) {
	rec := payroll.CompensationRecord{Kind: payroll.CompensationKind(req.Kind)}

	var err error
	if rec.HourlyWage, err = optionalDecimal("hourly_wage", req.HourlyWage); err != nil {
		return nil, err
	}
	if rec.MonthlySalary, err = optionalDecimal("monthly_salary", req.MonthlySalary); err != nil {
		return nil, err
	}
	if rec.CommissionRate, err = optionalDecimal("commission_rate", req.CommissionRate); err != nil {
		return nil, err
	}
	return payroll.NewCompensation(rec)
}

func optionalDecimal(field, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, &payroll.UserError{Op: "CreateEmployee", Msg: fmt.Sprintf("invalid %s %q", field, s)}
	}
	return decimal.NewNullDecimal(d), nil
}

// statusFor maps a payroll error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case payroll.IsNotFound(err):
		return http.StatusNotFound
	case payroll.IsUserError(err):
		return http.StatusBadRequest
	case payroll.IsDataError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(message, "error", err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
