/*
errors.go - Error kinds for the payroll engine

ERROR KINDS:
 1. User errors     - the caller supplied invalid input (wrong compensation
    variant for a rate command, unknown employee, negative
    amount, end date before start date)
 2. Data errors     - a stored field required by the employee's compensation
    variant is absent (corrupted or half-initialized state)
 3. Internal errors - invariant violations not reachable through the public API

Every structured error unwraps to exactly one kind sentinel, so callers only
need errors.Is:

	if errors.Is(err, payroll.ErrData) {
	    // fix the employee record, then re-run payroll
	}

Nothing in this package retries or swallows errors. A payroll run aborts on
the first error.
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUser marks errors caused by invalid caller input.
	ErrUser = errors.New("user error")

	// ErrData marks errors caused by missing stored fields.
	ErrData = errors.New("data error")

	// ErrInternal marks invariant violations.
	ErrInternal = errors.New("internal error")

	// ErrNotFound is returned when a referenced employee doesn't exist.
	// It is also a user error.
	ErrNotFound = errors.New("employee not found")

	// ErrInvalidRange is returned when a date range ends before it starts.
	// It is also a user error.
	ErrInvalidRange = errors.New("invalid range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// UserError describes a rejected command or invalid input.
type UserError struct {
	Op  string
	Msg string
}

func (e *UserError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

func (e *UserError) Unwrap() error { return ErrUser }

func userErrorf(op, format string, args ...any) *UserError {
	return &UserError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown employee id.
type NotFoundError struct {
	EmployeeID EmployeeID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("employee %s not found", e.EmployeeID)
}

func (e *NotFoundError) Unwrap() []error { return []error{ErrNotFound, ErrUser} }

// RangeError reports an interval whose end precedes its start.
type RangeError struct {
	Start Date
	End   Date
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range: end %s before start %s", e.End, e.Start)
}

func (e *RangeError) Unwrap() []error { return []error{ErrInvalidRange, ErrUser} }

// DataError reports a compensation field that must be set but isn't.
type DataError struct {
	EmployeeID EmployeeID
	Field      string
}

func (e *DataError) Error() string {
	if e.EmployeeID == "" {
		return fmt.Sprintf("%s is not set", e.Field)
	}
	return fmt.Sprintf("employee %s: %s is not set", e.EmployeeID, e.Field)
}

func (e *DataError) Unwrap() error { return ErrData }

// InternalError reports a broken invariant.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "internal: " + e.Msg }

func (e *InternalError) Unwrap() error { return ErrInternal }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsUserError returns true if the error is due to invalid caller input.
func IsUserError(err error) bool { return errors.Is(err, ErrUser) }

// IsDataError returns true if the error is due to missing stored fields.
func IsDataError(err error) bool { return errors.Is(err, ErrData) }

// IsNotFound returns true if the error indicates a missing employee.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInternal returns true if the error indicates a broken invariant.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }
