/*
store.go - Persistence interface for the payroll engine

PURPOSE:

	Defines the capability set the engine consumes. Employees are mutable
	records; time cards, sales receipts, service charges, bank accounts and
	payments are append-only facts.

ATOMICITY:

	The engine does no locking or retrying of its own. Each command and each
	payroll run is one unit of work: when the repository also implements
	TxRepository, the unit runs inside WithTx and is all-or-nothing.

IMPLEMENTATIONS:
  - payroll/store/memory.go:  In-memory, for tests and development
  - store/sqlite/sqlite.go:   SQLite
  - store/postgres:           PostgreSQL via pgx
*/
package payroll

import "context"

// Repository is the storage capability set used by the processor and runner.
type Repository interface {
	// GetEmployee returns a *NotFoundError when the id is unknown.
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// PutEmployee inserts or replaces the employee record, including union membership.
	PutEmployee(ctx context.Context, emp Employee) error

	// DeleteEmployee hard-deletes the employee. Returns *NotFoundError when unknown.
	DeleteEmployee(ctx context.Context, id EmployeeID) error

	ListEmployees(ctx context.Context) ([]Employee, error)

	// Append-only fact stores.
	AppendTimeRecord(ctx context.Context, rec TimeRecord) error
	AppendSalesReceipt(ctx context.Context, rec SalesReceipt) error
	AppendServiceCharge(ctx context.Context, rec ServiceCharge) error
	AppendBankAccount(ctx context.Context, acct BankAccount) error

	// ListEmployeesWithFacts joins every employee with its facts, ordered by employee id.
	ListEmployeesWithFacts(ctx context.Context) ([]EmployeeFacts, error)

	// LatestPaymentDate returns false when no payroll has run yet.
	LatestPaymentDate(ctx context.Context) (Date, bool, error)

	RecordPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context) ([]Payment, error)
}

// TxRepository wraps Repository with transaction support.
// If fn returns an error, every write made through the Repository it was
// given is discarded.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

func withinTx(ctx context.Context, repo Repository, fn func(Repository) error) error {
	if tx, ok := repo.(TxRepository); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(repo)
}
