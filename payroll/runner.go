/*
runner.go - One payroll run

PURPOSE:

	Computes a pay amount for every employee as of a date, records the run as a
	Payment, and hands the lines to a Sink.

WINDOW:

	The proration window runs from the latest Payment date to asOf, both
	inclusive, and Ratio converts it into months. Facts are counted when they are
	dated after the latest payment and on or before asOf.

	First run (no Payment yet): the earliest time card or receipt date is found
	and logged, but the window starts at asOf. RunnerOptions.FirstRunFromEarliestFact
	starts it at the earliest fact date instead.

FAILURE:

	All lines are computed before anything is written. The first error aborts
	the run. When the repository is a TxRepository the payment insert and the
	sink calls (including RunCloser.CloseRun) share one transaction, so a sink
	error also discards the payment. A failed run then calls
	RunAborter.AbortRun so buffering sinks drop the lines they already got.

EXAMPLE:

	Commissioned, base 1000, rate 0.1, last paid 2024-01-01, one receipt of 500
	on 2024-01-15, run as of 2024-01-31:
	  ratio  = 31/31 = 1
	  amount = 500*0.1 + 1*1000 = 1050
*/
package payroll

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunnerOptions tune a Runner. The zero value reproduces the historical behavior.
type RunnerOptions struct {
	Overtime                 OvertimeMode
	FirstRunFromEarliestFact bool
	Logger                   *slog.Logger
}

// RunResult describes a committed run.
type RunResult struct {
	Payment     Payment
	WindowStart Date
	Ratio       decimal.Decimal
	Lines       []PaymentLine
}

// Total sums every line.
func (r *RunResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Runner executes payroll runs against a repository.
type Runner struct {
	repo Repository
	sink Sink
	opts RunnerOptions
	log  *slog.Logger

	newID func() string
}

// NewRunner creates a runner. A nil sink discards lines.
func NewRunner(repo Repository, sink Sink, opts RunnerOptions) *Runner {
	if sink == nil {
		sink = DiscardSink
	}
	if opts.Overtime == "" {
		opts.Overtime = OvertimeLiteral
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		repo:  repo,
		sink:  sink,
		opts:  opts,
		log:   logger.With("component", "payroll-runner"),
		newID: uuid.NewString,
	}
}

// Run pays every employee as of asOf.
func (r *Runner) Run(ctx context.Context, asOf Date) (*RunResult, error) {
	if asOf.IsZero() {
		return nil, userErrorf("Run", "as-of date is required")
	}

	var result *RunResult
	err := withinTx(ctx, r.repo, func(repo Repository) error {
		res, err := r.compute(ctx, repo, asOf)
		if err != nil {
			return err
		}
		if err := repo.RecordPayment(ctx, res.Payment); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		for _, line := range res.Lines {
			if err := r.sink.Emit(ctx, line); err != nil {
				return fmt.Errorf("emit line for %s: %w", line.EmployeeID, err)
			}
		}
		if rc, ok := r.sink.(RunCloser); ok {
			if err := rc.CloseRun(ctx, res.Payment); err != nil {
				return fmt.Errorf("close run: %w", err)
			}
		}
		result = res
		return nil
	})
	if err != nil {
		if ra, ok := r.sink.(RunAborter); ok {
			ra.AbortRun(ctx)
		}
		r.log.Error("payroll run failed", "as_of", asOf.String(), "error", err)
		return nil, err
	}

	r.log.Info("payroll run complete",
		"payment_id", result.Payment.ID,
		"as_of", asOf.String(),
		"window_start", result.WindowStart.String(),
		"ratio", result.Ratio.String(),
		"employees", len(result.Lines),
		"total", result.Total().StringFixed(2))
	return result, nil
}

func (r *Runner) compute(ctx context.Context, repo Repository, asOf Date) (*RunResult, error) {
	latest, paidBefore, err := repo.LatestPaymentDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest payment date: %w", err)
	}

	snapshot, err := repo.ListEmployeesWithFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	windowStart := latest
	if !paidBefore {
		windowStart = r.firstRunStart(snapshot, asOf)
	}

	ratio, err := Ratio(windowStart, asOf)
	if err != nil {
		return nil, err
	}

	inWindow := func(d Date) bool {
		if paidBefore && !d.After(latest) {
			return false
		}
		return !d.After(asOf)
	}

	lines := make([]PaymentLine, 0, len(snapshot))
	for _, row := range snapshot {
		emp := row.Employee
		if emp.Compensation == nil {
			return nil, &DataError{EmployeeID: emp.ID, Field: "compensation"}
		}

		in := PayInput{EmployeeID: emp.ID, Ratio: ratio, Overtime: r.opts.Overtime}
		for _, tr := range row.TimeRecords {
			if inWindow(tr.Date) {
				in.TimeRecords = append(in.TimeRecords, tr)
			}
		}
		for _, sr := range row.SalesReceipts {
			if inWindow(sr.Date) {
				in.SalesReceipts = append(in.SalesReceipts, sr)
			}
		}

		amount, err := emp.Compensation.Pay(in)
		if err != nil {
			return nil, err
		}
		lines = append(lines, PaymentLine{
			EmployeeID: emp.ID,
			Name:       emp.Name,
			PayMethod:  emp.PayMethod,
			Route:      emp.Route(),
			Held:       emp.Held,
			Amount:     amount,
		})
	}

	return &RunResult{
		Payment:     Payment{ID: r.newID(), Date: asOf},
		WindowStart: windowStart,
		Ratio:       ratio,
		Lines:       lines,
	}, nil
}

func (r *Runner) firstRunStart(snapshot []EmployeeFacts, asOf Date) Date {
	var earliest Date
	found := false
	for _, row := range snapshot {
		if d, ok := row.EarliestDate(); ok && (!found || d.Before(earliest)) {
			earliest, found = d, true
		}
	}

	if !found {
		r.log.Info("first payroll run, no facts recorded", "as_of", asOf.String())
		return asOf
	}
	r.log.Info("first payroll run", "earliest_fact", earliest.String(), "as_of", asOf.String(),
		"from_earliest", r.opts.FirstRunFromEarliestFact)
	if r.opts.FirstRunFromEarliestFact && !earliest.After(asOf) {
		return earliest
	}
	return asOf
}
