/*
scheduler.go - Automated payroll scheduler

PURPOSE:
  Periodically checks whether this month's pay day has come and, if payroll
  has not run for it yet, runs payroll as of the pay day.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Pay day is a day of month; 0 (or a day the month doesn't have) means the
    last day of the month
  - A missed pay day (server down) is caught up on the next check in the
    same month, still dated on the pay day
  - Skips when the latest payment is already on or after the pay day

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - PayDay: Day of month (default: 0, last day)

USAGE:
  scheduler := NewPayrollScheduler(repo, runner)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunPayroll endpoint (manual run)
  - payroll/runner.go: Runner
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// PayrollRunner is the part of payroll.Runner the scheduler needs.
type PayrollRunner interface {
	Run(ctx context.Context, asOf payroll.Date) (*payroll.RunResult, error)
}

// PaymentHistory is the part of payroll.Repository the scheduler needs.
type PaymentHistory interface {
	LatestPaymentDate(ctx context.Context) (payroll.Date, bool, error)
}

// PayrollScheduler runs payroll on the configured pay day.
type PayrollScheduler struct {
	Payments      PaymentHistory
	Runner        PayrollRunner
	CheckInterval time.Duration
	Enabled       bool
	PayDay        int

	// Now is the clock; tests replace it.
	Now func() time.Time

	log    *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(payments PaymentHistory, runner PayrollRunner) *PayrollScheduler {
	return &PayrollScheduler{
		Payments:      payments,
		Runner:        runner,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		log:           slog.Default().With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.log.Info("disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run(ps.ticker, ps.stop)

	ps.log.Info("started", "check_interval", ps.CheckInterval.String(), "pay_day", ps.PayDay)
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.log.Info("stopped")
	}
}

func (ps *PayrollScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.check()

	for {
		select {
		case <-ticker.C:
			ps.check()
		case <-stop:
			return
		}
	}
}

func (ps *PayrollScheduler) check() {
	ctx := context.Background()
	if _, err := ps.RunNow(ctx); err != nil {
		ps.log.Error("scheduled payroll failed", "error", err)
	}
}

// RunNow checks once and runs payroll if it is due. It returns the run result,
// or nil when nothing was due.
func (ps *PayrollScheduler) RunNow(ctx context.Context) (*payroll.RunResult, error) {
	today := payroll.DateOf(ps.Now())
	payDate := PayDateIn(today.Year(), today.Month(), ps.PayDay)

	if today.Before(payDate) {
		ps.log.Debug("pay day not reached", "today", today.String(), "pay_date", payDate.String())
		return nil, nil
	}

	latest, paid, err := ps.Payments.LatestPaymentDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest payment date: %w", err)
	}
	if paid && !latest.Before(payDate) {
		ps.log.Debug("already paid", "pay_date", payDate.String(), "latest", latest.String())
		return nil, nil
	}

	res, err := ps.Runner.Run(ctx, payDate)
	if err != nil {
		return nil, err
	}
	ps.log.Info("scheduled payroll complete", "pay_date", payDate.String(),
		"payment_id", res.Payment.ID, "employees", len(res.Lines))
	return res, nil
}

// NextPayDate returns the first pay date on or after today.
func (ps *PayrollScheduler) NextPayDate() payroll.Date {
	today := payroll.DateOf(ps.Now())
	payDate := PayDateIn(today.Year(), today.Month(), ps.PayDay)
	if today.After(payDate) {
		next := payroll.StartOfMonth(today.Year(), today.Month()).AddMonths(1)
		payDate = PayDateIn(next.Year(), next.Month(), ps.PayDay)
	}
	return payDate
}

// PayDateIn returns the pay date of a month. Day 0, or a day past the end of
// the month, is the last day.
func PayDateIn(year int, month time.Month, day int) payroll.Date {
	last := payroll.DaysInMonth(year, month)
	if day <= 0 || day > last {
		day = last
	}
	return payroll.NewDate(year, month, day)
}
