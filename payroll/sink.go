package payroll

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// PaymentLine is the computed pay of one employee in one run.
type PaymentLine struct {
	EmployeeID EmployeeID
	Name       string
	PayMethod  PayMethod
	Route      DisbursementRoute
	Held       bool
	Amount     decimal.Decimal
}

// String renders "{name} {payMethod} {amount}" with the amount to the cent.
func (l PaymentLine) String() string {
	return fmt.Sprintf("%s %s %s", l.Name, l.PayMethod, l.Amount.StringFixed(2))
}

// Sink receives the payment lines of a committed run. Hold is reported on the
// line; a sink that disburses money decides what to do with it.
type Sink interface {
	Emit(ctx context.Context, line PaymentLine) error
}

// RunCloser is implemented by sinks that build one document per run. The
// runner calls CloseRun after the last line of a run, inside the run's unit of
// work, so an error there discards the payment as well.
type RunCloser interface {
	CloseRun(ctx context.Context, p Payment) error
}

// RunAborter is implemented by sinks that hold lines until CloseRun. The
// runner calls AbortRun when a run fails after lines were emitted, so the
// held lines never reach a later run's document.
type RunAborter interface {
	AbortRun(ctx context.Context)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, line PaymentLine) error

func (f SinkFunc) Emit(ctx context.Context, line PaymentLine) error { return f(ctx, line) }

// TextSink writes one line per payment to W.
type TextSink struct {
	W io.Writer
}

// NewTextSink creates a console sink.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{W: w}
}

func (s *TextSink) Emit(_ context.Context, line PaymentLine) error {
	_, err := fmt.Fprintln(s.W, line.String())
	return err
}

// MultiSink fans each line out to every sink, in order. All sinks are tried;
// their errors are joined.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, line PaymentLine) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseRun forwards to every member that implements RunCloser.
func (m MultiSink) CloseRun(ctx context.Context, p Payment) error {
	var errs []error
	for _, s := range m {
		if rc, ok := s.(RunCloser); ok {
			if err := rc.CloseRun(ctx, p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// AbortRun forwards to every member that implements RunAborter.
func (m MultiSink) AbortRun(ctx context.Context) {
	for _, s := range m {
		if ra, ok := s.(RunAborter); ok {
			ra.AbortRun(ctx)
		}
	}
}

// DiscardSink drops every line.
var DiscardSink Sink = SinkFunc(func(context.Context, PaymentLine) error { return nil })
