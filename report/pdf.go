/*
Package report renders payroll runs as documents.

PDFRegister is a payroll.Sink that buffers the lines of a run and, when the
run closes, writes a pay register with up to 50 lines per page:

	<dir>/payregister-<asOf>-<paymentId>.pdf

Lines are rendered in the order they were emitted. Held lines are marked.
*/
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

const linesPerPage = 50

// PDFRegister collects payment lines and writes one PDF per run.
type PDFRegister struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	lines []payroll.PaymentLine
}

var (
	_ payroll.Sink       = (*PDFRegister)(nil)
	_ payroll.RunCloser  = (*PDFRegister)(nil)
	_ payroll.RunAborter = (*PDFRegister)(nil)
)

// NewPDFRegister writes registers into dir, creating it on first use.
func NewPDFRegister(dir string, logger *slog.Logger) *PDFRegister {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFRegister{dir: dir, log: logger.With("component", "pay-register")}
}

// Emit buffers one line.
func (r *PDFRegister) Emit(_ context.Context, line payroll.PaymentLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

// CloseRun writes the buffered lines as the register of p and clears the
// buffer. The buffer is cleared even when writing fails, since the run is
// rolled back in that case.
func (r *PDFRegister) CloseRun(_ context.Context, p payroll.Payment) error {
	r.mu.Lock()
	lines := r.lines
	r.lines = nil
	r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create register dir: %w", err)
	}

	var buf bytes.Buffer
	if err := Render(&buf, p, lines); err != nil {
		return err
	}

	path := filepath.Join(r.dir, FileName(p))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write register: %w", err)
	}
	r.log.Info("pay register written", "path", path, "lines", len(lines))
	return nil
}

// AbortRun drops the lines of a failed run.
func (r *PDFRegister) AbortRun(context.Context) {
	r.mu.Lock()
	dropped := len(r.lines)
	r.lines = nil
	r.mu.Unlock()

	if dropped > 0 {
		r.log.Info("pay register discarded", "lines", dropped)
	}
}

// Buffered reports how many lines are waiting for CloseRun.
func (r *PDFRegister) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// FileName is the register file name of a payment.
func FileName(p payroll.Payment) string {
	return fmt.Sprintf("payregister-%s-%s.pdf", p.Date, p.ID)
}

// Render writes the pay register of one run to w.
func Render(w io.Writer, p payroll.Payment, lines []payroll.PaymentLine) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Pay register "+p.Date.String(), false)

	header := func() {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 16)
		pdf.Cell(40, 10, "Pay register")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 6, fmt.Sprintf("Pay date: %s    Payment: %s", p.Date, p.ID))
		pdf.Ln(10)

		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(30, 7, "Employee", "B", 0, "", false, 0, "")
		pdf.CellFormat(65, 7, "Name", "B", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, "Method", "B", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, "Route", "B", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, "Amount", "B", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}

	header()
	total := decimal.Zero
	for i, line := range lines {
		if i > 0 && i%linesPerPage == 0 {
			header()
		}
		route := string(line.Route)
		if line.Held {
			route += " (held)"
		}
		pdf.CellFormat(30, 6, string(line.EmployeeID), "", 0, "", false, 0, "")
		pdf.CellFormat(65, 6, line.Name, "", 0, "", false, 0, "")
		pdf.CellFormat(25, 6, line.PayMethod.String(), "", 0, "", false, 0, "")
		pdf.CellFormat(25, 6, route, "", 0, "", false, 0, "")
		pdf.CellFormat(35, 6, line.Amount.StringFixed(2), "", 1, "R", false, 0, "")
		total = total.Add(line.Amount)
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(145, 8, fmt.Sprintf("%d employees", len(lines)), "T", 0, "", false, 0, "")
	pdf.CellFormat(35, 8, total.StringFixed(2), "T", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render register: %w", err)
	}
	return nil
}
