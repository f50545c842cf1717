package report_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/report"
)

func line(id, name string, amount int64) payroll.PaymentLine {
	return payroll.PaymentLine{
		EmployeeID: payroll.EmployeeID(id),
		Name:       name,
		PayMethod:  payroll.PayCheque,
		Route:      payroll.RoutePaymaster,
		Amount:     decimal.NewFromInt(amount),
	}
}

func TestRender_ProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	p := payroll.Payment{ID: "p-1", Date: payroll.NewDate(2024, time.January, 31)}

	lines := make([]payroll.PaymentLine, 0, 120)
	for i := 0; i < 120; i++ {
		lines = append(lines, line("e", "Employee", int64(i)))
	}

	require.NoError(t, report.Render(&buf, p, lines))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestPDFRegister_OneFilePerRun(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "registers")
	reg := report.NewPDFRegister(dir, nil)

	require.NoError(t, reg.Emit(ctx, line("a", "Ada", 1050)))
	held := line("b", "Bob", 10)
	held.Held, held.Route = true, payroll.RouteHold
	require.NoError(t, reg.Emit(ctx, held))

	p := payroll.Payment{ID: "p-1", Date: payroll.NewDate(2024, time.January, 31)}
	require.NoError(t, reg.CloseRun(ctx, p))

	data, err := os.ReadFile(filepath.Join(dir, "payregister-2024-01-31-p-1.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestPDFRegister_WiredIntoRunner(t *testing.T) {
	// GIVEN: A runner printing to the console and a register
	ctx := context.Background()
	repo := store.NewMemory()
	proc := payroll.NewProcessor(repo)
	comp, err := payroll.NewSalaried(decimal.NewFromInt(3100))
	require.NoError(t, err)
	_, err = proc.AddEmployee(ctx, payroll.NewEmployee{ID: "s1", Name: "Sal", Compensation: comp})
	require.NoError(t, err)

	dir := t.TempDir()
	var out bytes.Buffer
	sink := payroll.MultiSink{payroll.NewTextSink(&out), report.NewPDFRegister(dir, nil)}

	// WHEN: Two runs complete
	runner := payroll.NewRunner(repo, sink, payroll.RunnerOptions{})
	first, err := runner.Run(ctx, payroll.NewDate(2024, time.January, 31))
	require.NoError(t, err)
	second, err := runner.Run(ctx, payroll.NewDate(2024, time.February, 29))
	require.NoError(t, err)

	// THEN: One register per run
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.FileExists(t, filepath.Join(dir, report.FileName(first.Payment)))
	assert.FileExists(t, filepath.Join(dir, report.FileName(second.Payment)))
	assert.Contains(t, out.String(), "Sal Unassigned")
}

func TestPDFRegister_WriteFailure_RollsBackRun(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	proc := payroll.NewProcessor(repo)
	comp, _ := payroll.NewSalaried(decimal.NewFromInt(100))
	_, err := proc.AddEmployee(ctx, payroll.NewEmployee{ID: "s1", Name: "Sal", Compensation: comp})
	require.NoError(t, err)

	// A regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	runner := payroll.NewRunner(repo, report.NewPDFRegister(blocker, nil), payroll.RunnerOptions{})
	_, err = runner.Run(ctx, payroll.NewDate(2024, time.January, 31))
	require.Error(t, err)

	payments, _ := repo.ListPayments(ctx)
	assert.Empty(t, payments)
}

func TestPDFRegister_FailedRunLeavesNoLines(t *testing.T) {
	// GIVEN: One salaried employee, a console that fails once, and a register
	ctx := context.Background()
	repo := store.NewMemory()
	proc := payroll.NewProcessor(repo)
	comp, err := payroll.NewSalaried(decimal.NewFromInt(3100))
	require.NoError(t, err)
	_, err = proc.AddEmployee(ctx, payroll.NewEmployee{ID: "e1", Name: "Eve", Compensation: comp})
	require.NoError(t, err)

	failing := true
	console := payroll.SinkFunc(func(context.Context, payroll.PaymentLine) error {
		if failing {
			return errors.New("stdout closed")
		}
		return nil
	})
	dir := t.TempDir()
	reg := report.NewPDFRegister(dir, nil)
	runner := payroll.NewRunner(repo, payroll.MultiSink{console, reg}, payroll.RunnerOptions{})

	// WHEN: The run fails after the register buffered the line
	_, err = runner.Run(ctx, payroll.NewDate(2024, time.January, 31))
	require.ErrorContains(t, err, "stdout closed")

	// THEN: The register holds nothing and wrote nothing
	assert.Equal(t, 0, reg.Buffered())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// WHEN: The retry succeeds
	failing = false
	res, err := runner.Run(ctx, payroll.NewDate(2024, time.January, 31))
	require.NoError(t, err)

	// THEN: Its register has exactly the one line of this run
	assert.Len(t, res.Lines, 1)
	assert.Equal(t, 0, reg.Buffered())
	assert.FileExists(t, filepath.Join(dir, report.FileName(res.Payment)))
}

func TestPDFRegister_AbortRunClearsBuffer(t *testing.T) {
	ctx := context.Background()
	reg := report.NewPDFRegister(t.TempDir(), nil)

	require.NoError(t, reg.Emit(ctx, line("a", "Ada", 1050)))
	require.NoError(t, reg.Emit(ctx, line("b", "Bob", 10)))
	require.Equal(t, 2, reg.Buffered())

	reg.AbortRun(ctx)
	assert.Equal(t, 0, reg.Buffered())
}
