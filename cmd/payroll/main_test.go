package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/config"
)

const script = `AddEmp c1 "Ada Lovelace" "12 Analytical Way" C 1000 0.1
ChgEmp c1 PayMethod Cheque
SalesReceipt c1 2024-01-01 500
Payday 2024-01-31
ChgEmp c1 Hourly 12
`

func TestRun_ScriptAgainstSQLite(t *testing.T) {
	// GIVEN: A script file, an in-memory database and a register directory
	dir := t.TempDir()
	path := filepath.Join(dir, "january.txt")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}
	cfg.Payroll.FirstRunFromEarliestFact = true
	cfg.Payroll.RegisterDir = filepath.Join(dir, "registers")

	// WHEN: The script runs, continuing past the rejected rate change
	var out bytes.Buffer
	res, err := run(context.Background(), cfg, path, &out, true, nil)

	// THEN: One register line on stdout and one PDF on disk
	require.NoError(t, err)
	assert.Equal(t, 4, res.Executed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Ada Lovelace Cheque 1050.00\n", out.String())

	pdfs, err := filepath.Glob(filepath.Join(dir, "registers", "*.pdf"))
	require.NoError(t, err)
	assert.Len(t, pdfs, 1)
}

func TestRun_StopsOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}

	var out bytes.Buffer
	_, err := run(context.Background(), cfg, path, &out, false, nil)
	assert.ErrorContains(t, err, "line 5")
}

func TestRun_MissingScript(t *testing.T) {
	_, err := run(context.Background(), config.Default(), filepath.Join(t.TempDir(), "none.txt"), &bytes.Buffer{}, false, nil)
	assert.ErrorContains(t, err, "open script")
}
