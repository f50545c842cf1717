package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/config"
)

func TestOpen_SQLiteCreatesDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "payroll.db")

	opened, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	require.NoError(t, err)
	defer opened.Close()

	require.NotNil(t, opened.Ready)
	assert.NoError(t, opened.Ready(context.Background()))

	_, paid, err := opened.Repo.LatestPaymentDate(context.Background())
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "oracle")
}
