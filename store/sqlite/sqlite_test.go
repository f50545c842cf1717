package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/storetest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLite_Repository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) payroll.TxRepository { return newStore(t) })
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payroll.db")

	store, err := New(path)
	require.NoError(t, err)
	comp, err := payroll.NewSalaried(decimal.NewFromInt(3000))
	require.NoError(t, err)
	require.NoError(t, store.PutEmployee(ctx, payroll.Employee{ID: "s1", Name: "Sam", Compensation: comp}))
	require.NoError(t, store.RecordPayment(ctx, payroll.Payment{ID: "p-1", Date: payroll.NewDate(2024, 1, 31)}))
	require.NoError(t, store.Close())

	// WHEN: the database is reopened (schema migration runs again)
	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	// THEN: data survives
	emp, err := reopened.GetEmployee(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Sam", emp.Name)

	latest, ok, err := reopened.LatestPaymentDate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payroll.NewDate(2024, 1, 31), latest)
}

func TestSQLite_MissingCompensationFieldSurfacesAtPayTime(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	// GIVEN: a salaried row whose salary column was nulled out behind the engine's back
	comp, err := payroll.NewSalaried(decimal.NewFromInt(3000))
	require.NoError(t, err)
	require.NoError(t, store.PutEmployee(ctx, payroll.Employee{ID: "s1", Name: "Sam", Compensation: comp}))
	_, err = store.db.ExecContext(ctx, "UPDATE employees SET monthly_salary = NULL WHERE id = 's1'")
	require.NoError(t, err)

	// WHEN: the employee is loaded and paid
	emp, err := store.GetEmployee(ctx, "s1")
	require.NoError(t, err)
	_, err = emp.Compensation.Pay(payroll.PayInput{EmployeeID: emp.ID, Ratio: decimal.NewFromInt(1)})

	// THEN: a data error names the field
	assert.True(t, payroll.IsDataError(err), "got %v", err)
	var dataErr *payroll.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "monthly_salary", dataErr.Field)
}

func TestSQLite_UnknownKindIsDataError(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	comp, err := payroll.NewHourly(decimal.NewFromInt(20))
	require.NoError(t, err)
	require.NoError(t, store.PutEmployee(ctx, payroll.Employee{ID: "h1", Name: "Hal", Compensation: comp}))
	_, err = store.db.ExecContext(ctx, "UPDATE employees SET comp_kind = 'piecework' WHERE id = 'h1'")
	require.NoError(t, err)

	_, err = store.GetEmployee(ctx, "h1")
	assert.True(t, payroll.IsDataError(err), "got %v", err)
}
