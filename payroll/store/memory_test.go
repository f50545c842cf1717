package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/storetest"
)

func TestMemory_Repository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) payroll.TxRepository { return NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	comp, err := payroll.NewHourly(decimal.NewFromInt(20))
	require.NoError(t, err)
	require.NoError(t, m.PutEmployee(ctx, payroll.Employee{
		ID:           "h1",
		Name:         "Hal",
		Compensation: comp,
		Union:        &payroll.UnionMembership{MemberID: "u-1", DuesRate: decimal.NewFromInt(5)},
	}))

	// WHEN: the caller mutates what it got back
	got, err := m.GetEmployee(ctx, "h1")
	require.NoError(t, err)
	got.Name = "Mutated"
	got.Union.MemberID = "mutated"

	// THEN: stored state is unchanged
	again, err := m.GetEmployee(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Hal", again.Name)
	assert.Equal(t, "u-1", again.Union.MemberID)
}
