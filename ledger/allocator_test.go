package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func candidate(id int64, ts time.Time, qty, returned string) OutstandingSale {
	return OutstandingSale{
		SaleID:        id,
		Ts:            ts,
		Qty:           d(qty),
		Returned:      d(returned),
		PriceSnapshot: d("10"),
	}
}

var (
	t1 = time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(24 * time.Hour)
	t3 = t2.Add(24 * time.Hour)
)

func TestAllocateReturn_OldestFirst(t *testing.T) {
	// GIVEN: Sale A (5 @ T1) and sale B (5 @ T2)
	// WHEN: Returning 7
	// THEN: A takes 5, B takes 2

	allocs, err := AllocateReturn([]OutstandingSale{
		candidate(2, t2, "5", "0"),
		candidate(1, t1, "5", "0"),
	}, d("7"))
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	assert.Equal(t, int64(1), allocs[0].Sale.SaleID)
	assert.True(t, allocs[0].Qty.Equal(d("5")))
	assert.Equal(t, int64(2), allocs[1].Sale.SaleID)
	assert.True(t, allocs[1].Qty.Equal(d("2")))
	assert.True(t, AllocatedTotal(allocs).Equal(d("70")))
}

func TestAllocateReturn_StopsWhenCovered(t *testing.T) {
	allocs, err := AllocateReturn([]OutstandingSale{
		candidate(1, t1, "5", "0"),
		candidate(2, t2, "5", "0"),
		candidate(3, t3, "5", "0"),
	}, d("3"))
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, int64(1), allocs[0].Sale.SaleID)
	assert.True(t, allocs[0].Qty.Equal(d("3")))
}

func TestAllocateReturn_UsesAvailableNotSold(t *testing.T) {
	// GIVEN: Sale A already had 4 of 5 returned
	// WHEN: Returning 3
	// THEN: A takes its last 1, B takes 2

	allocs, err := AllocateReturn([]OutstandingSale{
		candidate(1, t1, "5", "4"),
		candidate(2, t2, "5", "0"),
	}, d("3"))
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.True(t, allocs[0].Qty.Equal(d("1")))
	assert.True(t, allocs[1].Qty.Equal(d("2")))
}

func TestAllocateReturn_TiesBreakBySaleID(t *testing.T) {
	allocs, err := AllocateReturn([]OutstandingSale{
		candidate(9, t1, "1", "0"),
		candidate(4, t1, "1", "0"),
	}, d("1"))
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, int64(4), allocs[0].Sale.SaleID)
}

func TestAllocateReturn_SkipsExhaustedSales(t *testing.T) {
	allocs, err := AllocateReturn([]OutstandingSale{
		candidate(1, t1, "5", "5"),
		candidate(2, t2, "2", "0"),
	}, d("2"))
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, int64(2), allocs[0].Sale.SaleID)
}

func TestAllocateReturn_NoOutstandingSale(t *testing.T) {
	_, err := AllocateReturn(nil, d("1"))
	assert.ErrorIs(t, err, ErrNoReturnableSale)
	assert.True(t, IsValidation(err))

	_, err = AllocateReturn([]OutstandingSale{candidate(1, t1, "2", "2")}, d("1"))
	assert.ErrorIs(t, err, ErrNoReturnableSale)
}

func TestAllocateReturn_ExceedsAvailable(t *testing.T) {
	// GIVEN: A single outstanding sale of 5
	// WHEN: Returning 6
	// THEN: Validation error, nothing allocated

	allocs, err := AllocateReturn([]OutstandingSale{candidate(1, t1, "5", "0")}, d("6"))
	assert.Nil(t, allocs)
	assert.ErrorIs(t, err, ErrReturnExceedsBalance)
	assert.True(t, IsValidation(err))
}

func TestAllocateReturn_EpsilonTolerance(t *testing.T) {
	// Float noise from REAL columns must not reject an exact full return.
	allocs, err := AllocateReturn([]OutstandingSale{
		candidate(1, t1, "0.30000000000000004", "0.1"),
	}, d("0.2000000000000001"))
	require.NoError(t, err)
	require.Len(t, allocs, 1)

	_, err = AllocateReturn([]OutstandingSale{candidate(1, t1, "1", "0")}, d("1.00000001"))
	assert.ErrorIs(t, err, ErrReturnExceedsBalance)
}

func TestAllocation_AmountUsesPriceSnapshot(t *testing.T) {
	a := Allocation{
		Sale: OutstandingSale{PriceSnapshot: d("12.5")},
		Qty:  d("2"),
	}
	assert.True(t, a.Amount().Equal(d("25")))
}
