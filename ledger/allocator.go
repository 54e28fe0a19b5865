package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Epsilon absorbs rounding noise that REAL columns introduce when
// feasibility and override differences are compared.
var Epsilon = decimal.New(1, -9)

// Allocation is the share of a return charged against one original sale.
type Allocation struct {
	Sale OutstandingSale
	Qty  decimal.Decimal
}

// Amount is the refund value of this portion at the original price snapshot.
func (a Allocation) Amount() decimal.Decimal {
	return a.Qty.Mul(a.Sale.PriceSnapshot)
}

// AllocateReturn partitions qty across outstanding sales, oldest first.
//
// Candidates with nothing left to return are ignored. The walk stops as
// soon as qty is covered, so later sales are only touched when earlier
// ones are exhausted. Ties on timestamp go to the lower sale id.
//
// Fails with ErrNoReturnableSale when no candidate has quantity open and
// with ErrReturnExceedsBalance when the open total is short of qty.
func AllocateReturn(candidates []OutstandingSale, qty decimal.Decimal) ([]Allocation, error) {
	const op = "allocate return"

	open := make([]OutstandingSale, 0, len(candidates))
	total := decimal.Zero
	for _, c := range candidates {
		if !c.Available().IsPositive() {
			continue
		}
		open = append(open, c)
		total = total.Add(c.Available())
	}

	if len(open) == 0 {
		return nil, invalid(op, ErrNoReturnableSale, "no sale is available to return for this product and customer")
	}
	if total.Add(Epsilon).LessThan(qty) {
		return nil, invalid(op, ErrReturnExceedsBalance,
			"return quantity %s exceeds the %s units still returnable", qty, total)
	}

	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].Ts.Equal(open[j].Ts) {
			return open[i].Ts.Before(open[j].Ts)
		}
		return open[i].SaleID < open[j].SaleID
	})

	remaining := qty
	var allocations []Allocation
	for _, c := range open {
		if !remaining.IsPositive() {
			break
		}
		portion := decimal.Min(remaining, c.Available())
		allocations = append(allocations, Allocation{Sale: c, Qty: portion})
		remaining = remaining.Sub(portion)
	}

	return allocations, nil
}

// AllocatedTotal sums the refund value of a set of allocations.
func AllocatedTotal(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount())
	}
	return total
}
