package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuildBalances projects one CustomerBalance per customer from the credit
// history. Customers keep their input order and appear even with no
// credit activity (zero charged, zero paid).
//
//	outstanding = sum(charges) - sum(payments)
func BuildBalances(customers []Customer, credits []CreditEntry) []CustomerBalance {
	type totals struct {
		charged decimal.Decimal
		paid    decimal.Decimal
		last    *time.Time
	}

	byCustomer := make(map[int64]*totals, len(customers))
	for _, c := range customers {
		byCustomer[c.ID] = &totals{charged: decimal.Zero, paid: decimal.Zero}
	}

	for _, cr := range credits {
		t, ok := byCustomer[cr.CustomerID]
		if !ok {
			continue
		}
		if cr.IsPayment {
			t.paid = t.paid.Add(cr.Amount)
		} else {
			t.charged = t.charged.Add(cr.Amount)
		}
		if t.last == nil || cr.Ts.After(*t.last) {
			ts := cr.Ts
			t.last = &ts
		}
	}

	balances := make([]CustomerBalance, 0, len(customers))
	for _, c := range customers {
		t := byCustomer[c.ID]
		balances = append(balances, CustomerBalance{
			CustomerID:    c.ID,
			CustomerName:  c.Name,
			CustomerPhone: c.Phone,
			TotalCredit:   t.charged,
			TotalPaid:     t.paid,
			Outstanding:   t.charged.Sub(t.paid),
			LastActivity:  t.last,
		})
	}
	return balances
}

// BalanceOf returns the projected balance for one customer, if listed.
func (v *View) BalanceOf(customerID int64) (CustomerBalance, bool) {
	for _, b := range v.CustomerBalances {
		if b.CustomerID == customerID {
			return b, true
		}
	}
	return CustomerBalance{}, false
}

// ProductByID returns an active product from the view.
func (v *View) ProductByID(id int64) (Product, bool) {
	for _, p := range v.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
