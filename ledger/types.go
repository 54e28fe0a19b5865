/*
Package ledger is the inventory ledger engine.

PURPOSE:
  Tracks stock on hand, sales, returns and customer credit for a small
  shop. Every state change is one atomic unit that validates its input,
  moves product quantity, and appends history rows. Nothing in the
  history tables is ever updated or deleted; corrections are new
  offsetting rows (returns, payments, adjustments).

KEY CONCEPTS IN THIS FILE (types.go):
  - Product, Customer: the two editable entities
  - Sale, StockMovement, CreditEntry: append-only history
  - CustomerBalance: derived, never stored
  - View: the full read model returned after every operation

PRECISION:
  Quantities and money use decimal.Decimal. The storage schema keeps
  REAL columns; conversion happens at the store boundary.

SEE ALSO:
  - engine.go: State transitions
  - allocator.go: FIFO return allocation
  - balance.go: Per-customer balance projection
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MOVEMENT KIND
// =============================================================================

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementIn     MovementKind = "IN"
	MovementOut    MovementKind = "OUT"
	MovementReturn MovementKind = "RETURN"
)

// ParseMovementKind decodes a stored or submitted kind. There is no
// fallback: anything other than IN, OUT or RETURN is ErrUnknownMovementKind.
func ParseMovementKind(s string) (MovementKind, error) {
	switch k := MovementKind(s); k {
	case MovementIn, MovementOut, MovementReturn:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMovementKind, s)
	}
}

// Sign returns +1 for stock entering, -1 for stock leaving.
func (k MovementKind) Sign() int64 {
	if k == MovementOut {
		return -1
	}
	return 1
}

// =============================================================================
// ENTITIES
// =============================================================================

// Product is a stocked item. Archived products stay resolvable from history.
type Product struct {
	ID                int64
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Qty               decimal.Decimal
	Note              string
	LowStockThreshold decimal.Decimal
	CreatedAt         time.Time
	Archived          bool
}

// IsLowStock reports whether quantity on hand is at or below the threshold.
func (p Product) IsLowStock() bool {
	return p.Qty.LessThanOrEqual(p.LowStockThreshold)
}

type Customer struct {
	ID        int64
	Name      string
	Phone     string
	Note      string
	CreatedAt time.Time
}

// Sale is one row of sales history, either a sale or a return.
// Product and customer display fields are joined in by the reader.
type Sale struct {
	ID              int64
	Ts              time.Time
	ProductID       int64
	ProductName     string
	Qty             decimal.Decimal
	UnitPrice       decimal.Decimal // price snapshot at sale time
	TotalAmount     decimal.Decimal
	CustomerID      *int64
	CustomerName    string
	CustomerPhone   string
	Note            string
	IsCredit        bool
	IsReturn        bool
	OriginSaleID    *int64
	CustomerDeleted bool
}

// StockMovement is one row of the quantity audit trail.
type StockMovement struct {
	ID           int64
	Ts           time.Time
	Kind         MovementKind
	ProductID    int64
	ProductName  string
	Qty          decimal.Decimal
	UnitPrice    decimal.NullDecimal
	TotalAmount  decimal.NullDecimal
	Counterparty string
	CustomerID   *int64
	CustomerName string
	Note         string
	SaleID       *int64
}

// CreditEntry is a charge (IsPayment=false) or a payment (IsPayment=true).
type CreditEntry struct {
	ID            int64
	Ts            time.Time
	CustomerID    int64
	CustomerName  string
	CustomerPhone string
	SaleID        *int64
	Amount        decimal.Decimal
	IsPayment     bool
	Note          string
}

// CustomerBalance is derived from credit entries; Outstanding may be negative.
type CustomerBalance struct {
	CustomerID    int64
	CustomerName  string
	CustomerPhone string
	TotalCredit   decimal.Decimal
	TotalPaid     decimal.Decimal
	Outstanding   decimal.Decimal
	LastActivity  *time.Time
}

// View is the complete read model, rebuilt after every mutation.
type View struct {
	Products         []Product
	Customers        []Customer
	Sales            []Sale
	StockMovements   []StockMovement
	Credits          []CreditEntry
	CustomerBalances []CustomerBalance
}

// =============================================================================
// WRITE-SIDE ROWS - What the Engine hands to a Tx
// =============================================================================

type NewProduct struct {
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Note              string
	LowStockThreshold decimal.Decimal
	CreatedAt         time.Time
}

type ProductEdit struct {
	ID                int64
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Note              string
	LowStockThreshold decimal.Decimal
}

// ProductStock is the slice of a product a stock-affecting operation reads.
type ProductStock struct {
	ID        int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Archived  bool
}

type NewCustomer struct {
	Name      string
	Phone     string
	Note      string
	CreatedAt time.Time
}

type CustomerEdit struct {
	ID    int64
	Name  string
	Phone string
	Note  string
}

type SaleRow struct {
	Ts            time.Time
	ProductID     int64
	Qty           decimal.Decimal
	PriceSnapshot decimal.Decimal
	TotalAmount   decimal.Decimal
	CustomerID    *int64
	Note          string
	IsCredit      bool
	IsReturn      bool
	OriginSaleID  *int64
}

type MovementRow struct {
	Ts           time.Time
	Kind         MovementKind
	ProductID    int64
	Qty          decimal.Decimal
	UnitPrice    decimal.NullDecimal
	TotalAmount  decimal.NullDecimal
	Counterparty string
	CustomerID   *int64
	Note         string
	SaleID       *int64
}

type CreditRow struct {
	Ts         time.Time
	CustomerID int64
	SaleID     *int64
	Amount     decimal.Decimal
	IsPayment  bool
	Note       string
}

// OutstandingSale is a non-return sale with quantity still open for return.
// Returned is derived from linked return rows, never stored.
type OutstandingSale struct {
	SaleID        int64
	Ts            time.Time
	Qty           decimal.Decimal
	Returned      decimal.Decimal
	PriceSnapshot decimal.Decimal
	CustomerID    *int64
	WasCredit     bool
}

// Available is the quantity that can still be returned against this sale.
func (s OutstandingSale) Available() decimal.Decimal {
	return s.Qty.Sub(s.Returned)
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
