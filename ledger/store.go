/*
store.go - Persistence interface between the Engine and the database

PURPOSE:
  The Engine never talks SQL. It opens one atomic unit with WithTx and
  calls Tx methods inside it; the implementation commits when fn
  returns nil and rolls back on any error, including early validation
  failures.

APPEND-ONLY CONTRACT:
  Sales, stock movements and credit entries have Insert/Append methods
  and nothing else. There is no update or delete path for them, not
  even internally. The only history mutation is FlagCustomerSales, which
  marks sales before their customer is removed.

READS:
  View rebuilds the full read model and must observe committed state
  only.

IMPLEMENTATIONS:
  - store/sqlite: database/sql + mattn/go-sqlite3
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the storage gateway plus the aggregate reader.
type Store interface {
	// WithTx runs fn inside one transaction. fn's error rolls back
	// everything fn wrote and is returned unchanged.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// View returns the current read model from committed state.
	View(ctx context.Context) (*View, error)
}

// Tx is the set of writes and reads available inside one atomic unit.
type Tx interface {
	// Products
	InsertProduct(ctx context.Context, p NewProduct) (int64, error)
	UpdateProduct(ctx context.Context, p ProductEdit) error // ErrNotFound, ErrDuplicateName
	ArchiveProduct(ctx context.Context, id int64) error     // ErrNotFound
	ProductStock(ctx context.Context, id int64) (ProductStock, error)
	AdjustProductQty(ctx context.Context, id int64, delta decimal.Decimal) error

	// Customers
	InsertCustomer(ctx context.Context, c NewCustomer) (int64, error)
	UpdateCustomer(ctx context.Context, c CustomerEdit) error // ErrNotFound
	CustomerExists(ctx context.Context, id int64) (bool, error)
	FlagCustomerSales(ctx context.Context, customerID int64) (int64, error)
	DeleteCustomer(ctx context.Context, id int64) error // ErrNotFound, ErrReferenced

	// History (append-only)
	InsertSale(ctx context.Context, s SaleRow) (int64, error)
	AppendMovement(ctx context.Context, m MovementRow) (int64, error)
	InsertCredit(ctx context.Context, c CreditRow) (int64, error)

	// OutstandingSales returns non-return sales of productID for exactly
	// customerID (nil matches anonymous sales only) with quantity still
	// open for return, oldest first.
	OutstandingSales(ctx context.Context, productID int64, customerID *int64) ([]OutstandingSale, error)
}
