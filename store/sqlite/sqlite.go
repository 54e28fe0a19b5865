/*
Package sqlite provides the SQLite-backed ledger.Store.

PURPOSE:
  Storage Gateway and Aggregate Reader for the inventory ledger. Opens
  the database, applies the embedded schema migrations, runs each
  ledger operation inside one database transaction, and rebuilds the
  full read model on request.

APPEND-ONLY ENFORCEMENT:
  - sales, transactions and credits are only ever INSERTed
  - the one UPDATE on history is the customer_deleted flag set right
    before a customer is removed
  - corrections are new offsetting rows (returns, payments, adjustments)

KEY TABLES:
  products:     Stocked items, soft-deleted via archived
  customers:    Buyers, hard-deleted
  sales:        Sales and returns; returns link to origin_sale_id
  transactions: Stock movement audit trail (IN, OUT, RETURN)
  credits:      Charges and payments per customer

CONCURRENCY:
  A sync.RWMutex serializes writers in-process, and the pool is capped
  at one connection so ":memory:" databases survive between calls and
  SQLite never sees two writers from this process.

STORAGE FORMAT:
  Quantities and money are REAL columns; decimal.Decimal is converted
  at this boundary. Timestamps are UTC text in a fixed-width layout so
  that ORDER BY ts is chronological.

USAGE:
  store, err := sqlite.New("./inventory-ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - view.go: Aggregate Reader queries
  - migrations/: Versioned schema
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/inventory-ledger/ledger"
)

// timeLayout is RFC3339 with a fixed nanosecond width, so text order is
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New opens the database at dbPath and migrates it to the latest schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// STORAGE GATEWAY (ledger.Store)
// =============================================================================

// WithTx executes fn within a database transaction. The transaction is
// rolled back on every path that does not reach Commit.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

var _ ledger.Tx = (*txStore)(nil)

// =============================================================================
// PRODUCTS
// =============================================================================

func (ts *txStore) InsertProduct(ctx context.Context, p ledger.NewProduct) (int64, error) {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO products (name, sku, unit_price, qty, note, low_stock_threshold, created_at, archived)
		VALUES (?, ?, ?, 0, ?, ?, ?, 0)
	`,
		p.Name,
		nullString(p.SKU),
		p.UnitPrice.InexactFloat64(),
		nullString(p.Note),
		p.LowStockThreshold.InexactFloat64(),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return 0, classify("insert product", err)
	}
	return res.LastInsertId()
}

func (ts *txStore) UpdateProduct(ctx context.Context, p ledger.ProductEdit) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE products
		SET name = ?, sku = ?, unit_price = ?, note = ?, low_stock_threshold = ?
		WHERE id = ?
	`,
		p.Name,
		nullString(p.SKU),
		p.UnitPrice.InexactFloat64(),
		nullString(p.Note),
		p.LowStockThreshold.InexactFloat64(),
		p.ID,
	)
	if err != nil {
		return classify("update product", err)
	}
	return requireAffected(res)
}

func (ts *txStore) ArchiveProduct(ctx context.Context, id int64) error {
	res, err := ts.tx.ExecContext(ctx, "UPDATE products SET archived = 1 WHERE id = ?", id)
	if err != nil {
		return classify("archive product", err)
	}
	return requireAffected(res)
}

func (ts *txStore) ProductStock(ctx context.Context, id int64) (ledger.ProductStock, error) {
	stock := ledger.ProductStock{ID: id}
	err := ts.tx.QueryRowContext(ctx,
		"SELECT qty, unit_price, archived FROM products WHERE id = ?", id,
	).Scan(&stock.Qty, &stock.UnitPrice, &stock.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return stock, ledger.ErrNotFound
	}
	if err != nil {
		return stock, fmt.Errorf("failed to read product stock: %w", err)
	}
	return stock, nil
}

// AdjustProductQty rounds the stored sum to 9 places so REAL drift
// cannot leave a zeroed product slightly negative.
func (ts *txStore) AdjustProductQty(ctx context.Context, id int64, delta decimal.Decimal) error {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE products SET qty = ROUND(qty + ?, 9) WHERE id = ?",
		delta.InexactFloat64(), id,
	)
	if err != nil {
		return classify("adjust product qty", err)
	}
	return requireAffected(res)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (ts *txStore) InsertCustomer(ctx context.Context, c ledger.NewCustomer) (int64, error) {
	res, err := ts.tx.ExecContext(ctx,
		"INSERT INTO customers (name, phone, note, created_at) VALUES (?, ?, ?, ?)",
		c.Name, nullString(c.Phone), nullString(c.Note), formatTime(c.CreatedAt),
	)
	if err != nil {
		return 0, classify("insert customer", err)
	}
	return res.LastInsertId()
}

func (ts *txStore) UpdateCustomer(ctx context.Context, c ledger.CustomerEdit) error {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE customers SET name = ?, phone = ?, note = ? WHERE id = ?",
		c.Name, nullString(c.Phone), nullString(c.Note), c.ID,
	)
	if err != nil {
		return classify("update customer", err)
	}
	return requireAffected(res)
}

func (ts *txStore) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check customer: %w", err)
	}
	return count > 0, nil
}

// FlagCustomerSales marks every sale of the customer as customer_deleted.
// It must run before DeleteCustomer nullifies the references.
func (ts *txStore) FlagCustomerSales(ctx context.Context, customerID int64) (int64, error) {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE sales SET customer_deleted = 1 WHERE customer_id = ?", customerID,
	)
	if err != nil {
		return 0, classify("flag customer sales", err)
	}
	return res.RowsAffected()
}

func (ts *txStore) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := ts.tx.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return classify("delete customer", err)
	}
	return requireAffected(res)
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (ts *txStore) InsertSale(ctx context.Context, s ledger.SaleRow) (int64, error) {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO sales
		(ts, product_id, qty, price_snapshot, total_amount, customer_id, note,
		 is_credit, is_return, origin_sale_id, customer_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
		formatTime(s.Ts),
		s.ProductID,
		s.Qty.InexactFloat64(),
		s.PriceSnapshot.InexactFloat64(),
		s.TotalAmount.InexactFloat64(),
		nullInt64(s.CustomerID),
		nullString(s.Note),
		s.IsCredit,
		s.IsReturn,
		nullInt64(s.OriginSaleID),
	)
	if err != nil {
		return 0, classify("insert sale", err)
	}
	return res.LastInsertId()
}

func (ts *txStore) AppendMovement(ctx context.Context, m ledger.MovementRow) (int64, error) {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO transactions
		(ts, kind, product_id, qty, unit_price, total_amount, counterparty, customer_id, note, sale_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		formatTime(m.Ts),
		string(m.Kind),
		m.ProductID,
		m.Qty.InexactFloat64(),
		nullFloat(m.UnitPrice),
		nullFloat(m.TotalAmount),
		nullString(m.Counterparty),
		nullInt64(m.CustomerID),
		nullString(m.Note),
		nullInt64(m.SaleID),
	)
	if err != nil {
		return 0, classify("append movement", err)
	}
	return res.LastInsertId()
}

func (ts *txStore) InsertCredit(ctx context.Context, c ledger.CreditRow) (int64, error) {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO credits (ts, customer_id, sale_id, amount, is_payment, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		formatTime(c.Ts),
		c.CustomerID,
		nullInt64(c.SaleID),
		c.Amount.InexactFloat64(),
		c.IsPayment,
		nullString(c.Note),
	)
	if err != nil {
		return 0, classify("insert credit", err)
	}
	return res.LastInsertId()
}

// =============================================================================
// RETURN CANDIDATES
// =============================================================================

const outstandingSalesQuery = `
	SELECT s.id, s.ts, s.qty, s.price_snapshot, s.is_credit, s.customer_id,
	       IFNULL(SUM(r.qty), 0) AS returned
	FROM sales s
	LEFT JOIN sales r ON r.origin_sale_id = s.id AND r.is_return = 1
	WHERE s.product_id = ? AND %s AND s.is_return = 0
	GROUP BY s.id
	HAVING s.qty - IFNULL(SUM(r.qty), 0) > 0
	ORDER BY s.ts ASC, s.id ASC
`

// OutstandingSales derives the open quantity of each sale from its
// linked return rows. There is no stored counter.
func (ts *txStore) OutstandingSales(ctx context.Context, productID int64, customerID *int64) ([]ledger.OutstandingSale, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if customerID == nil {
		rows, err = ts.tx.QueryContext(ctx, fmt.Sprintf(outstandingSalesQuery, "s.customer_id IS NULL"), productID)
	} else {
		rows, err = ts.tx.QueryContext(ctx, fmt.Sprintf(outstandingSalesQuery, "s.customer_id = ?"), productID, *customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding sales: %w", err)
	}
	defer rows.Close()

	var sales []ledger.OutstandingSale
	for rows.Next() {
		var (
			sale     ledger.OutstandingSale
			stamp    string
			customer sql.NullInt64
		)
		if err := rows.Scan(&sale.SaleID, &stamp, &sale.Qty, &sale.PriceSnapshot,
			&sale.WasCredit, &customer, &sale.Returned); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding sale: %w", err)
		}
		if sale.Ts, err = parseTime(stamp); err != nil {
			return nil, err
		}
		sale.CustomerID = int64Ptr(customer)
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// classify maps SQLite constraint failures onto ledger conditions.
func classify(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%s: %w", op, ledger.ErrDuplicateName)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: %w", op, ledger.ErrReferenced)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the fixed layout plus the shapes SQLite itself
// produces, so rows written by hand or by datetime('now') still load.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(d decimal.NullDecimal) sql.NullFloat64 {
	if !d.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.Decimal.InexactFloat64(), Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
