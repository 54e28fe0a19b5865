package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// AGGREGATE READER
// =============================================================================

// View rebuilds the full read model. All queries run inside one read
// transaction so the projection reflects a single committed state.
func (s *Store) View(ctx context.Context) (*ledger.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback()

	view := &ledger.View{}
	if view.Products, err = fetchProducts(ctx, tx); err != nil {
		return nil, err
	}
	if view.Customers, err = fetchCustomers(ctx, tx); err != nil {
		return nil, err
	}
	if view.Sales, err = fetchSales(ctx, tx); err != nil {
		return nil, err
	}
	if view.StockMovements, err = fetchMovements(ctx, tx); err != nil {
		return nil, err
	}
	if view.Credits, err = fetchCredits(ctx, tx); err != nil {
		return nil, err
	}
	view.CustomerBalances = ledger.BuildBalances(view.Customers, view.Credits)

	return view, nil
}

func fetchProducts(ctx context.Context, tx *sql.Tx) ([]ledger.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, sku, unit_price, qty, note, low_stock_threshold, created_at, archived
		FROM products
		WHERE archived = 0
		ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []ledger.Product{}
	for rows.Next() {
		var (
			p         ledger.Product
			sku, note sql.NullString
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &sku, &p.UnitPrice, &p.Qty, &note,
			&p.LowStockThreshold, &createdAt, &p.Archived); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.SKU, p.Note = sku.String, note.String
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func fetchCustomers(ctx context.Context, tx *sql.Tx) ([]ledger.Customer, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, phone, note, created_at
		FROM customers
		ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	customers := []ledger.Customer{}
	for rows.Next() {
		var (
			c           ledger.Customer
			phone, note sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&c.ID, &c.Name, &phone, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Phone, c.Note = phone.String, note.String
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func fetchSales(ctx context.Context, tx *sql.Tx) ([]ledger.Sale, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT s.id, s.ts, s.product_id, p.name, s.qty, s.price_snapshot, s.total_amount,
		       s.customer_id, c.name, c.phone, s.note, s.is_credit, s.is_return,
		       s.origin_sale_id, s.customer_deleted
		FROM sales s
		JOIN products p ON p.id = s.product_id
		LEFT JOIN customers c ON c.id = s.customer_id
		ORDER BY s.ts DESC, s.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	sales := []ledger.Sale{}
	for rows.Next() {
		var (
			s                         ledger.Sale
			stamp                     string
			customerID, originID      sql.NullInt64
			custName, custPhone, note sql.NullString
		)
		if err := rows.Scan(&s.ID, &stamp, &s.ProductID, &s.ProductName, &s.Qty, &s.UnitPrice,
			&s.TotalAmount, &customerID, &custName, &custPhone, &note, &s.IsCredit, &s.IsReturn,
			&originID, &s.CustomerDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		if s.Ts, err = parseTime(stamp); err != nil {
			return nil, err
		}
		s.CustomerID = int64Ptr(customerID)
		s.OriginSaleID = int64Ptr(originID)
		s.CustomerName, s.CustomerPhone, s.Note = custName.String, custPhone.String, note.String
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// fetchMovements fails on a kind it does not recognize instead of
// guessing one.
func fetchMovements(ctx context.Context, tx *sql.Tx) ([]ledger.StockMovement, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT t.id, t.ts, t.kind, t.product_id, p.name, t.qty, t.unit_price, t.total_amount,
		       t.counterparty, t.customer_id, c.name, t.note, t.sale_id
		FROM transactions t
		JOIN products p ON p.id = t.product_id
		LEFT JOIN customers c ON c.id = t.customer_id
		ORDER BY t.ts DESC, t.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	movements := []ledger.StockMovement{}
	for rows.Next() {
		var (
			m                            ledger.StockMovement
			stamp, kind                  string
			customerID, saleID           sql.NullInt64
			counterparty, custName, note sql.NullString
		)
		if err := rows.Scan(&m.ID, &stamp, &kind, &m.ProductID, &m.ProductName, &m.Qty,
			&m.UnitPrice, &m.TotalAmount, &counterparty, &customerID, &custName, &note,
			&saleID); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		if m.Kind, err = ledger.ParseMovementKind(kind); err != nil {
			return nil, fmt.Errorf("stock movement %d: %w", m.ID, err)
		}
		if m.Ts, err = parseTime(stamp); err != nil {
			return nil, err
		}
		m.CustomerID = int64Ptr(customerID)
		m.SaleID = int64Ptr(saleID)
		m.Counterparty, m.CustomerName, m.Note = counterparty.String, custName.String, note.String
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func fetchCredits(ctx context.Context, tx *sql.Tx) ([]ledger.CreditEntry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT cr.id, cr.ts, cr.customer_id, c.name, c.phone, cr.sale_id, cr.amount,
		       cr.is_payment, cr.note
		FROM credits cr
		JOIN customers c ON c.id = cr.customer_id
		ORDER BY cr.ts DESC, cr.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	credits := []ledger.CreditEntry{}
	for rows.Next() {
		var (
			cr          ledger.CreditEntry
			stamp       string
			saleID      sql.NullInt64
			phone, note sql.NullString
		)
		if err := rows.Scan(&cr.ID, &stamp, &cr.CustomerID, &cr.CustomerName, &phone, &saleID,
			&cr.Amount, &cr.IsPayment, &note); err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		if cr.Ts, err = parseTime(stamp); err != nil {
			return nil, err
		}
		cr.SaleID = int64Ptr(saleID)
		cr.CustomerPhone, cr.Note = phone.String, note.String
		credits = append(credits, cr)
	}
	return credits, rows.Err()
}
