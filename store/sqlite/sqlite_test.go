package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func seedProduct(t *testing.T, s *Store, name string, qty float64) int64 {
	var id int64
	err := s.WithTx(context.Background(), func(tx ledger.Tx) error {
		var err error
		id, err = tx.InsertProduct(context.Background(), ledger.NewProduct{
			Name:              name,
			UnitPrice:         dec(10),
			LowStockThreshold: dec(5),
			CreatedAt:         t0,
		})
		if err != nil {
			return err
		}
		return tx.AdjustProductQty(context.Background(), id, dec(qty))
	})
	require.NoError(t, err)
	return id
}

func seedCustomer(t *testing.T, s *Store, name string) int64 {
	var id int64
	err := s.WithTx(context.Background(), func(tx ledger.Tx) error {
		var err error
		id, err = tx.InsertCustomer(context.Background(), ledger.NewCustomer{
			Name: name, Phone: "555-0100", CreatedAt: t0,
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func seedSale(t *testing.T, s *Store, productID int64, customerID *int64, qty float64, ts time.Time, credit bool) int64 {
	var id int64
	err := s.WithTx(context.Background(), func(tx ledger.Tx) error {
		var err error
		id, err = tx.InsertSale(context.Background(), ledger.SaleRow{
			Ts:            ts,
			ProductID:     productID,
			Qty:           dec(qty),
			PriceSnapshot: dec(10),
			TotalAmount:   dec(qty * 10),
			CustomerID:    customerID,
			IsCredit:      credit,
		})
		return err
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// MIGRATION TESTS
// =============================================================================

func TestNew_AppliesEmbeddedMigrations(t *testing.T) {
	store := newTestStore(t)

	version, dirty, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	view, err := store.View(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Products)
	assert.Empty(t, view.CustomerBalances)
}

// =============================================================================
// GATEWAY TESTS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts a product and then fails
	// WHEN: WithTx returns
	// THEN: The product is not visible and the error is returned unchanged

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.InsertProduct(ctx, ledger.NewProduct{Name: "Widget", CreatedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	view, err := store.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, view.Products)
}

func TestInsertProduct_DuplicateNameIgnoresCase(t *testing.T) {
	store := newTestStore(t)
	seedProduct(t, store, "Widget", 0)

	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.InsertProduct(context.Background(), ledger.NewProduct{Name: "WIDGET", CreatedAt: t0})
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)
}

func TestUpdates_MissingRowIsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.UpdateProduct(ctx, ledger.ProductEdit{ID: 42, Name: "Ghost"})
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.ArchiveProduct(ctx, 42)
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.DeleteCustomer(ctx, 42)
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAdjustProductQty_AbsorbsFloatDrift(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := seedProduct(t, store, "Rice", 0.3)

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.AdjustProductQty(ctx, id, dec(-0.1)); err != nil {
			return err
		}
		return tx.AdjustProductQty(ctx, id, dec(-0.2))
	})
	require.NoError(t, err)

	view, err := store.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.Products, 1)
	assert.True(t, view.Products[0].Qty.IsZero(), "got %s", view.Products[0].Qty)
}

// =============================================================================
// OUTSTANDING SALES
// =============================================================================

func TestOutstandingSales_DerivesAvailableFromReturns(t *testing.T) {
	// GIVEN: Two sales of 5 to the same customer, the first partly returned
	// WHEN: Listing outstanding sales
	// THEN: Returned quantity is summed from the linked return rows, oldest first

	store := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Widget", 100)
	customerID := seedCustomer(t, store, "Alice")

	first := seedSale(t, store, productID, &customerID, 5, t0, false)
	second := seedSale(t, store, productID, &customerID, 5, t0.Add(time.Hour), false)

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertSale(ctx, ledger.SaleRow{
			Ts: t0.Add(2 * time.Hour), ProductID: productID, Qty: dec(3),
			PriceSnapshot: dec(10), TotalAmount: dec(30), CustomerID: &customerID,
			IsReturn: true, OriginSaleID: &first,
		})
		return err
	})
	require.NoError(t, err)

	var sales []ledger.OutstandingSale
	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		sales, err = tx.OutstandingSales(ctx, productID, &customerID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, sales, 2)

	assert.Equal(t, first, sales[0].SaleID)
	assert.True(t, sales[0].Returned.Equal(dec(3)))
	assert.True(t, sales[0].Available().Equal(dec(2)))
	assert.Equal(t, second, sales[1].SaleID)
	assert.True(t, sales[1].Returned.IsZero())
}

func TestOutstandingSales_AnonymousMatchesOnlyAnonymous(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Widget", 100)
	customerID := seedCustomer(t, store, "Alice")

	anon := seedSale(t, store, productID, nil, 2, t0, false)
	seedSale(t, store, productID, &customerID, 4, t0, false)

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		sales, err := tx.OutstandingSales(ctx, productID, nil)
		if err != nil {
			return err
		}
		require.Len(t, sales, 1)
		assert.Equal(t, anon, sales[0].SaleID)
		assert.Nil(t, sales[0].CustomerID)
		return nil
	})
	require.NoError(t, err)
}

func TestOutstandingSales_FullyReturnedSaleIsExcluded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Widget", 100)
	sale := seedSale(t, store, productID, nil, 2, t0, false)

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.InsertSale(ctx, ledger.SaleRow{
			Ts: t0, ProductID: productID, Qty: dec(2), PriceSnapshot: dec(10),
			TotalAmount: dec(20), IsReturn: true, OriginSaleID: &sale,
		}); err != nil {
			return err
		}
		sales, err := tx.OutstandingSales(ctx, productID, nil)
		if err != nil {
			return err
		}
		assert.Empty(t, sales)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// CUSTOMER REMOVAL
// =============================================================================

func TestDeleteCustomer_NullifiesSalesAndCascadesCredits(t *testing.T) {
	// GIVEN: A customer with a credit sale and its charge
	// WHEN: Sales are flagged and the customer is deleted
	// THEN: The sale keeps customer_deleted, loses customer_id, and the credit is gone

	store := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Widget", 10)
	customerID := seedCustomer(t, store, "Alice")
	saleID := seedSale(t, store, productID, &customerID, 3, t0, true)

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertCredit(ctx, ledger.CreditRow{
			Ts: t0, CustomerID: customerID, SaleID: &saleID, Amount: dec(30),
		})
		return err
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		flagged, err := tx.FlagCustomerSales(ctx, customerID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), flagged)
		return tx.DeleteCustomer(ctx, customerID)
	})
	require.NoError(t, err)

	view, err := store.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, view.Customers)
	assert.Empty(t, view.Credits)
	assert.Empty(t, view.CustomerBalances)
	require.Len(t, view.Sales, 1)
	assert.True(t, view.Sales[0].CustomerDeleted)
	assert.Nil(t, view.Sales[0].CustomerID)
}

// =============================================================================
// AGGREGATE READER
// =============================================================================

func TestView_OrderingAndJoins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	widget := seedProduct(t, store, "widget", 10)
	seedProduct(t, store, "Anvil", 10)
	customerID := seedCustomer(t, store, "bob")
	seedCustomer(t, store, "Alice")

	older := seedSale(t, store, widget, &customerID, 1, t0, false)
	newer := seedSale(t, store, widget, nil, 1, t0.Add(time.Minute), false)

	view, err := store.View(ctx)
	require.NoError(t, err)

	require.Len(t, view.Products, 2)
	assert.Equal(t, "Anvil", view.Products[0].Name)
	assert.Equal(t, "widget", view.Products[1].Name)

	require.Len(t, view.Customers, 2)
	assert.Equal(t, "Alice", view.Customers[0].Name)

	require.Len(t, view.Sales, 2)
	assert.Equal(t, newer, view.Sales[0].ID)
	assert.Equal(t, older, view.Sales[1].ID)
	assert.Equal(t, "widget", view.Sales[1].ProductName)
	assert.Equal(t, "bob", view.Sales[1].CustomerName)
	assert.True(t, view.Sales[1].Ts.Equal(t0))

	require.Len(t, view.CustomerBalances, 2)
	assert.True(t, view.CustomerBalances[0].Outstanding.IsZero())
}

func TestView_ArchivedProductHiddenButHistoryResolves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Widget", 10)
	seedSale(t, store, productID, nil, 1, t0, false)

	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.ArchiveProduct(ctx, productID)
	}))

	view, err := store.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, view.Products)
	require.Len(t, view.Sales, 1)
	assert.Equal(t, "Widget", view.Sales[0].ProductName)
}

func TestView_UnknownMovementKindFailsLoudly(t *testing.T) {
	// GIVEN: A movement row with a kind the ledger does not know
	// WHEN: The view is rebuilt
	// THEN: The read fails with ErrUnknownMovementKind instead of guessing

	store := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Widget", 10)

	_, err := store.db.ExecContext(ctx,
		"INSERT INTO transactions (ts, kind, product_id, qty) VALUES (?, 'TRANSFER', ?, 1)",
		formatTime(t0), productID)
	require.NoError(t, err)

	_, err = store.View(ctx)
	assert.ErrorIs(t, err, ledger.ErrUnknownMovementKind)
}

func TestParseTime_AcceptsSQLiteDatetime(t *testing.T) {
	got, err := parseTime("2025-03-10 09:00:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(t0))

	got, err = parseTime(formatTime(t0.Add(1500 * time.Nanosecond)))
	require.NoError(t, err)
	assert.True(t, got.Equal(t0.Add(1500*time.Nanosecond)))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
