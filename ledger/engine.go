/*
engine.go - Atomic state transitions of the inventory ledger

PURPOSE:
  Each exported method is one operation of the ledger. It validates its
  payload, opens exactly one atomic unit on the Store, mutates product
  quantity and appends history inside it, and on commit returns a fresh
  View. A failed operation returns an error and no View; nothing it
  wrote survives.

INVARIANTS:
  1. Product quantity never goes below zero.
  2. For every sale, the quantity returned against it never exceeds the
     quantity sold.
  3. Outstanding balance = charges - payments, recomputable at any time
     from credit entries.
  4. Every quantity change has a matching stock movement row.

OPERATIONS:
  Products:   CreateProduct, UpdateProduct, ArchiveProduct
  Customers:  CreateCustomer, UpdateCustomer, DeleteCustomer
  Stock:      RecordStockEntry
  Sales:      RecordSale, RecordReturn
  Credit:     RecordCreditPayment
  Read:       GetView

REMOVAL STRATEGIES:
  Products are archived (soft delete): history keeps resolving them.
  Customers are deleted (hard delete): their sales are first flagged
  customer_deleted so reports can still say who bought, then the row
  goes and the database nullifies the sale references.

SEE ALSO:
  - allocator.go: How a return is split across original sales
  - store.go: The Store/Tx contract used here
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	initialStockNote     = "initial stock"
	returnSettlementNote = "return settlement"
	returnAdjustmentNote = "return amount adjustment"
)

// Engine applies ledger operations against a Store.
type Engine struct {
	store            Store
	now              func() time.Time
	defaultThreshold decimal.Decimal
	log              zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the source of operation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDefaultLowStockThreshold sets the threshold used when a product
// payload omits one.
func WithDefaultLowStockThreshold(d decimal.Decimal) Option {
	return func(e *Engine) { e.defaultThreshold = d }
}

// WithLogger sets the logger operations report to. The default discards.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		now:              time.Now,
		defaultThreshold: DefaultLowStockThreshold,
		log:              zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetView returns the current read model without mutating anything.
func (e *Engine) GetView(ctx context.Context) (*View, error) {
	view, err := e.store.View(ctx)
	if err != nil {
		return nil, e.fail("get view", err)
	}
	return view, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct inserts a product with quantity zero. A positive initial
// quantity is booked as an IN movement in the same unit.
func (e *Engine) CreateProduct(ctx context.Context, in ProductInput) (*View, error) {
	const op = "create product"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}
	threshold := e.thresholdOrDefault(in.LowStockThreshold)
	ts := e.timestamp()

	var productID int64
	err := e.store.WithTx(ctx, func(tx Tx) error {
		id, err := tx.InsertProduct(ctx, NewProduct{
			Name:              in.Name,
			SKU:               in.SKU,
			UnitPrice:         in.UnitPrice,
			Note:              in.Note,
			LowStockThreshold: threshold,
			CreatedAt:         ts,
		})
		if err != nil {
			return err
		}
		productID = id

		if in.InitialQty == nil || !in.InitialQty.IsPositive() {
			return nil
		}
		if err := tx.AdjustProductQty(ctx, id, *in.InitialQty); err != nil {
			return err
		}
		_, err = tx.AppendMovement(ctx, MovementRow{
			Ts:          ts,
			Kind:        MovementIn,
			ProductID:   id,
			Qty:         *in.InitialQty,
			UnitPrice:   nullDecimal(in.UnitPrice),
			TotalAmount: nullDecimal(in.InitialQty.Mul(in.UnitPrice)),
			Note:        initialStockNote,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(op, e.translateProductErr(op, err))
	}

	e.log.Info().Str("op", op).Int64("product_id", productID).Str("name", in.Name).Msg("committed")
	return e.refresh(ctx, op)
}

// UpdateProduct overwrites name, SKU, price, note and threshold.
func (e *Engine) UpdateProduct(ctx context.Context, in ProductUpdate) (*View, error) {
	const op = "update product"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}

	err := e.store.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateProduct(ctx, ProductEdit{
			ID:                in.ID,
			Name:              in.Name,
			SKU:               in.SKU,
			UnitPrice:         in.UnitPrice,
			Note:              in.Note,
			LowStockThreshold: e.thresholdOrDefault(in.LowStockThreshold),
		})
	})
	if err != nil {
		return nil, e.fail(op, e.translateProductErr(op, err))
	}

	e.log.Info().Str("op", op).Int64("product_id", in.ID).Msg("committed")
	return e.refresh(ctx, op)
}

// ArchiveProduct soft-deletes a product. The row is kept so sales and
// movements referencing it stay resolvable.
func (e *Engine) ArchiveProduct(ctx context.Context, id int64) (*View, error) {
	const op = "archive product"

	err := e.store.WithTx(ctx, func(tx Tx) error {
		return tx.ArchiveProduct(ctx, id)
	})
	if err != nil {
		return nil, e.fail(op, e.translateProductErr(op, err))
	}

	e.log.Info().Str("op", op).Int64("product_id", id).Msg("committed")
	return e.refresh(ctx, op)
}

func (e *Engine) translateProductErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrDuplicateName):
		return invalid(op, ErrDuplicateName, "a product with this name already exists")
	case errors.Is(err, ErrNotFound):
		return invalid(op, ErrProductNotFound, "product does not exist")
	}
	return err
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (e *Engine) CreateCustomer(ctx context.Context, in CustomerInput) (*View, error) {
	const op = "create customer"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}

	var customerID int64
	err := e.store.WithTx(ctx, func(tx Tx) error {
		id, err := tx.InsertCustomer(ctx, NewCustomer{
			Name:      in.Name,
			Phone:     in.Phone,
			Note:      in.Note,
			CreatedAt: e.timestamp(),
		})
		customerID = id
		return err
	})
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("customer_id", customerID).Msg("committed")
	return e.refresh(ctx, op)
}

func (e *Engine) UpdateCustomer(ctx context.Context, in CustomerUpdate) (*View, error) {
	const op = "update customer"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}

	err := e.store.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateCustomer(ctx, CustomerEdit{
			ID:    in.ID,
			Name:  in.Name,
			Phone: in.Phone,
			Note:  in.Note,
		})
	})
	if errors.Is(err, ErrNotFound) {
		err = invalid(op, ErrCustomerNotFound, "customer does not exist")
	}
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("customer_id", in.ID).Msg("committed")
	return e.refresh(ctx, op)
}

// DeleteCustomer flags the customer's sales as customer_deleted, then
// removes the customer. Both happen in one unit: if the delete is
// refused, the flags are rolled back too.
func (e *Engine) DeleteCustomer(ctx context.Context, id int64) (*View, error) {
	const op = "delete customer"

	var flagged int64
	err := e.store.WithTx(ctx, func(tx Tx) error {
		exists, err := tx.CustomerExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return invalid(op, ErrCustomerNotFound, "customer does not exist")
		}
		if flagged, err = tx.FlagCustomerSales(ctx, id); err != nil {
			return err
		}
		return tx.DeleteCustomer(ctx, id)
	})
	switch {
	case errors.Is(err, ErrReferenced):
		err = invalid(op, ErrCustomerHasHistory, "this customer has transaction history and cannot be deleted")
	case errors.Is(err, ErrNotFound):
		err = invalid(op, ErrCustomerNotFound, "customer does not exist")
	}
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("customer_id", id).Int64("flagged_sales", flagged).Msg("committed")
	return e.refresh(ctx, op)
}

// =============================================================================
// STOCK ENTRY
// =============================================================================

// RecordStockEntry books an IN or OUT movement that is not a sale.
// OUT that would drive quantity negative is refused.
func (e *Engine) RecordStockEntry(ctx context.Context, in StockEntryInput) (*View, error) {
	const op = "record stock entry"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}
	ts := e.timestamp()

	var movementID int64
	err := e.store.WithTx(ctx, func(tx Tx) error {
		stock, err := e.loadActiveProduct(ctx, tx, op, in.ProductID)
		if err != nil {
			return err
		}
		if err := e.requireCustomer(ctx, tx, op, in.CustomerID); err != nil {
			return err
		}

		delta := in.Qty.Mul(decimal.NewFromInt(in.Kind.Sign()))
		if stock.Qty.Add(delta).IsNegative() {
			return invalid(op, ErrInsufficientStock, "insufficient stock: %s on hand, %s requested", stock.Qty, in.Qty)
		}
		if err := tx.AdjustProductQty(ctx, in.ProductID, delta); err != nil {
			return err
		}

		price := stock.UnitPrice
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		movementID, err = tx.AppendMovement(ctx, MovementRow{
			Ts:           ts,
			Kind:         in.Kind,
			ProductID:    in.ProductID,
			Qty:          in.Qty,
			UnitPrice:    nullDecimal(price),
			TotalAmount:  nullDecimal(price.Mul(in.Qty)),
			Counterparty: in.Counterparty,
			CustomerID:   in.CustomerID,
			Note:         in.Note,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("product_id", in.ProductID).Str("kind", string(in.Kind)).
		Str("qty", in.Qty.String()).Int64("movement_id", movementID).Msg("committed")
	return e.refresh(ctx, op)
}

// =============================================================================
// SALE
// =============================================================================

// RecordSale decrements stock, appends the sale and its OUT movement,
// and for credit sales charges the customer. All four writes commit
// together or not at all.
func (e *Engine) RecordSale(ctx context.Context, in SaleInput) (*View, error) {
	const op = "record sale"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}
	ts := e.timestamp()

	var saleID int64
	err := e.store.WithTx(ctx, func(tx Tx) error {
		stock, err := e.loadActiveProduct(ctx, tx, op, in.ProductID)
		if err != nil {
			return err
		}
		if err := e.requireCustomer(ctx, tx, op, in.CustomerID); err != nil {
			return err
		}
		if stock.Qty.LessThan(in.Qty) {
			return invalid(op, ErrInsufficientStock, "insufficient stock: %s on hand, %s requested", stock.Qty, in.Qty)
		}

		price := stock.UnitPrice
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		total := price.Mul(in.Qty)

		if err := tx.AdjustProductQty(ctx, in.ProductID, in.Qty.Neg()); err != nil {
			return err
		}
		saleID, err = tx.InsertSale(ctx, SaleRow{
			Ts:            ts,
			ProductID:     in.ProductID,
			Qty:           in.Qty,
			PriceSnapshot: price,
			TotalAmount:   total,
			CustomerID:    in.CustomerID,
			Note:          in.Note,
			IsCredit:      in.IsCredit,
		})
		if err != nil {
			return err
		}
		if _, err := tx.AppendMovement(ctx, MovementRow{
			Ts:          ts,
			Kind:        MovementOut,
			ProductID:   in.ProductID,
			Qty:         in.Qty,
			UnitPrice:   nullDecimal(price),
			TotalAmount: nullDecimal(total),
			CustomerID:  in.CustomerID,
			Note:        in.Note,
			SaleID:      &saleID,
		}); err != nil {
			return err
		}

		if !in.IsCredit {
			return nil
		}
		_, err = tx.InsertCredit(ctx, CreditRow{
			Ts:         ts,
			CustomerID: *in.CustomerID,
			SaleID:     &saleID,
			Amount:     total,
			IsPayment:  false,
			Note:       in.Note,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("sale_id", saleID).Int64("product_id", in.ProductID).
		Str("qty", in.Qty.String()).Bool("credit", in.IsCredit).Msg("committed")
	return e.refresh(ctx, op)
}

// =============================================================================
// RETURN
// =============================================================================

// RecordReturn allocates the returned quantity across outstanding sales
// of the same product and customer, oldest first, and books each
// portion as a return sale at the original price snapshot, a RETURN
// movement, and for credit sales a payment against the original sale.
//
// When OverrideAmount differs from the allocated total and a customer
// is given, one adjustment entry reconciles the difference: a payment
// when the override is lower, a charge when it is higher.
func (e *Engine) RecordReturn(ctx context.Context, in ReturnInput) (*View, error) {
	const op = "record return"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}
	ts := e.timestamp()

	var allocs []Allocation
	err := e.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.ProductStock(ctx, in.ProductID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid(op, ErrProductNotFound, "product does not exist")
			}
			return err
		}

		candidates, err := tx.OutstandingSales(ctx, in.ProductID, in.CustomerID)
		if err != nil {
			return err
		}
		allocs, err = AllocateReturn(candidates, in.Qty)
		if err != nil {
			return err
		}

		for _, a := range allocs {
			if err := e.bookReturnPortion(ctx, tx, ts, in, a); err != nil {
				return err
			}
		}

		if in.OverrideAmount == nil || in.CustomerID == nil {
			return nil
		}
		diff := in.OverrideAmount.Sub(AllocatedTotal(allocs))
		if diff.Abs().LessThanOrEqual(Epsilon) {
			return nil
		}
		_, err = tx.InsertCredit(ctx, CreditRow{
			Ts:         ts,
			CustomerID: *in.CustomerID,
			Amount:     diff.Abs(),
			IsPayment:  diff.IsNegative(),
			Note:       returnAdjustmentNote,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("product_id", in.ProductID).Str("qty", in.Qty.String()).
		Int("allocations", len(allocs)).Msg("committed")
	return e.refresh(ctx, op)
}

func (e *Engine) bookReturnPortion(ctx context.Context, tx Tx, ts time.Time, in ReturnInput, a Allocation) error {
	origin := a.Sale.SaleID
	amount := a.Amount()

	if err := tx.AdjustProductQty(ctx, in.ProductID, a.Qty); err != nil {
		return err
	}
	returnID, err := tx.InsertSale(ctx, SaleRow{
		Ts:            ts,
		ProductID:     in.ProductID,
		Qty:           a.Qty,
		PriceSnapshot: a.Sale.PriceSnapshot,
		TotalAmount:   amount,
		CustomerID:    a.Sale.CustomerID,
		Note:          in.Note,
		IsCredit:      a.Sale.WasCredit,
		IsReturn:      true,
		OriginSaleID:  &origin,
	})
	if err != nil {
		return err
	}
	if _, err := tx.AppendMovement(ctx, MovementRow{
		Ts:          ts,
		Kind:        MovementReturn,
		ProductID:   in.ProductID,
		Qty:         a.Qty,
		UnitPrice:   nullDecimal(a.Sale.PriceSnapshot),
		TotalAmount: nullDecimal(amount),
		CustomerID:  a.Sale.CustomerID,
		Note:        in.Note,
		SaleID:      &returnID,
	}); err != nil {
		return err
	}

	if !a.Sale.WasCredit || a.Sale.CustomerID == nil {
		return nil
	}
	note := in.Note
	if note == "" {
		note = returnSettlementNote
	}
	// The payment references the original sale so it nets against the charge.
	_, err = tx.InsertCredit(ctx, CreditRow{
		Ts:         ts,
		CustomerID: *a.Sale.CustomerID,
		SaleID:     &origin,
		Amount:     amount,
		IsPayment:  true,
		Note:       note,
	})
	return err
}

// =============================================================================
// CREDIT PAYMENT
// =============================================================================

// RecordCreditPayment books a payment that reduces a customer's balance.
func (e *Engine) RecordCreditPayment(ctx context.Context, in CreditPaymentInput) (*View, error) {
	const op = "record credit payment"
	if err := in.normalize(op); err != nil {
		return nil, e.reject(op, err)
	}

	err := e.store.WithTx(ctx, func(tx Tx) error {
		if err := e.requireCustomer(ctx, tx, op, &in.CustomerID); err != nil {
			return err
		}
		_, err := tx.InsertCredit(ctx, CreditRow{
			Ts:         e.timestamp(),
			CustomerID: in.CustomerID,
			Amount:     in.Amount,
			IsPayment:  true,
			Note:       in.Note,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(op, err)
	}

	e.log.Info().Str("op", op).Int64("customer_id", in.CustomerID).Str("amount", in.Amount.String()).Msg("committed")
	return e.refresh(ctx, op)
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

func (e *Engine) thresholdOrDefault(t *decimal.Decimal) decimal.Decimal {
	if t == nil {
		return e.defaultThreshold
	}
	return *t
}

func (e *Engine) loadActiveProduct(ctx context.Context, tx Tx, op string, id int64) (ProductStock, error) {
	stock, err := tx.ProductStock(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return stock, invalid(op, ErrProductNotFound, "product does not exist")
	}
	if err != nil {
		return stock, err
	}
	if stock.Archived {
		return stock, invalid(op, ErrProductArchived, "product is archived")
	}
	return stock, nil
}

func (e *Engine) requireCustomer(ctx context.Context, tx Tx, op string, id *int64) error {
	if id == nil {
		return nil
	}
	exists, err := tx.CustomerExists(ctx, *id)
	if err != nil {
		return err
	}
	if !exists {
		return invalid(op, ErrCustomerNotFound, "customer does not exist")
	}
	return nil
}

// refresh re-projects the view after a commit.
func (e *Engine) refresh(ctx context.Context, op string) (*View, error) {
	view, err := e.store.View(ctx)
	if err != nil {
		return nil, e.fail(op, err)
	}
	return view, nil
}

func (e *Engine) reject(op string, err error) error {
	e.log.Debug().Str("op", op).Err(err).Msg("rejected")
	return err
}

// fail classifies err: validation errors pass through, anything else
// becomes an opaque StorageError.
func (e *Engine) fail(op string, err error) error {
	if IsValidation(err) {
		return e.reject(op, err)
	}
	var se *StorageError
	if !errors.As(err, &se) {
		err = &StorageError{Op: op, Err: err}
	}
	e.log.Error().Str("op", op).Err(err).Msg("storage failure")
	return err
}
