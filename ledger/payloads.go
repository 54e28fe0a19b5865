package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold applies when a product payload omits one.
var DefaultLowStockThreshold = decimal.NewFromInt(5)

// ProductInput creates a product. InitialQty > 0 books an IN movement.
type ProductInput struct {
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Note              string
	LowStockThreshold *decimal.Decimal
	InitialQty        *decimal.Decimal
}

// ProductUpdate overwrites the mutable fields of a product. Quantity is
// not one of them.
type ProductUpdate struct {
	ID                int64
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Note              string
	LowStockThreshold *decimal.Decimal
}

type CustomerInput struct {
	Name  string
	Phone string
	Note  string
}

type CustomerUpdate struct {
	ID    int64
	Name  string
	Phone string
	Note  string
}

// StockEntryInput moves stock outside of a sale. An empty Kind means IN.
type StockEntryInput struct {
	ProductID    int64
	Qty          decimal.Decimal
	Kind         MovementKind
	UnitPrice    *decimal.Decimal // defaults to the product's current price
	Counterparty string
	CustomerID   *int64
	Note         string
}

type SaleInput struct {
	ProductID  int64
	Qty        decimal.Decimal
	UnitPrice  *decimal.Decimal // defaults to the product's current price
	CustomerID *int64
	Note       string
	IsCredit   bool
}

// ReturnInput returns Qty units of a product. CustomerID must match the
// original sales exactly; nil matches anonymous sales only.
type ReturnInput struct {
	ProductID      int64
	CustomerID     *int64
	Qty            decimal.Decimal
	Note           string
	OverrideAmount *decimal.Decimal
}

type CreditPaymentInput struct {
	CustomerID int64
	Amount     decimal.Decimal
	Note       string
}

// =============================================================================
// NORMALIZATION + VALIDATION
// =============================================================================

func validateProductFields(op, name string, price decimal.Decimal, threshold *decimal.Decimal) error {
	if name == "" {
		return invalid(op, ErrNameRequired, "product name is required")
	}
	if price.IsNegative() {
		return invalid(op, ErrNegativePrice, "unit price must be zero or greater")
	}
	if threshold != nil && threshold.IsNegative() {
		return invalid(op, ErrNegativeQuantity, "low-stock threshold must be zero or greater")
	}
	return nil
}

func (in *ProductInput) normalize(op string) error {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Note = strings.TrimSpace(in.Note)
	if err := validateProductFields(op, in.Name, in.UnitPrice, in.LowStockThreshold); err != nil {
		return err
	}
	if in.InitialQty != nil && in.InitialQty.IsNegative() {
		return invalid(op, ErrNegativeQuantity, "initial stock must be zero or greater")
	}
	return nil
}

func (in *ProductUpdate) normalize(op string) error {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Note = strings.TrimSpace(in.Note)
	return validateProductFields(op, in.Name, in.UnitPrice, in.LowStockThreshold)
}

func validateCustomerFields(op string, name, phone *string, note *string) error {
	*name = strings.TrimSpace(*name)
	*phone = strings.TrimSpace(*phone)
	*note = strings.TrimSpace(*note)
	if *name == "" {
		return invalid(op, ErrNameRequired, "customer name is required")
	}
	if *phone == "" {
		return invalid(op, ErrPhoneRequired, "customer phone is required")
	}
	return nil
}

func (in *CustomerInput) normalize(op string) error {
	return validateCustomerFields(op, &in.Name, &in.Phone, &in.Note)
}

func (in *CustomerUpdate) normalize(op string) error {
	return validateCustomerFields(op, &in.Name, &in.Phone, &in.Note)
}

func (in *StockEntryInput) normalize(op string) error {
	in.Counterparty = strings.TrimSpace(in.Counterparty)
	in.Note = strings.TrimSpace(in.Note)
	if !in.Qty.IsPositive() {
		return invalid(op, ErrNonPositiveQuantity, "quantity must be greater than zero")
	}
	if in.Kind == "" {
		in.Kind = MovementIn
	}
	kind, err := ParseMovementKind(string(in.Kind))
	if err != nil {
		return invalid(op, ErrUnknownMovementKind, "unknown stock movement kind %q", in.Kind)
	}
	if kind == MovementReturn {
		return invalid(op, ErrReturnViaStockEntry, "returns must be recorded with the return operation")
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return invalid(op, ErrNegativePrice, "unit price must be zero or greater")
	}
	return nil
}

func (in *SaleInput) normalize(op string) error {
	in.Note = strings.TrimSpace(in.Note)
	if !in.Qty.IsPositive() {
		return invalid(op, ErrNonPositiveQuantity, "quantity must be greater than zero")
	}
	if in.IsCredit && in.CustomerID == nil {
		return invalid(op, ErrCreditNeedsCustomer, "a credit sale requires a customer")
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return invalid(op, ErrNegativePrice, "unit price must be zero or greater")
	}
	return nil
}

func (in *ReturnInput) normalize(op string) error {
	in.Note = strings.TrimSpace(in.Note)
	if !in.Qty.IsPositive() {
		return invalid(op, ErrNonPositiveQuantity, "return quantity must be greater than zero")
	}
	if in.OverrideAmount != nil && in.OverrideAmount.IsNegative() {
		return invalid(op, ErrNegativePrice, "return amount must be zero or greater")
	}
	return nil
}

func (in *CreditPaymentInput) normalize(op string) error {
	in.Note = strings.TrimSpace(in.Note)
	if !in.Amount.IsPositive() {
		return invalid(op, ErrNonPositiveAmount, "payment amount must be greater than zero")
	}
	return nil
}
