/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Quantities and
  money cross the wire as JSON numbers and become decimal.Decimal at
  this boundary.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Struct tags (go-playground/validator) check request shape only: ids
  present, kinds spelled correctly. Business rules (non-empty names,
  positive quantities, stock levels) belong to the ledger and come back
  as validation errors from the Engine.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/payloads.go: Engine inputs these requests map onto
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ProductRequest creates or updates a product.
type ProductRequest struct {
	Name              string   `json:"name"`
	SKU               string   `json:"sku,omitempty"`
	UnitPrice         float64  `json:"unit_price"`
	Note              string   `json:"note,omitempty"`
	LowStockThreshold *float64 `json:"low_stock_threshold,omitempty"`
	InitialQty        *float64 `json:"initial_qty,omitempty"` // create only
}

func (r ProductRequest) toInput() ledger.ProductInput {
	return ledger.ProductInput{
		Name:              r.Name,
		SKU:               r.SKU,
		UnitPrice:         decimal.NewFromFloat(r.UnitPrice),
		Note:              r.Note,
		LowStockThreshold: decPtr(r.LowStockThreshold),
		InitialQty:        decPtr(r.InitialQty),
	}
}

func (r ProductRequest) toUpdate(id int64) ledger.ProductUpdate {
	return ledger.ProductUpdate{
		ID:                id,
		Name:              r.Name,
		SKU:               r.SKU,
		UnitPrice:         decimal.NewFromFloat(r.UnitPrice),
		Note:              r.Note,
		LowStockThreshold: decPtr(r.LowStockThreshold),
	}
}

// CustomerRequest creates or updates a customer.
type CustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Note  string `json:"note,omitempty"`
}

// StockEntryRequest records a non-sale stock movement. Kind defaults to IN.
type StockEntryRequest struct {
	ProductID    int64    `json:"product_id" validate:"required,gt=0"`
	Qty          float64  `json:"qty"`
	Kind         string   `json:"kind,omitempty" validate:"omitempty,oneof=IN OUT RETURN"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	Counterparty string   `json:"counterparty,omitempty"`
	CustomerID   *int64   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Note         string   `json:"note,omitempty"`
}

func (r StockEntryRequest) toInput() ledger.StockEntryInput {
	return ledger.StockEntryInput{
		ProductID:    r.ProductID,
		Qty:          decimal.NewFromFloat(r.Qty),
		Kind:         ledger.MovementKind(r.Kind),
		UnitPrice:    decPtr(r.UnitPrice),
		Counterparty: r.Counterparty,
		CustomerID:   r.CustomerID,
		Note:         r.Note,
	}
}

// SaleRequest records a sale.
type SaleRequest struct {
	ProductID  int64    `json:"product_id" validate:"required,gt=0"`
	Qty        float64  `json:"qty"`
	UnitPrice  *float64 `json:"unit_price,omitempty"`
	CustomerID *int64   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Note       string   `json:"note,omitempty"`
	IsCredit   bool     `json:"is_credit"`
}

func (r SaleRequest) toInput() ledger.SaleInput {
	return ledger.SaleInput{
		ProductID:  r.ProductID,
		Qty:        decimal.NewFromFloat(r.Qty),
		UnitPrice:  decPtr(r.UnitPrice),
		CustomerID: r.CustomerID,
		Note:       r.Note,
		IsCredit:   r.IsCredit,
	}
}

// ReturnRequest records a return. Omit customer_id for anonymous sales.
type ReturnRequest struct {
	ProductID      int64    `json:"product_id" validate:"required,gt=0"`
	CustomerID     *int64   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Qty            float64  `json:"qty"`
	Note           string   `json:"note,omitempty"`
	OverrideAmount *float64 `json:"override_amount,omitempty"`
}

func (r ReturnRequest) toInput() ledger.ReturnInput {
	return ledger.ReturnInput{
		ProductID:      r.ProductID,
		CustomerID:     r.CustomerID,
		Qty:            decimal.NewFromFloat(r.Qty),
		Note:           r.Note,
		OverrideAmount: decPtr(r.OverrideAmount),
	}
}

// CreditPaymentRequest records a payment against a customer's balance.
type CreditPaymentRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	Amount     float64 `json:"amount"`
	Note       string  `json:"note,omitempty"`
}

// ExportRequest saves caller-built CSV text.
type ExportRequest struct {
	Filename string `json:"filename" validate:"required"`
	Content  string `json:"content"`
}

// ExportResponse reports where the file was written.
type ExportResponse struct {
	Path string `json:"path"`
}

// =============================================================================
// VIEW DTOs
// =============================================================================

// ViewDTO is the full read model returned by every operation.
type ViewDTO struct {
	Products         []ProductDTO         `json:"products"`
	Customers        []CustomerDTO        `json:"customers"`
	Sales            []SaleDTO            `json:"sales"`
	StockMovements   []StockMovementDTO   `json:"stock_movements"`
	Credits          []CreditDTO          `json:"credits"`
	CustomerBalances []CustomerBalanceDTO `json:"customer_balances"`
}

type ProductDTO struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	SKU               string  `json:"sku,omitempty"`
	UnitPrice         float64 `json:"unit_price"`
	Qty               float64 `json:"qty"`
	Note              string  `json:"note,omitempty"`
	LowStockThreshold float64 `json:"low_stock_threshold"`
	LowStock          bool    `json:"low_stock"`
	CreatedAt         string  `json:"created_at"`
}

type CustomerDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type SaleDTO struct {
	ID              int64   `json:"id"`
	Ts              string  `json:"ts"`
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Qty             float64 `json:"qty"`
	UnitPrice       float64 `json:"unit_price"`
	TotalAmount     float64 `json:"total_amount"`
	CustomerID      *int64  `json:"customer_id"`
	CustomerName    string  `json:"customer_name,omitempty"`
	CustomerPhone   string  `json:"customer_phone,omitempty"`
	Note            string  `json:"note,omitempty"`
	IsCredit        bool    `json:"is_credit"`
	IsReturn        bool    `json:"is_return"`
	OriginSaleID    *int64  `json:"origin_sale_id"`
	CustomerDeleted bool    `json:"customer_deleted"`
}

type StockMovementDTO struct {
	ID           int64    `json:"id"`
	Ts           string   `json:"ts"`
	Kind         string   `json:"kind"`
	ProductID    int64    `json:"product_id"`
	ProductName  string   `json:"product_name"`
	Qty          float64  `json:"qty"`
	UnitPrice    *float64 `json:"unit_price"`
	TotalAmount  *float64 `json:"total_amount"`
	Counterparty string   `json:"counterparty,omitempty"`
	CustomerID   *int64   `json:"customer_id"`
	CustomerName string   `json:"customer_name,omitempty"`
	Note         string   `json:"note,omitempty"`
	SaleID       *int64   `json:"sale_id"`
}

type CreditDTO struct {
	ID            int64   `json:"id"`
	Ts            string  `json:"ts"`
	CustomerID    int64   `json:"customer_id"`
	CustomerName  string  `json:"customer_name"`
	CustomerPhone string  `json:"customer_phone,omitempty"`
	SaleID        *int64  `json:"sale_id"`
	Amount        float64 `json:"amount"`
	IsPayment     bool    `json:"is_payment"`
	Note          string  `json:"note,omitempty"`
}

type CustomerBalanceDTO struct {
	CustomerID    int64   `json:"customer_id"`
	CustomerName  string  `json:"customer_name"`
	CustomerPhone string  `json:"customer_phone"`
	TotalCredit   float64 `json:"total_credit"`
	TotalPaid     float64 `json:"total_paid"`
	Outstanding   float64 `json:"outstanding"`
	LastActivity  *string `json:"last_activity"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// NewViewDTO converts the ledger read model to its wire form.
func NewViewDTO(v *ledger.View) ViewDTO {
	dto := ViewDTO{
		Products:         make([]ProductDTO, 0, len(v.Products)),
		Customers:        make([]CustomerDTO, 0, len(v.Customers)),
		Sales:            make([]SaleDTO, 0, len(v.Sales)),
		StockMovements:   make([]StockMovementDTO, 0, len(v.StockMovements)),
		Credits:          make([]CreditDTO, 0, len(v.Credits)),
		CustomerBalances: make([]CustomerBalanceDTO, 0, len(v.CustomerBalances)),
	}

	for _, p := range v.Products {
		dto.Products = append(dto.Products, ProductDTO{
			ID:                p.ID,
			Name:              p.Name,
			SKU:               p.SKU,
			UnitPrice:         p.UnitPrice.InexactFloat64(),
			Qty:               p.Qty.InexactFloat64(),
			Note:              p.Note,
			LowStockThreshold: p.LowStockThreshold.InexactFloat64(),
			LowStock:          p.IsLowStock(),
			CreatedAt:         formatTime(p.CreatedAt),
		})
	}
	for _, c := range v.Customers {
		dto.Customers = append(dto.Customers, CustomerDTO{
			ID:        c.ID,
			Name:      c.Name,
			Phone:     c.Phone,
			Note:      c.Note,
			CreatedAt: formatTime(c.CreatedAt),
		})
	}
	for _, s := range v.Sales {
		dto.Sales = append(dto.Sales, SaleDTO{
			ID:              s.ID,
			Ts:              formatTime(s.Ts),
			ProductID:       s.ProductID,
			ProductName:     s.ProductName,
			Qty:             s.Qty.InexactFloat64(),
			UnitPrice:       s.UnitPrice.InexactFloat64(),
			TotalAmount:     s.TotalAmount.InexactFloat64(),
			CustomerID:      s.CustomerID,
			CustomerName:    s.CustomerName,
			CustomerPhone:   s.CustomerPhone,
			Note:            s.Note,
			IsCredit:        s.IsCredit,
			IsReturn:        s.IsReturn,
			OriginSaleID:    s.OriginSaleID,
			CustomerDeleted: s.CustomerDeleted,
		})
	}
	for _, m := range v.StockMovements {
		dto.StockMovements = append(dto.StockMovements, StockMovementDTO{
			ID:           m.ID,
			Ts:           formatTime(m.Ts),
			Kind:         string(m.Kind),
			ProductID:    m.ProductID,
			ProductName:  m.ProductName,
			Qty:          m.Qty.InexactFloat64(),
			UnitPrice:    floatPtr(m.UnitPrice),
			TotalAmount:  floatPtr(m.TotalAmount),
			Counterparty: m.Counterparty,
			CustomerID:   m.CustomerID,
			CustomerName: m.CustomerName,
			Note:         m.Note,
			SaleID:       m.SaleID,
		})
	}
	for _, c := range v.Credits {
		dto.Credits = append(dto.Credits, CreditDTO{
			ID:            c.ID,
			Ts:            formatTime(c.Ts),
			CustomerID:    c.CustomerID,
			CustomerName:  c.CustomerName,
			CustomerPhone: c.CustomerPhone,
			SaleID:        c.SaleID,
			Amount:        c.Amount.InexactFloat64(),
			IsPayment:     c.IsPayment,
			Note:          c.Note,
		})
	}
	for _, b := range v.CustomerBalances {
		var last *string
		if b.LastActivity != nil {
			s := formatTime(*b.LastActivity)
			last = &s
		}
		dto.CustomerBalances = append(dto.CustomerBalances, CustomerBalanceDTO{
			CustomerID:    b.CustomerID,
			CustomerName:  b.CustomerName,
			CustomerPhone: b.CustomerPhone,
			TotalCredit:   b.TotalCredit.InexactFloat64(),
			TotalPaid:     b.TotalPaid.InexactFloat64(),
			Outstanding:   b.Outstanding.InexactFloat64(),
			LastActivity:  last,
		})
	}
	return dto
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
