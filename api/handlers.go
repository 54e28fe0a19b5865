/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger Engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every state change to the Engine.

ENDPOINTS:
  Read:
    GET    /api/data                   Full view (products, customers, history, balances)

  Products:
    POST   /api/products               Create product (optional initial stock)
    PUT    /api/products/{id}          Update product fields
    DELETE /api/products/{id}          Archive product

  Customers:
    POST   /api/customers              Create customer
    PUT    /api/customers/{id}         Update customer
    DELETE /api/customers/{id}         Delete customer (history is kept, flagged)

  Ledger:
    POST   /api/stock-entries          Stock IN / OUT
    POST   /api/sales                  Record sale (cash or credit)
    POST   /api/returns                Record return (FIFO allocation)
    POST   /api/credit-payments        Record customer payment

  Export:
    POST   /api/exports                Save caller-built CSV text

REQUEST FLOW:
  1. Decode JSON (unknown fields rejected)
  2. Check request shape (validator tags)
  3. Call the Engine
  4. Respond with the full view DTO
  5. Map errors to status codes

ERROR HANDLING:
  - 400 "invalid_request": malformed JSON, bad path id, failed tag checks
  - 400 "validation":      business rule rejected by the Engine
  - 500 "storage":         database fault
  - 500 "io":              export write failed

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - metrics.go: Operation counters
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/inventory-ledger/export"
	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine   *ledger.Engine
	exporter *export.Exporter
	validate *validator.Validate
	metrics  *Metrics
	log      zerolog.Logger
}

// NewHandler creates a handler. A nil metrics gets a private registry.
func NewHandler(engine *ledger.Engine, exporter *export.Exporter, metrics *Metrics, log zerolog.Logger) *Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Handler{
		engine:   engine,
		exporter: exporter,
		validate: newValidator(),
		metrics:  metrics,
		log:      log,
	}
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// viewOp is the common shape of every Engine call the handlers make.
type viewOp func(ctx context.Context) (*ledger.View, error)

// run executes op and writes either the view or the mapped error.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, name string, op viewOp) {
	started := time.Now()
	view, err := op(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, name, started, err)
		return
	}
	h.metrics.observe(name, resultOK, started)
	writeJSON(w, http.StatusOK, NewViewDTO(view))
}

// decode reads a JSON body into dst and checks its tags. On failure the
// 400 response has already been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.badRequest(w, name, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.badRequest(w, name, "Invalid request", fieldErrors(err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(w, name, "Invalid id", fmt.Errorf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

// =============================================================================
// READ
// =============================================================================

// GetData returns the full view without changing anything.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "get_view", h.engine.GetView)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	const name = "create_product"
	var req ProductRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.CreateProduct(ctx, req.toInput())
	})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	const name = "update_product"
	id, ok := h.pathID(w, r, name)
	if !ok {
		return
	}
	var req ProductRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	if req.InitialQty != nil {
		h.badRequest(w, name, "Invalid request", errors.New("initial_qty is only accepted on create"))
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.UpdateProduct(ctx, req.toUpdate(id))
	})
}

// ArchiveProduct hides a product from the catalogue. Its history stays.
func (h *Handler) ArchiveProduct(w http.ResponseWriter, r *http.Request) {
	const name = "archive_product"
	id, ok := h.pathID(w, r, name)
	if !ok {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.ArchiveProduct(ctx, id)
	})
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	const name = "create_customer"
	var req CustomerRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.CreateCustomer(ctx, ledger.CustomerInput{
			Name:  req.Name,
			Phone: req.Phone,
			Note:  req.Note,
		})
	})
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	const name = "update_customer"
	id, ok := h.pathID(w, r, name)
	if !ok {
		return
	}
	var req CustomerRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.UpdateCustomer(ctx, ledger.CustomerUpdate{
			ID:    id,
			Name:  req.Name,
			Phone: req.Phone,
			Note:  req.Note,
		})
	})
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	const name = "delete_customer"
	id, ok := h.pathID(w, r, name)
	if !ok {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.DeleteCustomer(ctx, id)
	})
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

func (h *Handler) RecordStockEntry(w http.ResponseWriter, r *http.Request) {
	const name = "record_stock_entry"
	var req StockEntryRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.RecordStockEntry(ctx, req.toInput())
	})
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	const name = "record_sale"
	var req SaleRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.RecordSale(ctx, req.toInput())
	})
}

func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	const name = "record_return"
	var req ReturnRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.RecordReturn(ctx, req.toInput())
	})
}

func (h *Handler) RecordCreditPayment(w http.ResponseWriter, r *http.Request) {
	const name = "record_credit_payment"
	var req CreditPaymentRequest
	if !h.decode(w, r, name, &req) {
		return
	}
	h.run(w, r, name, func(ctx context.Context) (*ledger.View, error) {
		return h.engine.RecordCreditPayment(ctx, ledger.CreditPaymentInput{
			CustomerID: req.CustomerID,
			Amount:     decimal.NewFromFloat(req.Amount),
			Note:       req.Note,
		})
	})
}

// =============================================================================
// EXPORT
// =============================================================================

// SaveExport writes CSV text to the export directory and returns its path.
func (h *Handler) SaveExport(w http.ResponseWriter, r *http.Request) {
	const name = "save_csv"
	started := time.Now()
	var req ExportRequest
	if !h.decode(w, r, name, &req) {
		return
	}

	path, err := h.exporter.SaveCSV(req.Filename, req.Content)
	switch {
	case errors.Is(err, export.ErrInvalidFilename):
		h.metrics.observe(name, resultValidation, started)
		writeCodedError(w, http.StatusBadRequest, "validation", err.Error(), nil)
	case err != nil:
		h.metrics.observe(name, resultIO, started)
		l := h.requestLog(r)
		l.Error().Err(err).Str("op", name).Msg("export failed")
		writeCodedError(w, http.StatusInternalServerError, "io", "Failed to write export", err)
	default:
		h.metrics.observe(name, resultOK, started)
		writeJSON(w, http.StatusOK, ExportResponse{Path: path})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, name string, started time.Time, err error) {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		h.metrics.observe(name, resultValidation, started)
		writeCodedError(w, http.StatusBadRequest, "validation", ve.Message, nil)
		return
	}

	h.metrics.observe(name, resultStorage, started)
	l := h.requestLog(r)
	l.Error().Err(err).Str("op", name).Msg("ledger operation failed")
	writeCodedError(w, http.StatusInternalServerError, "storage", "Storage failure", nil)
}

func (h *Handler) requestLog(r *http.Request) zerolog.Logger {
	return logger.WithRequestID(h.log, middleware.GetReqID(r.Context()))
}

func (h *Handler) badRequest(w http.ResponseWriter, name, message string, details any) {
	h.metrics.operations.WithLabelValues(name, resultBadRequest).Inc()
	if err, ok := details.(error); ok {
		details = err.Error()
	}
	writeCodedError(w, http.StatusBadRequest, "invalid_request", message, details)
}

// fieldErrors flattens validator output into field -> failed tag.
func fieldErrors(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
