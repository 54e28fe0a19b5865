/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog access log carrying the request id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the desktop/web frontend

ROUTE GROUPS:
  /api/data             Read model
  /api/products/*       Product catalogue
  /api/customers/*      Customer directory
  /api/stock-entries    Stock IN / OUT
  /api/sales            Sales
  /api/returns          Returns
  /api/credit-payments  Payments
  /api/exports          CSV export
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The server is meant to listen on
  localhost for a single shop terminal.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/inventory-ledger/logger"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", h.GetData)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.ArchiveProduct)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
		})

		r.Post("/stock-entries", h.RecordStockEntry)
		r.Post("/sales", h.RecordSale)
		r.Post("/returns", h.RecordReturn)
		r.Post("/credit-payments", h.RecordCreditPayment)
		r.Post("/exports", h.SaveExport)
	})

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	return r
}

// requestLogger writes one access log line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				l := logger.WithRequestID(log, middleware.GetReqID(r.Context()))
				l.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(started)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
