package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/futura-orders/internal/auth"
	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/ariefcatur/futura-orders/internal/metrics"
	"github.com/ariefcatur/futura-orders/internal/orders"
)

// Deps are the collaborators of the HTTP API. Status, Idem and Metrics
// are optional.
type Deps struct {
	Orders    *orders.Service
	Catalog   *orders.CatalogService
	Customers *orders.CustomerService
	Status    StatusCache
	Idem      Idempotency
	Auth      *auth.Verifier
	Metrics   *metrics.Registry
	Log       *slog.Logger
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Auth.Middleware)
		(&OrdersHandler{Orders: d.Orders, Status: d.Status, Idem: d.Idem}).Register(r)
		(&CatalogHandler{Catalog: d.Catalog}).Register(r)
		(&CustomersHandler{Customers: d.Customers}).Register(r)
	})
	return r
}

// requestLogger tags a per-request logger with the chi request id, stores it
// in the context and logs one line per request.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rid := middleware.GetReqID(r.Context())
			log := base.With("request_id", rid)
			ctx := logx.WithRequestID(logx.WithLogger(r.Context(), log), rid)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"ip", r.RemoteAddr,
			)
		})
	}
}
