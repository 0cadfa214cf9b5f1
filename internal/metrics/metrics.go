package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service metrics on its own prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	OrdersCreated   prometheus.Counter
	OrdersConfirmed prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	ConfirmSec      prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
	HTTPSec      *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created.",
	})
	confirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Orders confirmed.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Order operations that failed, by operation and reason.",
	}, []string{"op", "reason"})
	confirmSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_confirm_duration_seconds",
		Help:    "Time to confirm an order, including the stock decrement.",
		Buckets: prometheus.DefBuckets,
	})
	httpReq := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	httpSec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		created, confirmed, rejected, confirmSec, httpReq, httpSec,
	)
	return &Registry{
		reg:             r,
		OrdersCreated:   created,
		OrdersConfirmed: confirmed,
		OrdersRejected:  rejected,
		ConfirmSec:      confirmSec,
		HTTPRequests:    httpReq,
		HTTPSec:         httpSec,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// orders.Recorder

func (r *Registry) OrderCreated() { r.OrdersCreated.Inc() }

func (r *Registry) OrderConfirmed(d time.Duration) {
	r.OrdersConfirmed.Inc()
	r.ConfirmSec.Observe(d.Seconds())
}

func (r *Registry) OrderRejected(op, reason string) {
	r.OrdersRejected.WithLabelValues(op, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency labelled with the chi route
// pattern, so ids in the path do not blow up cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)

		route := "unmatched"
		if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		r.HTTPRequests.WithLabelValues(req.Method, route, strconv.Itoa(rec.status)).Inc()
		r.HTTPSec.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}
