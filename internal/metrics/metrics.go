package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_deliveries_total",
			Help: "Deliveries consumed from the orders queue by acknowledgment outcome",
		},
		[]string{"outcome"},
	)

	AdminOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_admin_operations_total",
			Help: "Dead-letter queue administrative operations by result",
		},
		[]string{"operation", "result"},
	)

	DLQDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_messages",
			Help: "Messages in the dead-letter queue at the last check",
		},
	)

	DLQDrainedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_drained_total",
			Help: "Dead-lettered messages discarded by the automatic drainer",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers all metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		DeliveriesTotal,
		AdminOperationsTotal,
		DLQDepth,
		DLQDrainedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

func ObserveDelivery(outcome string) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveAdminOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}

	AdminOperationsTotal.WithLabelValues(operation, result).Inc()
}

func SetDLQDepth(n int) {
	DLQDepth.Set(float64(n))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
