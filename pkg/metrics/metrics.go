package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the HTTP and order workflow collectors of one service.
type Metrics struct {
	serviceName string
	gatherer    prometheus.Gatherer

	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	ordersCreated    prometheus.Counter
	orderFailures    *prometheus.CounterVec
	batchAllocations prometheus.Counter
	statusChanges    *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(serviceName string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		serviceName: serviceName,
		gatherer:    reg,
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "path", "status"},
		),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed successfully",
		}),
		orderFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_creation_failures_total",
				Help: "Order creations rolled back, by cause",
			},
			[]string{"reason"},
		),
		batchAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batch_allocations_total",
			Help: "Per-batch allocation slices persisted as order items",
		}),
		statusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_status_changes_total",
				Help: "Order status transitions applied",
			},
			[]string{"to"},
		),
	}

	reg.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.ordersCreated,
		m.orderFailures,
		m.batchAllocations,
		m.statusChanges,
	)
	return m
}

func (m *Metrics) OrderCreated(slices int) {
	m.ordersCreated.Inc()
	m.batchAllocations.Add(float64(slices))
}

func (m *Metrics) OrderFailed(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) StatusChanged(to string) {
	m.statusChanges.WithLabelValues(to).Inc()
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method
			path := c.Path()

			m.requestCounter.WithLabelValues(m.serviceName, method, path, status).Inc()
			m.requestDuration.WithLabelValues(m.serviceName, method, path, status).
				Observe(time.Since(start).Seconds())

			return nil
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
