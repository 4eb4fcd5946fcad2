// Package metrics exposes ledger and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"karmastakes.app/stakes/internal/types"
)

// Collector holds the metrics of one daemon instance in a private registry.
type Collector struct {
	registry *prometheus.Registry

	Transactions *prometheus.CounterVec
	Events       *prometheus.CounterVec
	RelayFees    prometheus.Counter
	RelayShares  prometheus.Counter
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates the metrics under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Delivered transactions by type, route and result.",
		}, []string{"type", "relayed", "code", "error_code"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed ledger events by kind.",
		}, []string{"kind"}),
		RelayFees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_fees_total",
			Help:      "Settlement units paid out of the reserve for relayed calls.",
		}),
		RelayShares: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_karma_share_total",
			Help:      "Karma collected from relayed accounts.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	c.registry.MustRegister(
		c.Transactions,
		c.Events,
		c.RelayFees,
		c.RelayShares,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// TrackGauge registers a gauge read from fn at scrape time. A failing read
// reports zero.
func (c *Collector) TrackGauge(namespace, name, help string, fn func() (*uint256.Int, error)) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 {
		v, err := fn()
		if err != nil {
			return 0
		}
		return toFloat(v)
	}))
}

// ObserveTx counts one delivered transaction.
func (c *Collector) ObserveTx(txType types.TransactionType, relayed bool, code uint32, errorCode string) {
	c.Transactions.WithLabelValues(string(txType), strconv.FormatBool(relayed),
		strconv.FormatUint(uint64(code), 10), errorCode).Inc()
}

// ObserveRelayFee adds a settled relay fee.
func (c *Collector) ObserveRelayFee(fee types.RelayFee) {
	c.RelayFees.Add(toFloat(fee.Fee))
	c.RelayShares.Add(toFloat(fee.KarmaShare))
}

// ObserveEvent counts a committed event.
func (c *Collector) ObserveEvent(ev types.Event) {
	c.Events.WithLabelValues(string(ev.Kind)).Inc()
}

// Middleware records request counts and latency by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := strconv.ParseFloat(v.Dec(), 64)
	return f
}
