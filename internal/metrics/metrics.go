// Package metrics holds the prometheus collectors for go-clickcount
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clickcount"

// Metrics groups every collector the server updates
type Metrics struct {
	registry *prometheus.Registry

	Increments  prometheus.Counter
	Resets      prometheus.Counter
	StoreErrors *prometheus.CounterVec
	Current     prometheus.Gauge
	Requests    *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Increments: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "counter",
				Name:      "increments_total",
				Help:      "Number of successful increments",
			},
		),
		Resets: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "counter",
				Name:      "resets_total",
				Help:      "Number of successful resets",
			},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Store failures by operation",
			},
			[]string{"op"},
		),
		Current: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "counter",
				Name:      "value",
				Help:      "Last count read or written",
			},
		),
		Requests: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		),
	}
}

// ObserveRequest records one finished HTTP request
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.Requests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler returns the exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
