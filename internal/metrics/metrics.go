// Package metrics holds the Prometheus metrics of the km service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Search metrics
	SearchesTotal      *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
	NodeSearchDuration *prometheus.HistogramVec
	SkippedNodesTotal  *prometheus.CounterVec
	SearchResults      prometheus.Histogram

	// Write metrics
	PutsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "km_searches_total",
				Help: "Total number of multi-node searches",
			},
			[]string{"status"},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "km_search_duration_seconds",
				Help:    "Duration of multi-node searches in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		NodeSearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "km_node_search_duration_seconds",
				Help:    "Duration of a single node's search in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		SkippedNodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "km_search_skipped_nodes_total",
				Help: "Nodes skipped during search because they were broken, failed or timed out",
			},
			[]string{"node"},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "km_search_results",
				Help:    "Number of results returned per search",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 500},
			},
		),
		PutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "km_puts_total",
				Help: "Total number of content writes",
			},
			[]string{"node", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "km_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "km_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.SearchesTotal,
		m.SearchDuration,
		m.NodeSearchDuration,
		m.SkippedNodesTotal,
		m.SearchResults,
		m.PutsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveSearch(d time.Duration, results int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(d.Seconds())
	if err == nil {
		m.SearchResults.Observe(float64(results))
	}
}

func (m *Metrics) ObserveNodeSearch(nodeID string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeSearchDuration.WithLabelValues(nodeID).Observe(d.Seconds())
}

func (m *Metrics) NodeSkipped(nodeID string) {
	if m == nil {
		return
	}
	m.SkippedNodesTotal.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) ObservePut(nodeID string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PutsTotal.WithLabelValues(nodeID, status).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
