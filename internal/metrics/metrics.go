package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics owns its registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
	EventsDegraded  *prometheus.CounterVec
	CatalogFetches  *prometheus.CounterVec
	WebhookIngests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the publisher, by outcome (sent or degraded).",
		}, []string{"topic", "outcome"}),
		EventsDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_degraded_total",
			Help:      "Events that fell back to a synthetic message id.",
		}, []string{"topic"}),
		CatalogFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetch_total",
			Help:      "Catalog reads, by outcome (ok, cached or unavailable).",
		}, []string{"outcome"}),
		WebhookIngests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_ingest_total",
			Help:      "Webhook deliveries, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.LatencyMS,
		m.EventsPublished,
		m.EventsDegraded,
		m.CatalogFetches,
		m.WebhookIngests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for assertions in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
