// Package metrics holds the Prometheus collectors shared by every component.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "event_sourcing"

// Metrics implements Prometheus metrics collection
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	EventsIngested *prometheus.CounterVec
	IngestErrors   *prometheus.CounterVec

	// Processing
	EventsProcessed   *prometheus.CounterVec
	ProcessorResults  *prometheus.CounterVec
	ProcessorDuration *prometheus.HistogramVec
	ClaimsLost        prometheus.Counter
	EventsRetried     prometheus.Counter
	EventsRequeued    prometheus.Counter
	EventsReleased    prometheus.Counter
	WorkersBusy       prometheus.Gauge

	// Distribution
	Deliveries       *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	Signals          *prometheus.CounterVec

	// Read models
	ProjectionsApplied prometheus.Counter
	ProjectionCache    *prometheus.CounterVec
	ReplayedEvents     *prometheus.CounterVec
	EventsArchived     prometheus.Counter

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Total number of events accepted by ingestion",
			},
			[]string{"source", "category"},
		),
		IngestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_errors_total",
				Help:      "Total number of rejected or failed ingestions",
			},
			[]string{"code"},
		),

		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Total number of events that finished processing, by final status",
			},
			[]string{"status"},
		),
		ProcessorResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processor_results_total",
				Help:      "Processor outcomes",
			},
			[]string{"processor", "status"},
		),
		ProcessorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processor_duration_seconds",
				Help:      "Processor execution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"processor"},
		),
		ClaimsLost: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claims_lost_total",
				Help:      "Dequeued events already claimed by another worker",
			},
		),
		EventsRetried: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_retried_total",
				Help:      "Failed events moved back to pending",
			},
		),
		EventsRequeued: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_requeued_total",
				Help:      "Stale pending events enqueued again",
			},
		),
		EventsReleased: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_released_total",
				Help:      "Events whose processing lease expired, marked failed",
			},
		),
		WorkersBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_busy",
				Help:      "Workers currently processing an event",
			},
		),

		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		DeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Webhook delivery time in seconds, retries included",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Broadcast signals by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		ProjectionsApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "projection_events_applied_total",
				Help:      "Events folded into projections",
			},
		),
		ProjectionCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "projection_cache_lookups_total",
				Help:      "Projection cache lookups by result",
			},
			[]string{"result"},
		),
		ReplayedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replayed_events_total",
				Help:      "Events redelivered by replay, by outcome",
			},
			[]string{"outcome"},
		),
		EventsArchived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_archived_total",
				Help:      "Events copied to cold storage and marked archived",
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
