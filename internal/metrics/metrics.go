// Package metrics holds the prometheus collectors for the navigation core.
// All methods are safe on a nil *Metrics so components can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	Mutations     *prometheus.CounterVec
	Edits         prometheus.Counter
	Resources     prometheus.Gauge
	Fetches       *prometheus.CounterVec
	FetchDedup    prometheus.Counter
	FetchInflight prometheus.Gauge
	FetchDuration *prometheus.HistogramVec
	FetchBytes    prometheus.Histogram
	Observers     prometheus.Gauge
	ObserverLag   prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_mutations_total",
				Help: "State mutations that produced a change-set",
			},
			[]string{"command"},
		),
		Edits: factory.NewCounter(prometheus.CounterOpts{
			Name: "burrow_change_edits_total",
			Help: "Primitive edits emitted in change-sets",
		}),
		Resources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "burrow_resources",
			Help: "Resources held in the cache",
		}),
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_fetches_total",
				Help: "Completed fetches by scheme and result",
			},
			[]string{"scheme", "result"},
		),
		FetchDedup: factory.NewCounter(prometheus.CounterOpts{
			Name: "burrow_fetches_deduplicated_total",
			Help: "Requests attached to an in-flight fetch",
		}),
		FetchInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "burrow_fetches_inflight",
			Help: "Fetches currently running",
		}),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "burrow_fetch_duration_seconds",
				Help:    "Fetch duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"scheme"},
		),
		FetchBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "burrow_fetch_bytes",
			Help:    "Payload size of successful fetches",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}),
		Observers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "burrow_observers",
			Help: "Subscribed replication observers",
		}),
		ObserverLag: factory.NewCounter(prometheus.CounterOpts{
			Name: "burrow_observer_lagged_total",
			Help: "Observer queues closed because they fell behind",
		}),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_http_requests_total",
				Help: "Presentation API requests by route and status class",
			},
			[]string{"route", "code"},
		),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordMutation counts one applied change-set.
func (m *Metrics) RecordMutation(command string, edits int, resources int) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(command).Inc()
	m.Edits.Add(float64(edits))
	m.Resources.Set(float64(resources))
}

// FetchStarted marks a new network fetch.
func (m *Metrics) FetchStarted() {
	if m == nil {
		return
	}
	m.FetchInflight.Inc()
}

// FetchDeduplicated counts a request that attached to an existing fetch.
func (m *Metrics) FetchDeduplicated() {
	if m == nil {
		return
	}
	m.FetchDedup.Inc()
}

// FetchFinished records the end of a fetch. result is ok, failed or
// cancelled.
func (m *Metrics) FetchFinished(scheme, result string, elapsed time.Duration, size int) {
	if m == nil {
		return
	}
	m.FetchInflight.Dec()
	m.Fetches.WithLabelValues(scheme, result).Inc()
	m.FetchDuration.WithLabelValues(scheme).Observe(elapsed.Seconds())
	if result == "ok" {
		m.FetchBytes.Observe(float64(size))
	}
}

// SetObservers reports the current observer count.
func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.Observers.Set(float64(n))
}

// ObserverLagged counts a queue closed for falling behind.
func (m *Metrics) ObserverLagged() {
	if m == nil {
		return
	}
	m.ObserverLag.Inc()
}

// HTTPRequest counts one served request. code is the status class, such as
// "2xx".
func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
}
