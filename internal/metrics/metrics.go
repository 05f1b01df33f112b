// Package metrics exposes Prometheus instruments for note operations.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/models"
)

// Metrics bundles the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	mutations     *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	importSkipped prometheus.Counter
	notes         *prometheus.GaugeVec
}

// New creates a registry with process/Go collectors and the note metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jotter",
			Name:      "mutations_total",
			Help:      "Successful note mutations by operation.",
		}, []string{"op"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jotter",
			Name:      "storage_errors_total",
			Help:      "Persistence failures by direction.",
		}, []string{"kind"}),
		importSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jotter",
			Name:      "import_skipped_records_total",
			Help:      "Imported records rejected by validation.",
		}),
		notes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jotter",
			Name:      "notes",
			Help:      "Notes visible under each filter tab.",
		}, []string{"view"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutations, m.storageErrors, m.importSkipped, m.notes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Mutation counts one successful operation.
func (m *Metrics) Mutation(op string) {
	m.mutations.WithLabelValues(op).Inc()
}

// StorageError counts a persistence failure, classified by apperr kind.
func (m *Metrics) StorageError(err error) {
	kind := "other"
	switch {
	case errors.Is(err, apperr.ErrStorageRead):
		kind = "read"
	case errors.Is(err, apperr.ErrStorageWrite):
		kind = "write"
	}
	m.storageErrors.WithLabelValues(kind).Inc()
}

// ImportSkipped adds n rejected import records.
func (m *Metrics) ImportSkipped(n int) {
	m.importSkipped.Add(float64(n))
}

// SetCounts publishes the per-tab note counts.
func (m *Metrics) SetCounts(c models.Counts) {
	m.notes.WithLabelValues("all").Set(float64(c.All))
	m.notes.WithLabelValues("pinned").Set(float64(c.Pinned))
	m.notes.WithLabelValues("archived").Set(float64(c.Archived))
}
