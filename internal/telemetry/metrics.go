package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perftests-app/internal/domain"
)

const namespace = "perftests"

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	chartsRendered *prometheus.CounterVec
	renderDuration prometheus.Histogram

	samplesGenerated *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of repository operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of repository operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		chartsRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charts_rendered_total",
				Help:      "Total number of chart render attempts by outcome",
			},
			[]string{"outcome"},
		),
		renderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chart_render_duration_seconds",
				Help:      "Duration of chart rendering in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),

		samplesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sample_measurements_total",
				Help:      "Total number of generated sample measurements by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.storeOps,
		m.storeDuration,
		m.chartsRendered,
		m.renderDuration,
		m.samplesGenerated,
		collectors.NewGoCollector(),
	)

	return m
}

// RegisterDB exports connection pool statistics for db.
func (m *Metrics) RegisterDB(db *sql.DB) error {
	if m == nil || db == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, namespace))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveStoreOp(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, Outcome(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveRender(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.chartsRendered.WithLabelValues(Outcome(err)).Inc()
	m.renderDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSample(err error) {
	if m == nil {
		return
	}
	m.samplesGenerated.WithLabelValues(Outcome(err)).Inc()
}

// Outcome names the error kind of err for use as a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrStatement):
		return "statement"
	case errors.Is(err, domain.ErrConnection):
		return "connection"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrRender):
		return "render"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
