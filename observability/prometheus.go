package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver turns events into Prometheus metrics on a private
// registry. Every event increments events_total; events carrying
// "duration_ms" feed event_duration_seconds; warnings and errors increment
// problems_total. An optional pair of event types drives an active gauge.
type PrometheusObserver struct {
	registry *prometheus.Registry

	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
	ProblemsTotal *prometheus.CounterVec
	Active        prometheus.Gauge

	openType  EventType
	closeType EventType
}

// PrometheusOption configures a PrometheusObserver.
type PrometheusOption func(*PrometheusObserver)

// TrackActive increments the active gauge on open events and decrements it
// on close events.
func TrackActive(open, close EventType) PrometheusOption {
	return func(o *PrometheusObserver) {
		o.openType = open
		o.closeType = close
	}
}

// NewPrometheusObserver registers its metrics under namespace (default "voice").
func NewPrometheusObserver(namespace string, opts ...PrometheusOption) *PrometheusObserver {
	if namespace == "" {
		namespace = "voice"
	}

	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of observability events",
		},
		[]string{"type", "level"},
	)

	eventDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Duration reported by events in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"type"},
	)

	problemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "problems_total",
			Help:      "Total number of warning and error events",
		},
		[]string{"type", "error_kind"},
	)

	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open conversation sessions",
		},
	)

	registry.MustRegister(eventsTotal, eventDuration, problemsTotal, active)

	o := &PrometheusObserver{
		registry:      registry,
		EventsTotal:   eventsTotal,
		EventDuration: eventDuration,
		ProblemsTotal: problemsTotal,
		Active:        active,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry exposes the underlying registry for gathering in tests.
func (o *PrometheusObserver) Registry() *prometheus.Registry { return o.registry }

// Handler serves the metrics endpoint.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	typ := string(event.Type)
	o.EventsTotal.WithLabelValues(typ, event.Level.String()).Inc()

	if d, ok := event.Duration(); ok {
		o.EventDuration.WithLabelValues(typ).Observe(d.Seconds())
	}

	if event.Level >= LevelWarning {
		kind, _ := event.Data["error_kind"].(string)
		o.ProblemsTotal.WithLabelValues(typ, kind).Inc()
	}

	switch {
	case o.openType != "" && event.Type == o.openType:
		o.Active.Inc()
	case o.closeType != "" && event.Type == o.closeType:
		o.Active.Dec()
	}
}
