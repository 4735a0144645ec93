package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver records engine Events as Prometheus metrics,
// grounded on 88lin-divinesense's ai/metrics/prometheus.go: a
// *prometheus.Registry owning a handful of CounterVecs/HistogramVec,
// registered once at construction and exposed over promhttp.
type PrometheusObserver struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

// NewPrometheusObserver creates a PrometheusObserver. If registry is
// nil, a fresh prometheus.Registry is created.
func NewPrometheusObserver(registry *prometheus.Registry) *PrometheusObserver {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	o := &PrometheusObserver{
		registry: registry,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flow",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Total number of engine observability events by type and level.",
			},
			[]string{"type", "level", "source"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flow",
				Subsystem: "engine",
				Name:      "task_duration_seconds",
				Help:      "Task execution duration in seconds, from start to terminal status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "status"},
		),
	}

	registry.MustRegister(o.events, o.taskDuration)
	return o
}

// OnEvent implements Observer. Every event increments the events
// counter; events carrying a "duration_seconds" float64 and "kind" and
// "status" string in Data additionally observe task_duration_seconds,
// the way Engine.onComplete reports a task's terminal transition.
func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String(), event.Source).Inc()

	durationVal, hasDuration := event.Data["duration_seconds"].(float64)
	kind, hasKind := event.Data["kind"].(string)
	status, hasStatus := event.Data["status"].(string)
	if hasDuration && hasKind && hasStatus {
		o.taskDuration.WithLabelValues(kind, status).Observe(durationVal)
	}
}

// Handler returns the HTTP handler serving metrics in Prometheus text
// exposition format, for mounting under a metrics server's mux.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

var _ Observer = (*PrometheusObserver)(nil)
