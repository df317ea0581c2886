// Package metrics exposes warden's Prometheus collectors. Recorder
// implements engine.Recorder and owns its own registry so tests and
// multiple orchestrators never collide on the default one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triage-ai/warden/internal/engine"
)

const namespace = "warden"

// Recorder records orchestrator, queue and HTTP measurements.
type Recorder struct {
	registry *prometheus.Registry

	validations    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	moduleFailures *prometheus.CounterVec
	earlyExits     prometheus.Counter
	httpRequests   *prometheus.CounterVec
}

// New creates a Recorder. A nil registry gets a fresh one with the Go and
// process collectors.
func New(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Recorder{
		registry: registry,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Completed validations by severity and action.",
		}, []string{"severity", "action"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Validation latency.",
			// Sub-millisecond cache hits up to slow-module timeouts.
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"cache"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		moduleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_failures_total",
			Help:      "Detection module failures by module and reason.",
		}, []string{"module", "reason"}),
		earlyExits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "early_exits_total",
			Help:      "Validations that skipped slow modules after a critical fast finding.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	registry.MustRegister(
		r.validations,
		r.latency,
		r.cacheLookups,
		r.moduleFailures,
		r.earlyExits,
		r.httpRequests,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveValidation implements engine.Recorder.
func (r *Recorder) ObserveValidation(sev engine.Severity, action engine.Action, cacheHit bool, d time.Duration) {
	r.validations.WithLabelValues(sev.String(), action.String()).Inc()
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	r.latency.WithLabelValues(cache).Observe(d.Seconds())
}

// CacheLookup implements engine.Recorder.
func (r *Recorder) CacheLookup(hit bool) {
	if hit {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
}

// ModuleFailure implements engine.Recorder.
func (r *Recorder) ModuleFailure(module, reason string) {
	r.moduleFailures.WithLabelValues(module, reason).Inc()
}

// EarlyExit implements engine.Recorder.
func (r *Recorder) EarlyExit() {
	r.earlyExits.Inc()
}

// HTTPRequest counts one served request.
func (r *Recorder) HTTPRequest(route string, code int) {
	r.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// QueueStats is satisfied by storage.Writer and notify.Dispatcher.
type QueueStats interface {
	Pending() int64
	Dropped() int64
	Failed() int64
}

// RegisterQueue exports a queue's counters as gauges labelled with name.
func (r *Recorder) RegisterQueue(name string, q QueueStats) error {
	labels := prometheus.Labels{"queue": name}
	fns := []struct {
		metric, help string
		fn           func() int64
	}{
		{"queue_pending", "Items accepted but not yet delivered.", q.Pending},
		{"queue_dropped", "Items dropped because the queue was full.", q.Dropped},
		{"queue_failed", "Items dropped after exhausting retries.", q.Failed},
	}
	for _, f := range fns {
		fn := f.fn
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        f.metric,
			Help:        f.help,
			ConstLabels: labels,
		}, func() float64 { return float64(fn()) })
		if err := r.registry.Register(g); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
