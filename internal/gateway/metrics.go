package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/flemzord/tickclaw/internal/runner"
	"github.com/flemzord/tickclaw/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tickclaw"

// Metrics holds the Prometheus collectors on a private registry. Run
// counters are fed through RunFinished; gauges are read from the latest
// published snapshot at scrape time.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	rateLimited prometheus.Counter
	fallbacks   prometheus.Counter
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the collectors. hub supplies the gauges.
func NewMetrics(hub *state.Hub) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent invocations by kind and result.",
		}, []string{"kind", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Invocations whose primary attempt hit a rate limit.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_runs_total",
			Help:      "Invocations answered by the fallback model.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of agent invocations.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
	}

	snapshotGauge := func(name, help string, value func(state.Snapshot) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			snap, ok := hub.Latest()
			if !ok {
				return 0
			}
			return value(snap)
		})
	}

	m.registry.MustRegister(
		m.runs, m.rateLimited, m.fallbacks, m.duration,
		snapshotGauge("queue_depth", "Runs waiting behind the current one.", func(s state.Snapshot) float64 {
			return float64(s.QueueDepth)
		}),
		snapshotGauge("jobs", "Jobs loaded, including inert ones.", func(s state.Snapshot) float64 {
			return float64(len(s.Jobs))
		}),
		snapshotGauge("heartbeat_next_timestamp_seconds", "Unix time of the next heartbeat, 0 when disabled.", func(s state.Snapshot) float64 {
			if s.Heartbeat.NextAt == nil {
				return 0
			}
			return float64(s.Heartbeat.NextAt.Unix())
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RunFinished implements runner.Observer.
func (m *Metrics) RunFinished(_ context.Context, o runner.Outcome) {
	kind := labelKind(o.Label)
	result := "success"
	if o.Result.Failed() {
		result = "error"
	}
	m.runs.WithLabelValues(kind, result).Inc()
	if o.RateLimited {
		m.rateLimited.Inc()
	}
	if o.Answered == runner.AnsweredFallback {
		m.fallbacks.Inc()
	}
	if !o.StartedAt.IsZero() && !o.FinishedAt.IsZero() {
		m.duration.WithLabelValues(kind).Observe(o.FinishedAt.Sub(o.StartedAt).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// labelKind keeps metric cardinality bounded: "job:nightly" counts as "job".
func labelKind(label string) string {
	kind, _, _ := strings.Cut(label, ":")
	if kind == "" {
		return "other"
	}
	return kind
}
