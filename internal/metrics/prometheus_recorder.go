package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	refreshDuration  *prom.HistogramVec
	refreshOutcomes  *prom.CounterVec
	artifactChanges  prom.Counter
	changeEvents     *prom.CounterVec
	suppressedEvents prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.refreshDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "bazelide",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of compile_commands regeneration runs",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.refreshOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bazelide",
			Name:      "refresh_outcomes_total",
			Help:      "Refresh outcomes by final status",
		}, []string{"outcome"})
		pr.artifactChanges = prom.NewCounter(prom.CounterOpts{
			Namespace: "bazelide",
			Name:      "artifact_changes_total",
			Help:      "Refreshes whose output artifact bytes actually changed",
		})
		pr.changeEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bazelide",
			Name:      "change_events_total",
			Help:      "Accepted build-file change events by kind",
		}, []string{"kind"})
		pr.suppressedEvents = prom.NewCounter(prom.CounterOpts{
			Namespace: "bazelide",
			Name:      "suppressed_events_total",
			Help:      "Change events dropped by the deduplicator",
		})
		reg.MustRegister(pr.refreshDuration, pr.refreshOutcomes, pr.artifactChanges, pr.changeEvents, pr.suppressedEvents)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRefreshDuration(d time.Duration, success bool) {
	if p == nil || p.refreshDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.refreshDuration.WithLabelValues(res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRefreshOutcome(outcome OutcomeLabel) {
	if p == nil || p.refreshOutcomes == nil {
		return
	}
	p.refreshOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncArtifactChange() {
	if p == nil || p.artifactChanges == nil {
		return
	}
	p.artifactChanges.Inc()
}

func (p *PrometheusRecorder) IncChangeEvent(kind string) {
	if p == nil || p.changeEvents == nil {
		return
	}
	p.changeEvents.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncSuppressedEvent() {
	if p == nil || p.suppressedEvents == nil {
		return
	}
	p.suppressedEvents.Inc()
}
