package metrics

import "time"

// OutcomeLabel enumerates refresh result categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess OutcomeLabel = "success"
	OutcomeFailed  OutcomeLabel = "failed"
)

// Recorder defines observability hooks for watch and refresh activity.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveRefreshDuration(d time.Duration, success bool)
	IncRefreshOutcome(outcome OutcomeLabel)
	IncArtifactChange()
	IncChangeEvent(kind string) // events that passed classifier and dedup
	IncSuppressedEvent()        // events dropped by the deduplicator
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRefreshDuration(time.Duration, bool) {}
func (NoopRecorder) IncRefreshOutcome(OutcomeLabel)             {}
func (NoopRecorder) IncArtifactChange()                         {}
func (NoopRecorder) IncChangeEvent(string)                      {}
func (NoopRecorder) IncSuppressedEvent()                        {}
