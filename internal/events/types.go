package events

import "time"

// ChangeDetected is published by the watch session for every event that
// survives classification and deduplication, one per accepted trigger.
type ChangeDetected struct {
	Kind       string
	Path       string
	DetectedAt time.Time
}

// RefreshStarted is published by the coordinator when a regeneration run
// actually begins (after the debounce window has elapsed).
type RefreshStarted struct {
	RunID     string
	Targets   string
	Cause     string // "quiet", "max_delay" or "manual"
	StartedAt time.Time
}

// RefreshCompleted is published once per finished regeneration attempt.
// ArtifactChanged is "changed", "unchanged" or "unknown" (output unreadable
// or run failed).
type RefreshCompleted struct {
	RunID           string
	Targets         string
	Generator       string // "primary", "fallback" or "none"
	Cause           string
	Succeeded       bool
	ArtifactChanged string
	Elapsed         time.Duration
	ErrorDetail     string
	FinishedAt      time.Time
}
