// Package report fans completed refresh runs out to the configured sinks:
// structured logs, the history database, metrics, desktop notifications and
// NATS. Sinks are optional; the reporter does whatever it was given.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"git.home.luguber.info/inful/bazelide/internal/events"
	"git.home.luguber.info/inful/bazelide/internal/history"
	"git.home.luguber.info/inful/bazelide/internal/logfields"
	"git.home.luguber.info/inful/bazelide/internal/metrics"
)

// Notifier raises a user-facing notification.
type Notifier interface {
	Notify(title, body string) error
}

// DesktopNotifier shows desktop notifications via the platform notification
// service.
type DesktopNotifier struct{}

func (DesktopNotifier) Notify(title, body string) error {
	return beeep.Notify(title, body, "")
}

// OutcomePublisher forwards completed refreshes to an external channel.
type OutcomePublisher interface {
	PublishOutcome(evt events.RefreshCompleted) error
}

// Config wires a Reporter to its sinks. Bus is required; every sink is
// optional.
type Config struct {
	Bus *events.Bus

	History   *history.Store
	Recorder  metrics.Recorder
	Notifier  Notifier
	Publisher OutcomePublisher
}

// Reporter consumes RefreshCompleted events until its context is canceled.
type Reporter struct {
	cfg       Config
	completed <-chan events.RefreshCompleted
	unsub     func()
}

// NewReporter subscribes to the bus. Call Run to start consuming.
func NewReporter(cfg Config) *Reporter {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	completed, unsub := events.Subscribe[events.RefreshCompleted](cfg.Bus, 16)
	return &Reporter{
		cfg:       cfg,
		completed: completed,
		unsub:     unsub,
	}
}

// Run consumes events until ctx is canceled or the bus closes.
func (r *Reporter) Run(ctx context.Context) {
	defer r.unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-r.completed:
			if !ok {
				return
			}
			r.handleCompleted(ctx, evt)
		}
	}
}

func (r *Reporter) handleCompleted(ctx context.Context, evt events.RefreshCompleted) {
	r.cfg.Recorder.ObserveRefreshDuration(evt.Elapsed, evt.Succeeded)
	if evt.Succeeded {
		r.cfg.Recorder.IncRefreshOutcome(metrics.OutcomeSuccess)
	} else {
		r.cfg.Recorder.IncRefreshOutcome(metrics.OutcomeFailed)
	}
	if evt.ArtifactChanged == "changed" {
		r.cfg.Recorder.IncArtifactChange()
	}

	if r.cfg.History != nil {
		entry := history.Entry{
			RunID:       evt.RunID,
			Targets:     evt.Targets,
			Generator:   evt.Generator,
			Cause:       evt.Cause,
			Succeeded:   evt.Succeeded,
			Artifact:    evt.ArtifactChanged,
			ElapsedMS:   evt.Elapsed.Milliseconds(),
			ErrorDetail: evt.ErrorDetail,
			FinishedAt:  evt.FinishedAt,
		}
		if err := r.cfg.History.Record(ctx, entry); err != nil {
			slog.Warn("Failed to record refresh history", logfields.Error(err))
		}
	}

	if r.cfg.Publisher != nil {
		if err := r.cfg.Publisher.PublishOutcome(evt); err != nil {
			slog.Warn("Failed to publish refresh outcome", logfields.Error(err))
		}
	}

	r.notify(evt)
}

// notify raises a desktop notification for failures and for successful runs
// that actually changed the artifact. Unchanged runs stay silent.
func (r *Reporter) notify(evt events.RefreshCompleted) {
	if r.cfg.Notifier == nil {
		return
	}

	var title, body string
	switch {
	case !evt.Succeeded:
		title = "bazelide: refresh failed"
		body = evt.ErrorDetail
		if body == "" {
			body = "see logs for details"
		}
	case evt.ArtifactChanged == "changed":
		title = "bazelide"
		body = fmt.Sprintf("compilation database updated (%s)", formatElapsed(evt.Elapsed))
	default:
		return
	}

	if err := r.cfg.Notifier.Notify(title, body); err != nil {
		slog.Debug("Desktop notification failed", logfields.Error(err))
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
