package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/bazelide/internal/events"
	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
	"git.home.luguber.info/inful/bazelide/internal/logfields"
)

// ArtifactState reports whether a successful run actually changed the
// generated artifact's bytes.
type ArtifactState string

const (
	ArtifactChanged   ArtifactState = "changed"
	ArtifactUnchanged ArtifactState = "unchanged"
	ArtifactUnknown   ArtifactState = "unknown"
)

// Outcome describes one completed regeneration attempt.
type Outcome struct {
	RunID       string
	Cause       string
	Generator   GeneratorKind
	Succeeded   bool
	Artifact    ArtifactState
	Elapsed     time.Duration
	ErrorDetail string
	FinishedAt  time.Time
}

// Config configures a Coordinator.
type Config struct {
	// Debounce is the quiet window. Zero or negative means "run as soon as
	// possible after the first trigger".
	Debounce time.Duration
	// MaxDelay bounds how long a steady trigger stream can postpone a run.
	// Zero disables the bound.
	MaxDelay time.Duration

	Targets string
	// OutputPath is the absolute path of the generated artifact.
	OutputPath string

	Action Action
	// Bus, when set, receives RefreshStarted/RefreshCompleted events.
	Bus *events.Bus
}

// Coordinator debounces change triggers into single regeneration runs.
//
// Trigger is safe for any number of concurrent callers and never blocks.
// Run hosts the debounce loop and must be running for scheduled triggers to
// fire; RefreshNow works without it. At most one regeneration executes at a
// time, shared between the loop and RefreshNow.
type Coordinator struct {
	cfg Config

	mu             sync.Mutex
	pending        bool
	firstTriggerAt time.Time
	lastTriggerAt  time.Time
	inFlight       bool
	fingerprint    string

	// execMu serializes regeneration runs. Never acquired while holding mu,
	// and mu is never held across a sleep or the external invocation.
	execMu sync.Mutex

	readyOnce sync.Once
	ready     chan struct{}
	wake      chan struct{}
}

// NewCoordinator validates cfg and creates a Coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Action == nil {
		return nil, ferrors.ValidationError("action is required").Build()
	}
	if cfg.OutputPath == "" {
		return nil, ferrors.ValidationError("output path is required").Build()
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}

	c := &Coordinator{
		cfg:   cfg,
		ready: make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}

	// Seed from any existing artifact so a byte-identical regeneration right
	// after startup reports "unchanged" rather than "changed".
	if fp, err := fileFingerprint(cfg.OutputPath); err == nil {
		c.fingerprint = fp
	}

	return c, nil
}

// Ready is closed once Run has initialized its timer and entered the loop.
// Primarily intended for tests and deterministic startup sequencing.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// InFlight reports whether a regeneration is currently executing.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Trigger records a change signal and arms the debounce loop. It never
// blocks and never performs the regeneration itself. A trigger arriving
// while a run is executing is remembered and starts a fresh debounce window
// once that run finishes.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	now := time.Now()
	if !c.pending {
		c.pending = true
		c.firstTriggerAt = now
	}
	c.lastTriggerAt = now
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run hosts the debounce loop until ctx is canceled. Cancellation stops the
// loop but never aborts a regeneration already underway.
func (c *Coordinator) Run(ctx context.Context) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	quietTimer := time.NewTimer(time.Hour)
	if !quietTimer.Stop() {
		select {
		case <-quietTimer.C:
		default:
		}
	}
	var quietC <-chan time.Time

	resetTimer := func(t *time.Timer, after time.Duration) {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(after)
	}

	c.readyOnce.Do(func() { close(c.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.wake:
			resetTimer(quietTimer, c.waitFor())
			quietC = quietTimer.C

		case <-quietC:
			if wait := c.waitFor(); wait > 0 {
				// A later trigger arrived during the sleep; re-arm for the
				// remaining window instead of firing early.
				resetTimer(quietTimer, wait)
				continue
			}
			cause, ok := c.consumePending()
			if !ok {
				quietC = nil
				continue
			}
			_, _ = c.execute(ctx, cause)
			quietC = nil
		}
	}
}

// RefreshNow bypasses scheduling and performs a regeneration immediately.
// It shares the single-flight guarantee with the debounce loop: a running
// execution finishes before this one starts.
func (c *Coordinator) RefreshNow(ctx context.Context) (Outcome, error) {
	return c.execute(ctx, "manual")
}

// waitFor returns how long the loop must still wait before the pending
// trigger is due. Zero means due now (or nothing pending).
func (c *Coordinator) waitFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pending {
		return 0
	}
	deadline := c.lastTriggerAt.Add(c.cfg.Debounce)
	if c.cfg.MaxDelay > 0 {
		if bound := c.firstTriggerAt.Add(c.cfg.MaxDelay); bound.Before(deadline) {
			deadline = bound
		}
	}
	wait := time.Until(deadline)
	if wait < 0 {
		return 0
	}
	return wait
}

func (c *Coordinator) consumePending() (cause string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pending {
		return "", false
	}
	cause = "quiet"
	if time.Since(c.lastTriggerAt) < c.cfg.Debounce {
		// Quiet window not elapsed, so the max-delay bound forced this run.
		cause = "max_delay"
	}
	c.pending = false
	return cause, true
}

func (c *Coordinator) setInFlight(v bool) {
	c.mu.Lock()
	c.inFlight = v
	c.mu.Unlock()
}

func (c *Coordinator) execute(ctx context.Context, cause string) (Outcome, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.setInFlight(true)
	defer c.setInFlight(false)

	// A session stop must not abort a regeneration already underway.
	runCtx := context.WithoutCancel(ctx)

	outcome := Outcome{
		RunID:     uuid.NewString(),
		Cause:     cause,
		Generator: GeneratorNone,
		Artifact:  ArtifactUnknown,
	}

	slog.Info("Refreshing compilation database",
		logfields.RunID(outcome.RunID),
		logfields.Targets(c.cfg.Targets),
		logfields.Cause(cause))
	c.publish(runCtx, events.RefreshStarted{
		RunID:     outcome.RunID,
		Targets:   c.cfg.Targets,
		Cause:     cause,
		StartedAt: time.Now(),
	})

	start := time.Now()
	report, err := c.runAction(runCtx)
	outcome.Elapsed = time.Since(start)
	if report != nil {
		outcome.Generator = report.Generator
		if report.Elapsed > 0 {
			outcome.Elapsed = report.Elapsed
		}
	}

	if err != nil {
		outcome.ErrorDetail = errorDetail(err)
		slog.Error("Refresh failed",
			logfields.RunID(outcome.RunID),
			logfields.DurationMS(float64(outcome.Elapsed.Milliseconds())),
			logfields.Error(err))
	} else {
		outcome.Succeeded = true
		outcome.Artifact = c.compareAndStoreFingerprint()
		slog.Info("Refresh complete",
			logfields.RunID(outcome.RunID),
			logfields.Generator(string(outcome.Generator)),
			logfields.DurationMS(float64(outcome.Elapsed.Milliseconds())),
			slog.String("artifact", string(outcome.Artifact)))
	}

	outcome.FinishedAt = time.Now()
	c.publish(runCtx, events.RefreshCompleted{
		RunID:           outcome.RunID,
		Targets:         c.cfg.Targets,
		Generator:       string(outcome.Generator),
		Cause:           cause,
		Succeeded:       outcome.Succeeded,
		ArtifactChanged: string(outcome.Artifact),
		Elapsed:         outcome.Elapsed,
		ErrorDetail:     outcome.ErrorDetail,
		FinishedAt:      outcome.FinishedAt,
	})

	return outcome, err
}

// runAction is the panic boundary around the external invocation: a panic
// must not kill the debounce loop.
func (c *Coordinator) runAction(ctx context.Context) (report *RunReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in regeneration", "panic", r)
			err = ferrors.RuntimeError(fmt.Sprintf("regeneration panicked: %v", r)).Build()
		}
	}()
	return c.cfg.Action.Regenerate(ctx, c.cfg.Targets)
}

// compareAndStoreFingerprint reads the artifact, compares it to the stored
// fingerprint and updates it. Only called after a successful run; a failed
// run never touches the stored fingerprint.
func (c *Coordinator) compareAndStoreFingerprint() ArtifactState {
	fp, err := fileFingerprint(c.cfg.OutputPath)
	if err != nil {
		slog.Warn("Could not read generated artifact",
			logfields.Output(c.cfg.OutputPath),
			logfields.Error(err))
		return ArtifactUnknown
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fp == c.fingerprint {
		return ArtifactUnchanged
	}
	c.fingerprint = fp
	return ArtifactChanged
}

func (c *Coordinator) publish(ctx context.Context, evt any) {
	if c.cfg.Bus == nil {
		return
	}
	if err := c.cfg.Bus.Publish(ctx, evt); err != nil {
		slog.Warn("Failed to publish refresh event", logfields.Error(err))
	}
}

func errorDetail(err error) string {
	classified, ok := ferrors.AsClassified(err)
	if !ok {
		return err.Error()
	}
	detail := classified.Message()
	if tail, ok := classified.Context().GetString("stderr_tail"); ok && tail != "" {
		detail += "\n" + tail
	}
	return detail
}
