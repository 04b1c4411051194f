package refresh

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bazelide/internal/events"
	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

// fakeAction counts regenerations and optionally blocks, panics or writes
// the artifact via onRun.
type fakeAction struct {
	mu        sync.Mutex
	runs      int
	err       error
	panicWith any

	block   chan struct{}
	started chan struct{}
	onRun   func()
}

func (f *fakeAction) Regenerate(_ context.Context, _ string) (*RunReport, error) {
	f.mu.Lock()
	f.runs++
	err := f.err
	panicWith := f.panicWith
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if panicWith != nil {
		panic(panicWith)
	}
	if f.onRun != nil {
		f.onRun()
	}
	return &RunReport{Generator: GeneratorPrimary}, err
}

func (f *fakeAction) ResolveGenerator(context.Context) GeneratorKind {
	return GeneratorPrimary
}

func (f *fakeAction) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeAction) set(err error, panicWith any) {
	f.mu.Lock()
	f.err = err
	f.panicWith = panicWith
	f.mu.Unlock()
}

func newTestCoordinator(t *testing.T, action Action, debounce, maxDelay time.Duration, bus *events.Bus) *Coordinator {
	t.Helper()

	c, err := NewCoordinator(Config{
		Debounce:   debounce,
		MaxDelay:   maxDelay,
		Targets:    "//...",
		OutputPath: filepath.Join(t.TempDir(), "compile_commands.json"),
		Action:     action,
		Bus:        bus,
	})
	require.NoError(t, err)
	return c
}

func startLoop(t *testing.T, c *Coordinator) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	<-c.Ready()
}

func TestNewCoordinatorValidates(t *testing.T) {
	_, err := NewCoordinator(Config{OutputPath: "out.json"})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	_, err = NewCoordinator(Config{Action: &fakeAction{}})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestBurstCoalescesIntoOneRun(t *testing.T) {
	action := &fakeAction{}
	c := newTestCoordinator(t, action, 30*time.Millisecond, 0, nil)
	startLoop(t, c)

	for range 10 {
		c.Trigger()
	}

	require.Eventually(t, func() bool { return action.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Quiet afterwards: no second run materializes out of the same burst.
	time.Sleep(120 * time.Millisecond)
	require.Equal(t, 1, action.count())
}

func TestZeroDebounceRunsPromptly(t *testing.T) {
	action := &fakeAction{}
	c := newTestCoordinator(t, action, 0, 0, nil)
	startLoop(t, c)

	c.Trigger()

	require.Eventually(t, func() bool { return action.count() == 1 },
		2*time.Second, 2*time.Millisecond)
}

func TestLaterTriggerExtendsQuietWindow(t *testing.T) {
	action := &fakeAction{}
	c := newTestCoordinator(t, action, 150*time.Millisecond, 0, nil)
	startLoop(t, c)

	c.Trigger()
	time.Sleep(80 * time.Millisecond)
	c.Trigger()

	// 170ms after the first trigger the original window has elapsed, but the
	// second trigger pushed the deadline out.
	time.Sleep(90 * time.Millisecond)
	require.Equal(t, 0, action.count())

	require.Eventually(t, func() bool { return action.count() == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestMaxDelayBoundsPostponement(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	completed, unsub := events.Subscribe[events.RefreshCompleted](bus, 8)
	defer unsub()

	action := &fakeAction{}
	c := newTestCoordinator(t, action, 100*time.Millisecond, 250*time.Millisecond, bus)
	startLoop(t, c)

	// A trigger every 40ms keeps resetting the quiet window; only the
	// max-delay bound lets a run through.
	stop := time.After(600 * time.Millisecond)
	tick := time.NewTicker(40 * time.Millisecond)
	defer tick.Stop()
	c.Trigger()
spam:
	for {
		select {
		case <-tick.C:
			c.Trigger()
		case <-stop:
			break spam
		}
	}

	require.Eventually(t, func() bool { return action.count() >= 1 },
		2*time.Second, 10*time.Millisecond)

	select {
	case evt := <-completed:
		require.Equal(t, "max_delay", evt.Cause)
	case <-time.After(2 * time.Second):
		t.Fatal("no RefreshCompleted event")
	}
}

func TestTriggerDuringRunQueuesOneFollowUp(t *testing.T) {
	action := &fakeAction{
		block:   make(chan struct{}),
		started: make(chan struct{}, 4),
	}
	c := newTestCoordinator(t, action, 10*time.Millisecond, 0, nil)
	startLoop(t, c)

	c.Trigger()
	<-action.started
	require.True(t, c.InFlight())

	// Several triggers while the run is executing collapse into one follow-up.
	c.Trigger()
	c.Trigger()
	c.Trigger()
	close(action.block)

	require.Eventually(t, func() bool { return action.count() == 2 },
		2*time.Second, 5*time.Millisecond)
	<-action.started

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 2, action.count())
}

func TestRefreshNowReportsManualCause(t *testing.T) {
	action := &fakeAction{}
	c := newTestCoordinator(t, action, time.Second, 0, nil)

	outcome, err := c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.True(t, outcome.Succeeded)
	require.Equal(t, "manual", outcome.Cause)
	require.Equal(t, GeneratorPrimary, outcome.Generator)
	require.NotEmpty(t, outcome.RunID)
}

func TestFingerprintTracksArtifactBytes(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "compile_commands.json")

	content := []byte(`[{"file":"a.cc"}]`)
	action := &fakeAction{}
	action.onRun = func() {
		require.NoError(t, os.WriteFile(output, content, 0o644))
	}

	c, err := NewCoordinator(Config{
		Targets:    "//...",
		OutputPath: output,
		Action:     action,
	})
	require.NoError(t, err)

	// First run with no prior artifact: changed.
	outcome, err := c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.Equal(t, ArtifactChanged, outcome.Artifact)

	// Identical bytes: unchanged.
	outcome, err = c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.Equal(t, ArtifactUnchanged, outcome.Artifact)

	// Different bytes: changed again.
	content = []byte(`[{"file":"b.cc"}]`)
	outcome, err = c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.Equal(t, ArtifactChanged, outcome.Artifact)
}

func TestFingerprintSeededFromExistingArtifact(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "compile_commands.json")
	content := []byte(`[{"file":"a.cc"}]`)
	require.NoError(t, os.WriteFile(output, content, 0o644))

	action := &fakeAction{}
	action.onRun = func() {
		require.NoError(t, os.WriteFile(output, content, 0o644))
	}

	c, err := NewCoordinator(Config{
		Targets:    "//...",
		OutputPath: output,
		Action:     action,
	})
	require.NoError(t, err)

	// The run rewrote the same bytes that were already on disk.
	outcome, err := c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.Equal(t, ArtifactUnchanged, outcome.Artifact)
}

func TestFailedRunLeavesFingerprintAlone(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "compile_commands.json")

	content := []byte(`[{"file":"a.cc"}]`)
	action := &fakeAction{}
	action.onRun = func() {
		require.NoError(t, os.WriteFile(output, content, 0o644))
	}

	c, err := NewCoordinator(Config{
		Targets:    "//...",
		OutputPath: output,
		Action:     action,
	})
	require.NoError(t, err)

	outcome, err := c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.Equal(t, ArtifactChanged, outcome.Artifact)

	action.set(ferrors.GeneratorError("generator exited with status 1").Build(), nil)
	outcome, err = c.RefreshNow(t.Context())
	require.Error(t, err)
	require.False(t, outcome.Succeeded)
	require.Equal(t, ArtifactUnknown, outcome.Artifact)
	require.NotEmpty(t, outcome.ErrorDetail)

	// Back to success with the same bytes the last success produced.
	action.set(nil, nil)
	outcome, err = c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.Equal(t, ArtifactUnchanged, outcome.Artifact)
}

func TestMissingArtifactReportsUnknown(t *testing.T) {
	action := &fakeAction{}
	c := newTestCoordinator(t, action, time.Second, 0, nil)

	outcome, err := c.RefreshNow(t.Context())
	require.NoError(t, err)
	require.True(t, outcome.Succeeded)
	require.Equal(t, ArtifactUnknown, outcome.Artifact)
}

func TestPanicInActionDoesNotKillLoop(t *testing.T) {
	action := &fakeAction{}
	action.set(nil, "boom")
	c := newTestCoordinator(t, action, 10*time.Millisecond, 0, nil)
	startLoop(t, c)

	c.Trigger()
	require.Eventually(t, func() bool { return action.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	// The loop survived; a later trigger still runs.
	action.set(nil, nil)
	c.Trigger()
	require.Eventually(t, func() bool { return action.count() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestPanicSurfacesAsRuntimeError(t *testing.T) {
	action := &fakeAction{}
	action.set(nil, "boom")
	c := newTestCoordinator(t, action, time.Second, 0, nil)

	outcome, err := c.RefreshNow(t.Context())
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
	require.False(t, outcome.Succeeded)
}

func TestPublishesStartAndCompletion(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	started, unsubStart := events.Subscribe[events.RefreshStarted](bus, 1)
	defer unsubStart()
	completed, unsubDone := events.Subscribe[events.RefreshCompleted](bus, 1)
	defer unsubDone()

	action := &fakeAction{}
	c := newTestCoordinator(t, action, time.Second, 0, bus)

	outcome, err := c.RefreshNow(t.Context())
	require.NoError(t, err)

	startEvt := <-started
	require.Equal(t, outcome.RunID, startEvt.RunID)
	require.Equal(t, "manual", startEvt.Cause)

	doneEvt := <-completed
	require.Equal(t, outcome.RunID, doneEvt.RunID)
	require.True(t, doneEvt.Succeeded)
	require.Equal(t, "primary", doneEvt.Generator)
	require.Equal(t, string(outcome.Artifact), doneEvt.ArtifactChanged)
}
