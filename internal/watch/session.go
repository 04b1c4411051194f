package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/bazelide/internal/events"
	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
	"git.home.luguber.info/inful/bazelide/internal/logfields"
	"git.home.luguber.info/inful/bazelide/internal/metrics"
)

// Trigger is the coordinator-facing side of the session: one call per
// accepted change event, never blocking.
type Trigger interface {
	Trigger()
}

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	// Root is the workspace root to watch, recursively.
	Root string

	Classifier *Classifier
	Dedup      *Deduplicator
	Trigger    Trigger

	// Bus, when set, receives a ChangeDetected event per accepted trigger.
	Bus *events.Bus
	// Recorder defaults to the no-op recorder.
	Recorder metrics.Recorder
}

// Session owns a recursive filesystem watch on a workspace root and routes
// raw notifications through the classifier and deduplicator into the
// trigger. The watch subscription is acquired in Start and released when
// Run returns.
type Session struct {
	cfg     SessionConfig
	watcher *fsnotify.Watcher

	closeOnce sync.Once
}

// NewSession validates cfg and creates a Session. The filesystem watch is
// not acquired until Start.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Root == "" {
		return nil, ferrors.ValidationError("watch root is required").Build()
	}
	if cfg.Classifier == nil || cfg.Dedup == nil || cfg.Trigger == nil {
		return nil, ferrors.ValidationError("classifier, deduplicator and trigger are required").Build()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	return &Session{cfg: cfg}, nil
}

// Start acquires the filesystem watch and registers the root tree.
func (s *Session) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "failed to create filesystem watcher").
			Fatal().
			Build()
	}
	if err := addDirsRecursive(watcher, s.cfg.Root); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher

	slog.Info("Watching workspace for build file changes",
		logfields.Workspace(s.cfg.Root))
	return nil
}

// Run processes notifications until ctx is canceled, then releases the
// watch. Start must have been called first.
func (s *Session) Run(ctx context.Context) error {
	if s.watcher == nil {
		return ferrors.WatchError("session not started").Build()
	}
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Filesystem watcher error", logfields.Error(err))
		}
	}
}

// Close releases the filesystem watch. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
	})
}

func (s *Session) handleEvent(ev fsnotify.Event) {
	kind, ok := classifyOp(ev.Op)
	if !ok {
		return
	}
	rel, err := filepath.Rel(s.cfg.Root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if ignoredRelPath(rel) {
		return
	}

	// A directory created under the root must be registered so files
	// appearing inside it are seen. The directory itself never triggers.
	if kind == KindCreated {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(s.watcher, ev.Name)
			return
		}
	}

	if !s.cfg.Classifier.Relevant(ev.Name) {
		return
	}
	if !s.cfg.Dedup.Accept(kind, ev.Name) {
		s.cfg.Recorder.IncSuppressedEvent()
		return
	}

	slog.Info("Build file change detected",
		logfields.Path(ev.Name),
		logfields.Kind(string(kind)))
	s.cfg.Recorder.IncChangeEvent(string(kind))

	if s.cfg.Bus != nil {
		evt := events.ChangeDetected{
			Kind:       string(kind),
			Path:       ev.Name,
			DetectedAt: time.Now(),
		}
		if err := s.cfg.Bus.Publish(context.Background(), evt); err != nil {
			slog.Warn("Failed to publish change event", logfields.Error(err))
		}
	}

	s.cfg.Trigger.Trigger()
}

// classifyOp maps an fsnotify op onto an event kind. Chmod-only events are
// dropped: they fire on metadata churn that never changes build structure.
func classifyOp(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return KindCreated, true
	case op.Has(fsnotify.Write):
		return KindModified, true
	case op.Has(fsnotify.Remove):
		return KindDeleted, true
	case op.Has(fsnotify.Rename):
		return KindMoved, true
	default:
		return "", false
	}
}

// ignoredRelPath drops root-relative paths inside hidden directories and
// bazel convenience symlinks (bazel-out, bazel-bin, ...), which churn
// heavily during builds.
func ignoredRelPath(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") || strings.HasPrefix(part, "bazel-") {
			return true
		}
	}
	return false
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != root {
			if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "bazel-") {
				return filepath.SkipDir
			}
		}
		if err := w.Add(path); err != nil {
			slog.Warn("Could not watch directory", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "failed to register watch tree").
			Fatal().
			WithContext("root", root).
			Build()
	}
	return nil
}
