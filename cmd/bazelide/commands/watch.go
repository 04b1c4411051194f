package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bazelide/internal/events"
	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
	"git.home.luguber.info/inful/bazelide/internal/history"
	"git.home.luguber.info/inful/bazelide/internal/logfields"
	"git.home.luguber.info/inful/bazelide/internal/metrics"
	"git.home.luguber.info/inful/bazelide/internal/report"
	"git.home.luguber.info/inful/bazelide/internal/watch"
)

// WatchCmd implements the 'watch' command: the long-running session.
type WatchCmd struct {
	Targets          string        `short:"t" help:"Bazel target selector" placeholder:"SEL"`
	Output           string        `short:"o" help:"Generated artifact path, relative to the workspace root" placeholder:"PATH"`
	Debounce         int           `help:"Debounce window in milliseconds" placeholder:"MS" default:"-1"`
	NoInitialRefresh bool          `help:"Skip the refresh performed at startup"`
	Notify           bool          `help:"Show a desktop notification per refresh"`
	Interval         time.Duration `help:"Force a refresh at this interval even without changes (min 1m)" placeholder:"DUR"`
	MetricsAddr      string        `help:"Expose Prometheus metrics on this address (e.g. :9464)" placeholder:"ADDR"`
}

func (w *WatchCmd) Run(cli *CLI) error {
	root, cfg, err := loadWorkspaceConfig(cli)
	if err != nil {
		return err
	}
	applyOverrides(cfg, w.Targets, w.Output, w.Debounce)
	if w.MetricsAddr != "" {
		cfg.Metrics.Addr = w.MetricsAddr
	}
	if w.Notify {
		cfg.Notify.Desktop = true
	}
	if w.Interval > 0 {
		if w.Interval < time.Minute {
			return ferrors.ConfigError("--interval must be at least 1m").Build()
		}
		cfg.FullRefreshInterval = w.Interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Close()

	recorder, stopMetrics := setupMetrics(cfg.Metrics.Addr)
	defer stopMetrics()

	var store *history.Store
	if !cfg.History.Disabled {
		store, err = history.Open(resolvePath(root, cfg.History.Path))
		if err != nil {
			slog.Warn("History recording disabled", logfields.Error(err))
			store = nil
		}
	}
	if store != nil {
		defer func() {
			_ = store.Close()
		}()
	}

	var notifier report.Notifier
	if cfg.Notify.Desktop {
		notifier = report.DesktopNotifier{}
	}
	var publisher report.OutcomePublisher
	if cfg.Notify.NATSURL != "" {
		natsPub, err := report.NewNATSPublisher(cfg.Notify.NATSURL, cfg.Notify.NATSSubject)
		if err != nil {
			slog.Warn("NATS publishing disabled", logfields.Error(err))
		} else {
			publisher = natsPub
			defer natsPub.Close()
		}
	}

	coordinator, err := newCoordinator(root, cfg, bus)
	if err != nil {
		return err
	}

	reporter := report.NewReporter(report.Config{
		Bus:       bus,
		History:   store,
		Recorder:  recorder,
		Notifier:  notifier,
		Publisher: publisher,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = coordinator.Run(ctx)
	}()
	<-coordinator.Ready()

	// The initial refresh doubles as a generator availability check: a
	// missing generator is fatal at startup, a failing run is not.
	if !w.NoInitialRefresh {
		if _, err := coordinator.RefreshNow(ctx); err != nil {
			if classified, ok := ferrors.AsClassified(err); ok && classified.IsFatal() {
				return err
			}
			slog.Warn("Initial refresh failed; staying armed for changes", logfields.Error(err))
		}
	}

	session, err := watch.NewSession(watch.SessionConfig{
		Root:       root,
		Classifier: watch.NewClassifier(cfg.Watch.Filenames, cfg.Watch.Extensions),
		Dedup:      watch.NewDeduplicator(0),
		Trigger:    coordinator,
		Bus:        bus,
		Recorder:   recorder,
	})
	if err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		return err
	}

	if cfg.FullRefreshInterval > 0 {
		scheduler, err := watch.NewScheduler()
		if err != nil {
			return err
		}
		if err := scheduler.SchedulePeriodicRefresh(cfg.FullRefreshInterval, coordinator); err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			_ = scheduler.Stop()
		}()
	}

	slog.Info("Watching for build file changes",
		logfields.Workspace(root),
		logfields.Targets(cfg.Targets),
		slog.Duration("debounce", cfg.Debounce()))

	err = session.Run(ctx)
	wg.Wait()
	return err
}

// setupMetrics returns the active recorder and a shutdown func. An empty
// addr selects the no-op recorder.
func setupMetrics(addr string) (metrics.Recorder, func()) {
	if addr == "" {
		return metrics.NoopRecorder{}, func() {}
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	server := &http.Server{
		Addr:              addr,
		Handler:           metrics.HTTPHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("Serving Prometheus metrics", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics server stopped", logfields.Error(err))
		}
	}()

	return recorder, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
