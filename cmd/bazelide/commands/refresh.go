package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/bazelide/internal/config"
	"git.home.luguber.info/inful/bazelide/internal/history"
	"git.home.luguber.info/inful/bazelide/internal/logfields"
	"git.home.luguber.info/inful/bazelide/internal/refresh"
)

// RefreshCmd implements the 'refresh' command: one regeneration, no watch.
type RefreshCmd struct {
	Targets string `short:"t" help:"Bazel target selector" placeholder:"SEL"`
	Output  string `short:"o" help:"Generated artifact path, relative to the workspace root" placeholder:"PATH"`
}

func (r *RefreshCmd) Run(cli *CLI) error {
	root, cfg, err := loadWorkspaceConfig(cli)
	if err != nil {
		return err
	}
	applyOverrides(cfg, r.Targets, r.Output, -1)

	coordinator, err := newCoordinator(root, cfg, nil)
	if err != nil {
		return err
	}

	outcome, runErr := coordinator.RefreshNow(context.Background())
	recordOutcome(root, cfg, outcome)
	if runErr != nil {
		return runErr
	}

	fmt.Printf("Refreshed %s via %s generator in %s (artifact %s)\n",
		cfg.Output, outcome.Generator, outcome.Elapsed.Round(time.Millisecond), outcome.Artifact)
	return nil
}

// recordOutcome appends the run to the history store. History failures never
// fail the command.
func recordOutcome(root string, cfg *config.Config, outcome refresh.Outcome) {
	if cfg.History.Disabled || outcome.RunID == "" {
		return
	}

	store, err := history.Open(resolvePath(root, cfg.History.Path))
	if err != nil {
		slog.Warn("Could not open history store", logfields.Error(err))
		return
	}
	defer func() {
		_ = store.Close()
	}()

	entry := history.Entry{
		RunID:       outcome.RunID,
		Targets:     cfg.Targets,
		Generator:   string(outcome.Generator),
		Cause:       outcome.Cause,
		Succeeded:   outcome.Succeeded,
		Artifact:    string(outcome.Artifact),
		ElapsedMS:   outcome.Elapsed.Milliseconds(),
		ErrorDetail: outcome.ErrorDetail,
		FinishedAt:  outcome.FinishedAt,
	}
	if err := store.Record(context.Background(), entry); err != nil {
		slog.Warn("Could not record refresh history", logfields.Error(err))
	}
}
