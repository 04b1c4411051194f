// Package commands implements the bazelide command surface: watch, refresh
// and status.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bazelide/internal/config"
	"git.home.luguber.info/inful/bazelide/internal/events"
	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
	"git.home.luguber.info/inful/bazelide/internal/refresh"
	"git.home.luguber.info/inful/bazelide/internal/workspace"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// CLI is the root kong command tree.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path, relative to the workspace root" default:".bazelide.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Show version and exit"`

	Watch   WatchCmd   `cmd:"" help:"Watch build files and refresh the compilation database after a quiet period"`
	Refresh RefreshCmd `cmd:"" help:"Run a single refresh and exit"`
	Status  StatusCmd  `cmd:"" help:"Show workspace, artifact and recent refresh status"`
}

// Execute parses arguments and runs the selected command, returning the
// process exit code.
func Execute() int {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bazelide"),
		kong.Description("Debounced compile_commands.json refresh for Bazel workspaces."),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)

	setupLogging(cli.Verbose)

	adapter := ferrors.NewCLIErrorAdapter(cli.Verbose, nil)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		return adapter.ExitCodeFor(err)
	}
	return 0
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// loadWorkspaceConfig locates the workspace root and loads the configuration
// file relative to it.
func loadWorkspaceConfig(cli *CLI) (string, *config.Config, error) {
	root, err := workspace.FindRootFromCwd()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(resolvePath(root, cli.Config))
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// applyOverrides lets command flags win over the configuration file. Empty
// strings and a negative debounce mean "flag not provided".
func applyOverrides(cfg *config.Config, targets, output string, debounceMS int) {
	if targets != "" {
		cfg.Targets = targets
	}
	if output != "" {
		cfg.Output = output
	}
	if debounceMS >= 0 {
		cfg.DebounceMS = debounceMS
	}
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func newCoordinator(root string, cfg *config.Config, bus *events.Bus) (*refresh.Coordinator, error) {
	return refresh.NewCoordinator(refresh.Config{
		Debounce:   cfg.Debounce(),
		MaxDelay:   cfg.MaxDelay(),
		Targets:    cfg.Targets,
		OutputPath: resolvePath(root, cfg.Output),
		Action:     refresh.NewBazelAction(root, nil),
		Bus:        bus,
	})
}
