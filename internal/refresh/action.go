package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

const (
	bazelBinary = "bazel"

	// PrimaryGeneratorTarget is the hedron compile-commands extractor.
	PrimaryGeneratorTarget = "@hedron_compile_commands//:refresh_all"
	// FallbackGeneratorTarget is a workspace-local generator rule.
	FallbackGeneratorTarget = "//:refresh_compile_commands"

	// stderrTailLines bounds the diagnostic excerpt attached to run failures.
	stderrTailLines = 5
)

// GeneratorKind identifies which generator integration a run resolved to.
type GeneratorKind string

const (
	GeneratorPrimary  GeneratorKind = "primary"
	GeneratorFallback GeneratorKind = "fallback"
	GeneratorNone     GeneratorKind = "none"
)

// RunReport describes one regeneration attempt, successful or not.
type RunReport struct {
	Generator GeneratorKind
	Elapsed   time.Duration
}

// Action invokes the external compile_commands generator.
type Action interface {
	// Regenerate resolves an available generator and runs it with the given
	// target selector. The report is always non-nil; err carries a
	// ConfigError when no generator is available and a GeneratorError when
	// the run itself fails.
	Regenerate(ctx context.Context, targets string) (*RunReport, error)

	// ResolveGenerator probes for an available generator without running it.
	ResolveGenerator(ctx context.Context) GeneratorKind
}

// BazelAction runs the generator through the bazel binary in the workspace
// root. Probes are re-evaluated on every call; a stale cached choice would
// go unnoticed until a run fails, so the probe cost is accepted.
type BazelAction struct {
	root   string
	runner Runner
}

// NewBazelAction creates an Action for the given workspace root.
func NewBazelAction(root string, runner Runner) *BazelAction {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &BazelAction{root: root, runner: runner}
}

// ProbePrimary reports whether the hedron extractor is installed.
func (a *BazelAction) ProbePrimary(ctx context.Context) bool {
	return a.probe(ctx, PrimaryGeneratorTarget)
}

// ProbeFallback reports whether a local generator target is defined.
func (a *BazelAction) ProbeFallback(ctx context.Context) bool {
	return a.probe(ctx, FallbackGeneratorTarget)
}

func (a *BazelAction) ResolveGenerator(ctx context.Context) GeneratorKind {
	if a.ProbePrimary(ctx) {
		return GeneratorPrimary
	}
	if a.ProbeFallback(ctx) {
		return GeneratorFallback
	}
	return GeneratorNone
}

func (a *BazelAction) Regenerate(ctx context.Context, targets string) (*RunReport, error) {
	report := &RunReport{Generator: GeneratorNone}

	generator := a.ResolveGenerator(ctx)
	if generator == GeneratorNone {
		return report, ferrors.ConfigError("no compile_commands generator found").
			WithContext("hint", "add hedron_compile_commands to your MODULE.bazel").
			WithContext("workspace", a.root).
			Build()
	}
	report.Generator = generator

	target := PrimaryGeneratorTarget
	if generator == GeneratorFallback {
		target = FallbackGeneratorTarget
	}

	start := time.Now()
	result, err := a.runner.Run(ctx, a.root, bazelBinary, "run", target, "--", targets)
	report.Elapsed = time.Since(start)

	if err != nil {
		return report, ferrors.WrapError(err, ferrors.CategoryGenerator, "failed to invoke generator").
			Retryable().
			WithContext("generator", string(generator)).
			Build()
	}
	if result.ExitCode != 0 {
		return report, ferrors.GeneratorError(fmt.Sprintf("generator exited with status %d", result.ExitCode)).
			WithContext("generator", string(generator)).
			WithContext("stderr_tail", tailLines(result.Stderr, stderrTailLines)).
			Build()
	}
	return report, nil
}

// probe runs a cheap `bazel query` for the target. A probe that cannot even
// spawn counts as "integration unavailable" rather than an error.
func (a *BazelAction) probe(ctx context.Context, target string) bool {
	result, err := a.runner.Run(ctx, a.root, bazelBinary, "query", target)
	if err != nil {
		slog.Debug("Generator probe failed to run", "target", target, "error", err)
		return false
	}
	return result.ExitCode == 0
}

// tailLines returns the last n non-empty-trimmed lines of raw output.
func tailLines(raw []byte, n int) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
