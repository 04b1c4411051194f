package refresh

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandResult carries the observable outcome of one external process run.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes an external command in a working directory and captures
// its output streams. It returns an error only when the process could not be
// run at all (spawn failure); a non-zero exit is reported via ExitCode.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (CommandResult, error)
}

type execRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir string, name string, args ...string) (CommandResult, error) {
	// #nosec G204 -- name and args come from the action's fixed command table, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}
