//go:build !windows

package refresh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	runner := NewExecRunner()

	result, err := runner.Run(t.Context(), t.TempDir(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "out\n", string(result.Stdout))
	require.Equal(t, "err\n", string(result.Stderr))
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	runner := NewExecRunner()

	result, err := runner.Run(t.Context(), t.TempDir(), "sh", "-c", "exit 3")
	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	runner := NewExecRunner()

	_, err := runner.Run(t.Context(), t.TempDir(), "definitely-not-a-binary-bazelide")
	require.Error(t, err)
}
