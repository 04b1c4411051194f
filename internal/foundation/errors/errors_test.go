package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderProducesClassifiedError(t *testing.T) {
	err := ConfigError("no generator found").
		WithContext("workspace", "/tmp/ws").
		Build()

	require.Equal(t, CategoryConfig, err.Category())
	require.Equal(t, SeverityFatal, err.Severity())
	require.True(t, err.IsFatal())
	ws, ok := err.Context().GetString("workspace")
	require.True(t, ok)
	require.Equal(t, "/tmp/ws", ws)
	require.Contains(t, err.Error(), "no generator found")
	require.Contains(t, err.Error(), "config")
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := WrapError(cause, CategoryGenerator, "bazel run failed").Retryable().Build()

	require.ErrorIs(t, errors.Unwrap(err), cause)
	require.Contains(t, err.Error(), "exit status 1")
	require.True(t, err.CanRetry())

	var classified *ClassifiedError
	require.True(t, errors.As(err, &classified))
	require.Equal(t, CategoryGenerator, classified.Category())
}

func TestCategoryHelpers(t *testing.T) {
	genErr := GeneratorError("refresh failed").Build()
	require.True(t, HasCategory(genErr, CategoryGenerator))
	require.False(t, HasCategory(genErr, CategoryConfig))
	require.Equal(t, CategoryGenerator, GetCategory(genErr))

	plain := fmt.Errorf("plain")
	require.Equal(t, CategoryInternal, GetCategory(plain))
	require.Equal(t, SeverityError, GetSeverity(plain))
}

func TestDefaultSeverityAndRetry(t *testing.T) {
	cases := []struct {
		name     string
		builder  *ErrorBuilder
		severity ErrorSeverity
		retry    RetryStrategy
	}{
		{"config", ConfigError("x"), SeverityFatal, RetryUserAction},
		{"generator", GeneratorError("x"), SeverityError, RetryNextChange},
		{"probe", ProbeError("x"), SeverityWarning, RetryNextChange},
		{"watch", WatchError("x"), SeverityFatal, RetryNever},
		{"history", HistoryError("x"), SeverityWarning, RetryNever},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.builder.Build()
			require.Equal(t, tc.severity, err.Severity())
			require.Equal(t, tc.retry, err.RetryStrategy())
		})
	}
}

func TestCLIAdapterExitCodes(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)
	require.Equal(t, 0, adapter.ExitCodeFor(nil))
	require.Equal(t, 1, adapter.ExitCodeFor(ConfigError("no workspace").Build()))
	require.Equal(t, 1, adapter.ExitCodeFor(fmt.Errorf("plain")))
}

func TestCLIAdapterFormatting(t *testing.T) {
	err := GeneratorError("refresh failed").Build()

	terse := NewCLIErrorAdapter(false, nil).FormatError(err)
	require.Equal(t, "Error: refresh failed", terse)

	verbose := NewCLIErrorAdapter(true, nil).FormatError(err)
	require.Contains(t, verbose, "generator")
	require.Contains(t, verbose, "refresh failed")
}
