package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)

	require.Equal(t, "//...", cfg.Targets)
	require.Equal(t, "compile_commands.json", cfg.Output)
	require.Equal(t, 2*time.Second, cfg.Debounce())
	require.Equal(t, time.Duration(0), cfg.MaxDelay())
	require.Contains(t, cfg.Watch.Filenames, "MODULE.bazel")
	require.Contains(t, cfg.Watch.Extensions, ".bzl")
	require.Equal(t, "bazelide.refresh", cfg.Notify.NATSSubject)
	require.Equal(t, ".bazelide/history.db", cfg.History.Path)
}

func TestLoadParsesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	raw := `
targets: //src/...
debounce_ms: 500
full_refresh: 30m
watch:
  extensions: [".bzl"]
notify:
  desktop: true
metrics:
  addr: ":9111"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "//src/...", cfg.Targets)
	require.Equal(t, 500*time.Millisecond, cfg.Debounce())
	require.Equal(t, 30*time.Minute, cfg.FullRefreshInterval)
	require.Equal(t, []string{".bzl"}, cfg.Watch.Extensions)
	// Unset sections still get defaults.
	require.Equal(t, "compile_commands.json", cfg.Output)
	require.Equal(t, DefaultWatchFilenames, cfg.Watch.Filenames)
	require.True(t, cfg.Notify.Desktop)
	require.Equal(t, ":9111", cfg.Metrics.Addr)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("BAZELIDE_TEST_TARGETS", "//lib/...")

	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("targets: ${BAZELIDE_TEST_TARGETS}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "//lib/...", cfg.Targets)
}

func TestLoadRejectsBadFullRefresh(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unparseable", "full_refresh: soon\n"},
		{"too short", "full_refresh: 5s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			require.NoError(t, os.WriteFile(path, []byte(tc.raw), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("targets: [unclosed\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
