package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bazelide/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestApplyOverrides(t *testing.T) {
	cfg := &config.Config{Targets: "//...", Output: "compile_commands.json", DebounceMS: 2000}

	// Unset flags leave the config alone.
	applyOverrides(cfg, "", "", -1)
	require.Equal(t, "//...", cfg.Targets)
	require.Equal(t, "compile_commands.json", cfg.Output)
	require.Equal(t, 2000, cfg.DebounceMS)

	applyOverrides(cfg, "//src/...", "out/cc.json", 500)
	require.Equal(t, "//src/...", cfg.Targets)
	require.Equal(t, "out/cc.json", cfg.Output)
	require.Equal(t, 500, cfg.DebounceMS)

	// An explicit zero debounce is a real value, not "unset".
	applyOverrides(cfg, "", "", 0)
	require.Equal(t, 0, cfg.DebounceMS)
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, filepath.Join("/ws", "cc.json"), resolvePath("/ws", "cc.json"))
	require.Equal(t, "/elsewhere/cc.json", resolvePath("/ws", "/elsewhere/cc.json"))
}

func TestCompileCommandCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compile_commands.json")

	writeFile(t, path, `[{"file":"a.cc"},{"file":"b.cc"}]`)
	count, err := compileCommandCount(path)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	writeFile(t, path, `not json`)
	_, err = compileCommandCount(path)
	require.Error(t, err)
}
