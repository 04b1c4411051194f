package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/bazelide/internal/history"
	"git.home.luguber.info/inful/bazelide/internal/refresh"
	"git.home.luguber.info/inful/bazelide/internal/workspace"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	Recent int `help:"Number of recent refreshes to show" default:"3"`
}

func (s *StatusCmd) Run(cli *CLI) error {
	root, cfg, err := loadWorkspaceConfig(cli)
	if err != nil {
		return err
	}

	fmt.Printf("Workspace:  %s\n", root)
	if commit, ok := workspace.HeadCommit(root); ok {
		fmt.Printf("HEAD:       %s\n", commit)
	}
	fmt.Printf("Targets:    %s\n", cfg.Targets)

	printArtifact(root, cfg.Output)

	ctx := context.Background()
	action := refresh.NewBazelAction(root, nil)
	fmt.Printf("Generator:  hedron=%s local=%s\n",
		availability(action.ProbePrimary(ctx)), availability(action.ProbeFallback(ctx)))

	if !cfg.History.Disabled {
		printHistory(resolvePath(root, cfg.History.Path), s.Recent)
	}
	return nil
}

func printArtifact(root, output string) {
	path := resolvePath(root, output)
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Artifact:   %s (missing)\n", output)
		return
	}

	age := time.Since(info.ModTime()).Round(time.Second)
	sizeKB := float64(info.Size()) / 1024
	if count, err := compileCommandCount(path); err == nil {
		fmt.Printf("Artifact:   %s (%d entries, %.1f KB, updated %s ago)\n", output, count, sizeKB, age)
	} else {
		fmt.Printf("Artifact:   %s (%.1f KB, updated %s ago)\n", output, sizeKB, age)
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

// compileCommandCount counts the entries of the compilation database. The
// format belongs to the generator; only the top-level array length is used.
func compileCommandCount(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func printHistory(dbPath string, limit int) {
	store, err := history.Open(dbPath)
	if err != nil {
		return
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.Recent(context.Background(), limit)
	if err != nil || len(entries) == 0 {
		return
	}

	fmt.Println("Recent refreshes:")
	for _, e := range entries {
		result := "ok"
		if !e.Succeeded {
			result = "failed"
		}
		fmt.Printf("  %s  %-6s  %-8s  %6dms  artifact %s\n",
			e.FinishedAt.Format("2006-01-02 15:04:05"), result, e.Generator, e.ElapsedMS, e.Artifact)
	}
}
