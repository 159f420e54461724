// Package main implements the taskqueen CLI: the composition root that
// wires a Blueprint Manager, Task-Tree Manager, lock manager, regression
// gate, and Queen Coordinator into a single-process TDD task run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/taskqueen/config"
)

// Build information (set via ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		projectPath string
	)

	rootCmd := &cobra.Command{
		Use:     "taskqueen",
		Short:   "Agent-based TDD task orchestrator",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "project root (default: auto-detect from git)")

	loadApp := func() (*App, error) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		cfg, err := loadConfig(logger, configPath, projectPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return NewApp(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil))), nil
	}

	rootCmd.AddCommand(newBlueprintCmd(loadApp))
	rootCmd.AddCommand(newRunCmd(loadApp))
	rootCmd.AddCommand(newTimelineCmd(loadApp))
	rootCmd.AddCommand(newRollbackCmd(loadApp))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(logger *slog.Logger, configPath, projectOverride string) (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		loaded, err := config.NewLoader(logger).Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if projectOverride != "" {
		cfg.Repo.Path = projectOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
