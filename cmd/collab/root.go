package main

import (
	"fmt"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/executor"
	"codecollab/backend/internal/logging"
	"codecollab/backend/internal/workspace"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what the subcommands share; built once per invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	exec   *executor.Service
}

func newRootCmd() *cobra.Command {
	var verbose bool
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "collab",
		Short:        "Run and share code with the codecollab execution service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := logging.New(level)
			if err != nil {
				return err
			}
			workspaces, err := workspace.NewManager(cfg.WorkspaceDir, logger)
			if err != nil {
				return fmt.Errorf("workspace: %w", err)
			}

			a.cfg = cfg
			a.logger = logger
			a.exec = executor.NewService(workspaces, executor.Options{
				Timeout:       cfg.ExecTimeout,
				MaxOutput:     cfg.MaxOutputBytes,
				MaxConcurrent: cfg.MaxConcurrentExecutions,
			}, logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log execution details to stderr")

	rootCmd.AddCommand(
		newRunCmd(a),
		newAnalyzeCmd(a),
		newLanguagesCmd(a),
		newSnippetCmd(a),
	)
	return rootCmd
}
