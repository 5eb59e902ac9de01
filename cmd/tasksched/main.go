// Package main is the entry point for the tasksched CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/tasksched/internal/config"
	"github.com/flemzord/tasksched/internal/prompt"
	"github.com/flemzord/tasksched/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd(nil).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// options carries the persistent flags and test seams.
type options struct {
	configPath string
	tasksPath  string
	logLevel   string

	// prompter replaces the interactive huh form when set.
	prompter prompt.Prompter
}

func (o *options) params(logOutput io.Writer) app.Params {
	return app.Params{
		ConfigPath: o.configPath,
		TasksPath:  o.tasksPath,
		LogLevel:   o.logLevel,
		Version:    version,
		Commit:     commit,
		Date:       date,
		LogOutput:  logOutput,
	}
}

func rootCmd(opts *options) *cobra.Command {
	if opts == nil {
		opts = &options{}
	}
	root := &cobra.Command{
		Use:           "tasksched",
		Short:         "Run commands on daily and weekly schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	pf.StringVarP(&opts.tasksPath, "tasks", "t", "", "Path to the task store (overrides store.path)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		versionCmd(),
		runCmd(opts),
		listCmd(opts),
		addCmd(opts),
		removeCmd(opts),
		testCmd(opts),
		configCmd(opts),
		serviceCmd(opts),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tasksched %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		Long: "Run the scheduler in the foreground. Tasks are checked every poll interval;\n" +
			"SIGHUP or an edit to the task store reloads them, SIGINT/SIGTERM stop.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := opts.params(cmd.ErrOrStderr())
			if !app.Interactive() {
				return app.RunService(params)
			}
			return app.Run(cmd.Context(), params)
		},
	}
}

func configCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path != "" {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("config: %w", err)
				}
			}
			path = config.ResolvePath(path)

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (%s)\n  %s\n", path, app.Describe(cfg))
			return nil
		},
	})
	return cmd
}
