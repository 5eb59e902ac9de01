package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/tasksched/internal/prompt"
	"github.com/flemzord/tasksched/internal/task"
	"github.com/flemzord/tasksched/pkg/app"
)

// withEnv runs fn against a freshly set up Env.
func withEnv(cmd *cobra.Command, opts *options, fn func(env *app.Env) error) error {
	env, err := app.Setup(opts.params(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()
	return fn(env)
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, opts, func(env *app.Env) error {
				records, errs := env.Store.Load(cmd.Context())
				for _, err := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No tasks.")
					return nil
				}

				now := time.Now()
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tNEXT RUN\tCOMMAND")
				for _, rec := range records {
					schedule, next := "invalid", "-"
					if rule, err := rec.Rule(); err == nil {
						schedule = rule.String()
						next = rule.Next(now).Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Name, schedule, next, rec.CommandLine())
				}
				return tw.Flush()
			})
		},
	}
}

func addCmd(opts *options) *cobra.Command {
	var in task.Input
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task (interactive unless --id, --command and --schedule are given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, opts, func(env *app.Env) error {
				ctx := cmd.Context()
				if in.ID == "" || in.Command == "" || in.Schedule == "" {
					asked, err := promptFor(cmd, opts, env).Ask(ctx, in)
					if err != nil {
						return err
					}
					in = asked
				}

				rec, err := task.Build(in)
				if err != nil {
					return err
				}
				if err := env.Store.Add(ctx, rec); err != nil {
					if errors.Is(err, task.ErrDuplicateID) {
						return fmt.Errorf("a task with id %q already exists", rec.ID)
					}
					return err
				}
				rule, _ := rec.Rule()
				fmt.Fprintf(cmd.OutOrStdout(), "Task %q added: %s, %s\n", rec.ID, rec.CommandLine(), rule)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "Unique task id")
	f.StringVar(&in.Name, "name", "", "Display name (defaults to the id)")
	f.StringVar(&in.Command, "command", "", "Executable to run")
	f.StringVar(&in.Args, "args", "", "Arguments, separated by spaces")
	f.StringVar(&in.Schedule, "schedule", "", "Time of day, HH:MM")
	f.StringVar(&in.Recurrence, "recurrence", "", "daily or weekly (default daily)")
	f.StringVar(&in.Weekday, "weekday", "", "Day for weekly tasks (default monday)")
	return cmd
}

func promptFor(cmd *cobra.Command, opts *options, env *app.Env) prompt.Prompter {
	if opts.prompter != nil {
		return opts.prompter
	}
	return &prompt.Form{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Exists: func(id string) bool {
			_, err := env.Store.Get(cmd.Context(), id)
			return err == nil
		},
	}
}

func removeCmd(opts *options) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, opts, func(env *app.Env) error {
				if err := env.Store.Remove(cmd.Context(), id); err != nil {
					if errors.Is(err, task.ErrNotFound) {
						return fmt.Errorf("task %q not found", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %q removed\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func testCmd(opts *options) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a task once, now, ignoring its schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, opts, func(env *app.Env) error {
				rec, err := env.Store.Get(cmd.Context(), id)
				if err != nil {
					if errors.Is(err, task.ErrNotFound) {
						return fmt.Errorf("task %q not found", id)
					}
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running %q: %s\n", rec.ID, rec.CommandLine())
				res := env.NewExecutor().Execute(ctx, rec)
				if res.Output != "" {
					fmt.Fprint(out, res.Output)
					if res.Output[len(res.Output)-1] != '\n' {
						fmt.Fprintln(out)
					}
				}
				if !res.Success {
					return fmt.Errorf("task %q failed after %s: %s", rec.ID, res.Duration.Round(time.Millisecond), res.ErrorDetail)
				}
				fmt.Fprintf(out, "Task %q succeeded in %s\n", rec.ID, res.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
