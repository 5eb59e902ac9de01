package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/tasksched/pkg/app"
)

func serviceCmd(opts *options) *cobra.Command {
	actions := append(append([]string{}, app.ServiceActions...), "status")
	return &cobra.Command{
		Use:       "service <" + strings.Join(actions, "|") + ">",
		Short:     "Manage tasksched as an OS service",
		Long:      "Install or control a background service that runs \"tasksched run\" with the current --config and --tasks flags.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: actions,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.NewService(opts.params(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			action := args[0]
			if action == "status" {
				st, err := app.ServiceStatus(s)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", app.ServiceName, st)
				return nil
			}
			if err := app.ControlService(s, action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s done\n", app.ServiceName, action)
			return nil
		},
	}
}
