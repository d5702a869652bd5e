package main

import (
	"github.com/aretw0/clara/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Manage stored workflows",
	Long:    `List, inspect, and remove workflows kept in the configured state store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ListSessions(cmd.Context(), app, cmd.OutOrStdout())
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <request-id>",
	Short: "Inspect the state of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.InspectSession(cmd.Context(), app, args[0], cmd.OutOrStdout())
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <request-id>...",
	Short: "Remove one or more workflows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RemoveSessions(cmd.Context(), app, args, cmd.OutOrStdout())
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <request-id>",
	Short: "Print the audit trail of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()
		asJSON, _ := cmd.Flags().GetBool("json")
		return cli.PrintAudit(cmd.Context(), app, args[0], asJSON, cmd.OutOrStdout())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <request-id>",
	Short: "Follow a workflow as it runs",
	Long: `Polls the state store and prints audit entries as another process appends
them. Stops when the workflow completes, fails or escalates, or when it waits
at ASK unless --follow is set. Use a shared store (file or redis).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		app, _, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		follow, _ := cmd.Flags().GetBool("follow")
		interval, _ := cmd.Flags().GetDuration("interval")
		_, err = cli.Watch(ctx, app, args[0], interval, follow, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().Bool("json", false, "Print entries as JSON Lines")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolP("follow", "f", false, "Keep watching while the workflow waits for an answer")
	watchCmd.Flags().Duration("interval", cli.DefaultWatchInterval, "Polling interval")
}
