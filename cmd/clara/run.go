package main

import (
	"errors"
	"os"

	"github.com/aretw0/clara/internal/cli"
	"github.com/aretw0/clara/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// requestFlags maps request fields to the flags that set them.
var requestFlags = map[string]string{
	"customer_name": "name",
	"email":         "email",
	"query":         "query",
	"priority":      "priority",
	"ticket_id":     "ticket",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a support workflow",
	Long: `Starts a workflow for a new support request, or picks up a suspended one with
--id. When the workflow stops at ASK the question is shown and the answer is
read from Stdin. Interrupting the prompt leaves the workflow waiting; run
again with the same --id to continue.

The request can be given as JSON with --request, field by field with --name,
--email, --query, --priority and --ticket, or both (flags win).`,
	Example: `  clara run --name "Ada Lovelace" --email ada@example.com --query "My card was declined" --priority high
  clara run --id req-42
  echo '"Visa ending 4242"' | clara run --id req-42 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := openApp(cmd, map[string]string{
			"providers.score":      "score",
			"engine.halt_degraded": "halt-degraded",
		})
		if err != nil {
			return err
		}
		defer app.Close()

		raw, _ := cmd.Flags().GetString("request")
		fields, err := cli.ParseFields(raw)
		if err != nil {
			return err
		}
		for field, name := range requestFlags {
			if !cmd.Flags().Changed(name) {
				continue
			}
			if fields == nil {
				fields = map[string]any{}
			}
			fields[field], _ = cmd.Flags().GetString(name)
		}

		opts := cli.RunOptions{
			Fields:      fields,
			Interactive: tui.IsTerminal(os.Stdout),
			In:          cmd.InOrStdin(),
			Out:         cmd.OutOrStdout(),
		}
		opts.RequestID, _ = cmd.Flags().GetString("id")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Confirm, _ = cmd.Flags().GetBool("confirm")
		opts.MinAnswer, _ = cmd.Flags().GetInt("min-answer")
		opts.InputTimeout, _ = cmd.Flags().GetDuration("timeout")
		opts.Debug, _ = cmd.Flags().GetBool("debug")

		if opts.RequestID == "" && fields == nil {
			return errors.New("nothing to run: give a request or the --id of a suspended workflow")
		}

		_, err = cli.Run(cmd.Context(), app, opts)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.String("id", "", "Request ID (resumes the workflow when it exists)")
	flags.String("request", "", "Request fields as a JSON object")
	flags.String("name", "", "Customer name")
	flags.String("email", "", "Customer email")
	flags.String("query", "", "Customer query")
	flags.String("priority", "", "Priority: low, medium, high or urgent")
	flags.String("ticket", "", "Ticket ID")
	flags.Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	flags.Bool("confirm", false, "Ask for confirmation before submitting an answer")
	flags.Int("min-answer", 0, "Minimum answer length")
	flags.Duration("timeout", 0, "Leave the workflow waiting when no answer arrives in time")
	flags.Int("score", 0, "Score given by the simulated COMMON provider (demo)")
	flags.Bool("halt-degraded", false, "Fail instead of continuing after a failed non-scoring ability")
}
