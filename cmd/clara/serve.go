package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/clara/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes the workflow service as a JSON API over HTTP, with a server-sent
event stream per workflow, a health check and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		app, cfg, err := openApp(cmd, map[string]string{
			"http.addr":    "addr",
			"http.metrics": "metrics",
		})
		if err != nil {
			return err
		}
		defer app.Close()

		return cli.Serve(ctx, app, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("metrics", true, "Expose /metrics")
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	cmd.SetContext(ctx)
	return ctx, stop
}
