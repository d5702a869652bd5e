package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aretw0/clara/internal/cli"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts clara as an MCP server so AI agents can run and resume support
workflows as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		app, cfg, err := openApp(cmd, map[string]string{
			"mcp.transport": "transport",
			"mcp.addr":      "addr",
			"mcp.base_url":  "base-url",
		})
		if err != nil {
			return err
		}
		defer app.Close()

		// JSON-RPC owns Stdout.
		log.SetOutput(os.Stderr)
		return cli.ServeMCP(ctx, app, cfg)
	},
}

var mcpAbilitiesCmd = &cobra.Command{
	Use:   "abilities <atlas|common>",
	Short: "Serve a simulated ability provider over MCP",
	Long: `Publishes the simulated ATLAS or COMMON provider as an MCP server, one tool
per ability. Point an engine at it with --atlas or --common, for example
--common "clara mcp abilities common" (stdio) or --common http://host:8090/mcp.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"atlas", "common"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := domain.Provider(strings.ToUpper(args[0]))
		if kind != domain.ProviderAtlas && kind != domain.ProviderCommon {
			return fmt.Errorf("unknown provider %q: want atlas or common", args[0])
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		cfg, err := loadConfig(cmd, map[string]string{"providers.score": "score"})
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")

		log.SetOutput(os.Stderr)
		return cli.ServeAbilities(ctx, kind, cfg, addr)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpAbilitiesCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "http://localhost:8081", "Public base URL of the SSE server")

	mcpAbilitiesCmd.Flags().String("addr", "", "Serve streamable HTTP on this address instead of stdio")
	mcpAbilitiesCmd.Flags().Int("score", 0, "Score given by the simulated COMMON provider")
}
