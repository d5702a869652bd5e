package main

import (
	"fmt"
	"maps"
	"os"

	"github.com/aretw0/clara/internal/cli"
	"github.com/aretw0/clara/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clara",
	Short: "Clara runs customer support workflows",
	Long: `Clara drives support requests through an eleven stage pipeline, calling the
ATLAS and COMMON ability providers, asking the customer for missing details
and deciding whether the request can be resolved automatically or must be
escalated to a human agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: clara.yaml in . or .clara)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("store", config.BackendFile, "State store backend: memory, file or redis")
	flags.String("dir", ".clara/workflows", "Directory of the file store")
	flags.String("redis", "localhost:6379", "Address of the redis store")
	flags.String("atlas", config.Simulated, "ATLAS provider: 'simulated' or an MCP endpoint")
	flags.String("common", config.Simulated, "COMMON provider: 'simulated' or an MCP endpoint")
}

// persistentBindings maps configuration keys to the root flags.
var persistentBindings = map[string]string{
	"store.backend":    "store",
	"store.dir":        "dir",
	"store.redis.addr": "redis",
	"providers.atlas":  "atlas",
	"providers.common": "common",
}

// loadConfig reads the configuration with the persistent flags and the given
// command flags (key -> flag name) applied on top.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	all := maps.Clone(persistentBindings)
	maps.Copy(all, bindings)

	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags(), all); err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("config")
	return loader.Load(path)
}

// openApp loads the configuration and wires the engine it describes.
func openApp(cmd *cobra.Command, bindings map[string]string) (*cli.App, *config.Config, error) {
	cfg, err := loadConfig(cmd, bindings)
	if err != nil {
		return nil, nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := cli.NewLogger(cfg, debug)
	if err != nil {
		return nil, nil, err
	}
	app, err := cli.NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
