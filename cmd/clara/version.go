package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/clara"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of clara",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clara version %s\n", strings.TrimSpace(clara.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
