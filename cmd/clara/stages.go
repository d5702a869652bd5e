package main

import (
	"fmt"

	"github.com/aretw0/clara/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Show the stage catalog",
	Long: `Lists the stages and the abilities each one calls. With --mermaid the
pipeline is printed as a Mermaid diagram (graph TD); add --id to highlight the
path a stored workflow has taken.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := openApp(cmd, map[string]string{"engine.catalog": "catalog"})
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		stages := app.Engine.Stages()

		if mermaid, _ := cmd.Flags().GetBool("mermaid"); mermaid {
			var overlay *graph.Overlay
			if id, _ := cmd.Flags().GetString("id"); id != "" {
				state, err := app.Engine.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("error loading workflow '%s': %w", id, err)
				}
				overlay = graph.OverlayFromState(state)
			}
			fmt.Fprint(out, graph.GenerateMermaid(stages, overlay))
			return nil
		}

		for i, s := range stages {
			fmt.Fprintf(out, "%2d. %-10s %-14s", i+1, s.ID, s.Type)
			for j, a := range s.Abilities {
				if j > 0 {
					fmt.Fprint(out, ", ")
				}
				fmt.Fprint(out, a)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.Flags().Bool("mermaid", false, "Print a Mermaid diagram")
	stagesCmd.Flags().String("id", "", "Highlight the path of this workflow (with --mermaid)")
	stagesCmd.Flags().String("catalog", "", "Stage catalog YAML file")
}
