package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/tsw/internal/cli"
	"github.com/aretw0/tsw/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [instance-id]",
	Short: "Export the instance state machine as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of the instance states, the actions
that move between them and the output lines that are recognized. Given an
instance ID, its current state and pending action are highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(nil))
			return nil
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			inst, err := app.Instances.Get(ctx, args[0])
			if err != nil {
				return err
			}
			overlay := &graph.Overlay{Current: inst.State, Pending: inst.PendingAction}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(overlay))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
