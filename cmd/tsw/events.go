package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/tsw/internal/cli"
	"github.com/aretw0/tsw/internal/presentation/tui"
)

var eventsCmd = &cobra.Command{
	Use:   "events <instance-id>",
	Short: "Print the most recent events of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if _, err := app.Instances.Get(ctx, args[0]); err != nil {
				return err
			}
			events, err := app.Instances.Events(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), events)
			}
			tui.NewPrinter(cmd.OutOrStdout()).Events(events)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntP("limit", "n", 50, "Number of events, 0 for all")
	eventsCmd.Flags().Bool("json", false, "Print JSON")
}
