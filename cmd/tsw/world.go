package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/tsw"
	"github.com/aretw0/tsw/internal/cli"
	"github.com/aretw0/tsw/internal/presentation/tui"
	"github.com/aretw0/tsw/pkg/domain"
)

var worldCmd = &cobra.Command{
	Use:     "world",
	Aliases: []string{"worlds"},
	Short:   "Define and list worlds",
}

var worldDefineCmd = &cobra.Command{
	Use:   "define",
	Short: "Define a world an instance can create and serve",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		spec := tsw.WorldSpec{}
		spec.Name, _ = f.GetString("name")
		spec.Size, _ = f.GetString("size")
		spec.Difficulty, _ = f.GetString("difficulty")
		spec.Seed, _ = f.GetString("seed")

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			spec.HostID = app.Config.Host
			w, err := app.Controller.DefineWorld(ctx, spec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), w.ID)
			return nil
		})
	},
}

var worldListCmd = &cobra.Command{
	Use:   "list",
	Short: "List worlds",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			worlds, err := app.Store.ListWorlds(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), worlds)
			}
			tui.NewPrinter(cmd.OutOrStdout()).Worlds(worlds)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(worldCmd)
	worldCmd.AddCommand(worldDefineCmd, worldListCmd)

	f := worldDefineCmd.Flags()
	f.String("name", "", "World name")
	f.String("size", domain.WorldSizeMedium, "Small, Medium or Large")
	f.String("difficulty", domain.DifficultyClassic, "Classic, Expert, Master or Journey")
	f.String("seed", "", "World seed (random when empty)")
	_ = worldDefineCmd.MarkFlagRequired("name")

	worldListCmd.Flags().Bool("json", false, "Print JSON")
}
