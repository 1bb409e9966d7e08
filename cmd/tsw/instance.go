package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/tsw"
	"github.com/aretw0/tsw/internal/cli"
	"github.com/aretw0/tsw/internal/presentation/tui"
	"github.com/aretw0/tsw/pkg/domain"
)

var instanceCmd = &cobra.Command{
	Use:     "instance",
	Aliases: []string{"instances", "i"},
	Short:   "Define, inspect and request actions on instances",
}

var instanceDefineCmd = &cobra.Command{
	Use:   "define",
	Short: "Define a new instance on this host, with SET_UP pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		spec := tsw.InstanceSpec{}
		spec.Name, _ = f.GetString("name")
		spec.Version, _ = f.GetString("version")
		spec.MaxPlayers, _ = f.GetInt("max-players")
		spec.Port, _ = f.GetInt("port")
		spec.AutomaticallyForwardPort, _ = f.GetBool("forward-port")
		spec.Password, _ = f.GetString("password")
		spec.WorldID, _ = f.GetString("world")
		spec.Mods, _ = f.GetStringSlice("mod")

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			spec.HostID = app.Config.Host
			inst, err := app.Controller.Define(ctx, spec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), inst.ID)
			return nil
		})
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances of this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			var list []*domain.Instance
			var err error
			if all {
				list, err = app.Instances.List(ctx)
			} else {
				list, err = app.Instances.ListByHost(ctx, app.Config.Host)
			}
			if err != nil {
				return err
			}
			if asJSON {
				public := make([]*domain.Instance, 0, len(list))
				for _, inst := range list {
					public = append(public, inst.Public())
				}
				return printJSON(cmd.OutOrStdout(), public)
			}
			tui.NewPrinter(cmd.OutOrStdout()).Instances(list)
			return nil
		})
	},
}

var instanceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			inst, err := app.Manager.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), inst.Public())
			}
			tui.NewPrinter(cmd.OutOrStdout()).Instance(inst)
			return nil
		})
	},
}

var instanceRequestCmd = &cobra.Command{
	Use:   "request <id> <action>",
	Short: "Request an action, applied by the supervisor of the instance's host",
	Long: `Records ACTION as the pending action of the instance. The action must be
applicable in the current state. Actions: ` + actionNames() + `.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := domain.ParseAction(strings.ToUpper(strings.ReplaceAll(args[1], "-", "_")))
		if err != nil {
			return err
		}
		var opts []tsw.RequestOption
		if mods, _ := cmd.Flags().GetStringSlice("mod"); len(mods) > 0 {
			opts = append(opts, tsw.WithMods(mods...))
		}
		if world, _ := cmd.Flags().GetString("world"); world != "" {
			opts = append(opts, tsw.WithWorld(world))
		}
		return request(cmd, args[0], action, opts...)
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Request removal of an instance and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, args[0], domain.ActionDelete)
	},
}

func request(cmd *cobra.Command, id string, action domain.Action, opts ...tsw.RequestOption) error {
	return withApp(cmd, func(ctx context.Context, app *cli.App) error {
		inst, err := app.Controller.Request(ctx, id, action, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), ">>> %s requested on %s (%s)\n", action, inst.ID, inst.State)
		return nil
	})
}

func actionNames() string {
	names := make([]string, 0, len(domain.AllActions()))
	for _, a := range domain.AllActions() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(instanceCmd)
	instanceCmd.AddCommand(instanceDefineCmd, instanceListCmd, instanceShowCmd, instanceRequestCmd, instanceDeleteCmd)

	f := instanceDefineCmd.Flags()
	f.String("name", "", "Instance name")
	f.String("version", "", "Server version to install")
	f.Int("max-players", 0, "Maximum number of players (default 8)")
	f.Int("port", 0, "Server port (default 7777)")
	f.Bool("forward-port", false, "Let the server forward its port automatically")
	f.String("password", "", "Server password")
	f.String("world", "", "ID of the world to serve")
	f.StringSlice("mod", nil, "Mod to enable, repeatable")
	_ = instanceDefineCmd.MarkFlagRequired("name")

	instanceListCmd.Flags().Bool("all", false, "List instances of every host")
	instanceListCmd.Flags().Bool("json", false, "Print JSON")
	instanceShowCmd.Flags().Bool("json", false, "Print JSON")

	instanceRequestCmd.Flags().StringSlice("mod", nil, "Mods to enable, for SET_LOADED_MODS")
	instanceRequestCmd.Flags().String("world", "", "World to create or serve, for CREATE_WORLD and RUN_SERVER")
}
