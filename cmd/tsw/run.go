package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/tsw/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor for this host",
	Long: `Runs the dispatch loop of this host until interrupted. The first Ctrl+C lets
the running action finish, a second one interrupts it. With redis.addr set the
supervisor also relays changes between processes and hosts; with metrics.addr
set it serves /healthz, /metrics and a read-only /instances API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, app *cli.App) error {
			return cli.RunDaemon(app, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("metrics-addr", "", "Listen address of the ops HTTP server, e.g. :9090")
	runCmd.Flags().String("redis-addr", "", "Redis address enabling the relay, notifier and lock")
	_ = viper.BindPFlag("metrics.addr", runCmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("redis.addr", runCmd.Flags().Lookup("redis-addr"))
}
