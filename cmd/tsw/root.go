package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/tsw/internal/cli"
	"github.com/aretw0/tsw/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tsw",
	Short: "tsw supervises interactive game server instances",
	Long: `tsw drives game servers through their text menus inside tmux sessions,
infers their state from the output they write, and dispatches requested actions
one at a time per host.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./tsw.yaml)")
	flags.String("database", "", "SQLite database path (default <data_dir>/tsw.db)")
	flags.String("data-dir", "", "Directory holding the database and instance files")
	flags.String("host", "", "Host ID this process acts for (default hostname)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	_ = viper.BindPFlag("database", flags.Lookup("database"))
	_ = viper.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("host", flags.Lookup("host"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(viper.GetViper(), path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	app, err := cli.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to close application", "err", err)
		}
	}()
	return fn(cmd.Context(), app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
