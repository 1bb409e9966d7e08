package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/tsw"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tsw",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tsw version %s\n", strings.TrimSpace(tsw.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
