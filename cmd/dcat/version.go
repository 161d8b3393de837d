package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/types"
)

var (
	// Version is the current version of dcat (overridden by ldflags at build time)
	Version = types.Version
	// Build can be set via ldflags at compile time
	Build = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]string{
				"version": Version,
				"build":   Build,
			})
			return
		}
		fmt.Printf("dcat version %s (%s)\n", Version, Build)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
