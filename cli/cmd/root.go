// Package cmd assembles the crowdlate command line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbosity  int
)

var rootCmd = newRootCommand()

func Execute() error {
	return rootCmd.Execute()
}

func NewRootCommand() *cobra.Command {
	return newRootCommand()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crowdlate",
		Short: "Keep localized resource files and the translation database in sync",
		Long: `Crowdlate reconciles translation work between version control and the
translation database.

Use the CLI to:
  - run a full sync cycle for one project or all of them
  - export a locale's translation memory as TMX
  - inspect and repair the aggregated translation statistics`,
		Example: `  # Sync one project
  crowdlate sync demo

  # Sync everything continuously, serving Prometheus metrics
  crowdlate sync --interval 10m

  # Export the French translation memory
  crowdlate tmx fr --out fr.tmx`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CROWDLATE_CONFIG"),
		"Path to the YAML configuration file (defaults to $CROWDLATE_CONFIG)")
	cmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Log verbosity threshold")

	cmd.AddCommand(
		newSyncCommand(),
		newTMXCommand(),
		newStatsCommand(),
		newVersionCommand(),
	)
	return cmd
}
