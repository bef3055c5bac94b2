// Package commands implements the CLI shell (A3): a cobra command
// tree rooted at ingestd, taking the optional log-level positional
// argument from spec.md §6 and dispatching to the realtime, daily, and
// both subcommands that replace spec.md §6's mode-selector argument
// with idiomatic cobra subcommands, per SPEC_FULL.md §4.11.
//
// Grounded in the teacher's internal/commands/root.go for the
// persistent-flags-plus-subcommands shape.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	logLevelArg string
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "ingestd [level]",
	Short: "Market-data ingestion service",
	Long: `ingestd consumes an L1 trade-tick feed and an L2 market-depth feed
from a broker gateway, aggregates them into one-minute bars enriched with
derived technical features, and persists each bar to a time-series store
while publishing it to shared memory. A separate daily backfill driver
walks a configured symbol list day by day against the same gateway.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			logLevelArg = args[0]
		}
		return nil
	},
	RunE:    runRealtime,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "conf/ingestd.ini", "path to the INI configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
