// Package cmd wires the engine's phases onto a cobra command tree:
// build, clean, version. Flag registration -> logger init -> component
// construction -> run.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fcbuild",
	Short: "Dependency-aware build orchestrator for Fortran/C scientific codebases",
	Long: `fcbuild extracts the subset of a source tree reachable from a chosen
root symbol, compiles it in dependency order, and caches per-file analysis
and compilation results so unchanged files are never reprocessed.`,
	Version:       buildVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; the returned error is printed by main,
// which exits 1 on any failure.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a TOML/YAML config file")
	rootCmd.PersistentFlags().Int("verbosity", 0, "log verbosity: -1 off, 0 default, up to 2")
	rootCmd.PersistentFlags().String("log-file", "", "log file path (default stderr)")

	_ = viper.BindPFlag("verbosity", rootCmd.PersistentFlags().Lookup("verbosity"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
}
