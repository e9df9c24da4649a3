package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cleanOutputFlag string

// cleanCmd removes the analysis/compilation tables and the output root,
// for a guaranteed from-scratch run. It only needs output_root, so it
// reads the config file directly rather than going through config.Load,
// which also demands a root symbol and source roots that a clean has no
// use for.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output root, including cached analysis/compilation tables",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanOutputFlag, "output", "", "output root to remove (overrides config)")
}

func runClean(cmd *cobra.Command, args []string) error {
	outputRoot := cleanOutputFlag
	if outputRoot == "" {
		v := viper.New()
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
		}
		v.SetEnvPrefix("FCBUILD")
		v.AutomaticEnv()
		outputRoot = v.GetString("output_root")
	}
	if outputRoot == "" {
		return nil
	}
	return os.RemoveAll(outputRoot)
}
