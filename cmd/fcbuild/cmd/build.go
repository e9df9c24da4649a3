package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/latticeforge/fcbuild/internal/config"
	"github.com/latticeforge/fcbuild/internal/engine"
	"github.com/latticeforge/fcbuild/internal/observability"
)

var (
	buildSources    []string
	buildOutput     string
	buildRootSymbol string
	buildUnref      []string
	buildSkip       []string
	buildJobs       int
	buildReuse      bool
	buildArchive    string
	buildExe        string
)

// buildCmd runs the full pipeline: walk -> preprocess -> hash -> analyse ->
// resolve -> compile -> link.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full analysis-and-build pipeline",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringArrayVar(&buildSources, "source", nil, "source root to walk (repeatable)")
	buildCmd.Flags().StringVar(&buildOutput, "output", "", "output root for preprocessed/compiled artefacts and cache tables")
	buildCmd.Flags().StringVar(&buildRootSymbol, "root-symbol", "", "symbol to extract the reachable sub-tree from")
	buildCmd.Flags().StringArrayVar(&buildUnref, "unreferenced", nil, "symbol reachable only through non-parseable constructs (repeatable)")
	buildCmd.Flags().StringArrayVar(&buildSkip, "skip", nil, "basename or glob to skip while walking (repeatable)")
	buildCmd.Flags().IntVar(&buildJobs, "jobs", 0, "worker pool size (default cores-1)")
	buildCmd.Flags().BoolVar(&buildReuse, "reuse-artefacts", false, "skip preprocessing when the output file already exists")
	buildCmd.Flags().StringVar(&buildArchive, "archive", "", "build a static archive at this path")
	buildCmd.Flags().StringVar(&buildExe, "exe", "", "link an executable at this path")
}

func runBuild(cmd *cobra.Command, args []string) error {
	v := viper.New()
	_ = v.BindPFlag("source_roots", cmd.Flags().Lookup("source"))
	_ = v.BindPFlag("output_root", cmd.Flags().Lookup("output"))
	_ = v.BindPFlag("root_symbol", cmd.Flags().Lookup("root-symbol"))
	_ = v.BindPFlag("unreferenced_deps", cmd.Flags().Lookup("unreferenced"))
	_ = v.BindPFlag("skip_files", cmd.Flags().Lookup("skip"))
	_ = v.BindPFlag("n_procs", cmd.Flags().Lookup("jobs"))
	_ = v.BindPFlag("reuse_artefacts", cmd.Flags().Lookup("reuse-artefacts"))

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if buildArchive != "" {
		cfg.OutputKind = config.OutputArchive
		cfg.OutputPath = buildArchive
	}
	if buildExe != "" {
		cfg.OutputKind = config.OutputExecutable
		cfg.OutputPath = buildExe
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("one of --archive or --exe (or output_path in config) is required")
	}

	log, err := observability.New(observability.Config{
		LogFile:   viper.GetString("log_file"),
		Verbosity: viper.GetInt("verbosity"),
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	_, err = engine.Run(cmd.Context(), cfg, log)
	return err
}
