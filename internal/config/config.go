// Package config defines the engine's enumerated configuration record and
// loads it from flags, environment variables, and an optional config file.
//
// RunConfig is a fully enumerated struct passed through every phase;
// nothing downstream of Load touches a free-form map or a *viper.Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// PathFlagRule is one (path_filter, flags) rule from the per-path flag
// configuration. Flags from all matching rules are concatenated in
// declaration order, after common flags.
type PathFlagRule struct {
	PathFilter string   `mapstructure:"path_filter"`
	Flags      []string `mapstructure:"flags"`
}

// ToolOverrides captures the FC/CC/CPP/FPP/FFLAGS environment contract.
type ToolOverrides struct {
	FC     string `mapstructure:"fc"`
	CC     string `mapstructure:"cc"`
	CPP    string `mapstructure:"cpp"`
	FPP    string `mapstructure:"fpp"`
	FFlags string `mapstructure:"fflags"`
}

// OutputKind selects the Linker front-end's invocation shape.
type OutputKind string

const (
	OutputArchive    OutputKind = "archive"
	OutputExecutable OutputKind = "executable"
)

// RunConfig is the single configuration value threaded through every phase.
type RunConfig struct {
	SourceRoots      []string                  `mapstructure:"source_roots"`
	OutputRoot       string                    `mapstructure:"output_root"`
	RootSymbol       string                    `mapstructure:"root_symbol"`
	UnreferencedDeps []string                  `mapstructure:"unreferenced_deps"`
	SkipFiles        []string                  `mapstructure:"skip_files"`
	CommonFlags      map[string][]string       `mapstructure:"common_flags"` // keyed by phase: "preprocessor", "compiler", "link"
	PathFlags        map[string][]PathFlagRule `mapstructure:"path_flags"`   // keyed by phase, same as CommonFlags
	NProcs           int                       `mapstructure:"n_procs"`
	ReuseArtefacts   bool                      `mapstructure:"reuse_artefacts"`
	ToolOverrides    ToolOverrides             `mapstructure:"tool_overrides"`

	OutputKind  OutputKind `mapstructure:"output_kind"`
	OutputPath  string     `mapstructure:"output_path"`
	ArchiveTool string     `mapstructure:"archive_tool"`

	// ModuleDir is the Fortran compiler's module output directory,
	// shared by every file in the run so module hashes are found where the
	// compiler actually left them. ModuleDirFlag is the flag that names it
	// ("-J" for gfortran, "-module" for ifort).
	ModuleDir     string `mapstructure:"module_dir"`
	ModuleDirFlag string `mapstructure:"module_dir_flag"`
}

// Validate applies the defaults and sanity checks not expressible purely
// through viper defaults (e.g. NProcs depends on runtime.NumCPU()).
func (c *RunConfig) Validate() error {
	if len(c.SourceRoots) == 0 {
		return fmt.Errorf("at least one source root is required")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("an output root is required")
	}
	if c.RootSymbol == "" {
		return fmt.Errorf("a root symbol is required")
	}
	if c.NProcs <= 0 {
		c.NProcs = defaultNProcs()
	}
	if c.OutputKind == "" {
		c.OutputKind = OutputArchive
	}
	if c.OutputKind == OutputArchive && c.ArchiveTool == "" {
		c.ArchiveTool = "ar"
	}
	if c.ModuleDir == "" {
		c.ModuleDir = c.OutputRoot + "/modules"
	}
	if c.ModuleDirFlag == "" {
		c.ModuleDirFlag = "-J"
	}
	return nil
}

func defaultNProcs() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Load layers a config file, FCBUILD_-prefixed environment variables, the
// individually bound FC/CC/CPP/FPP/FFLAGS variables, and viper-bound cobra
// flags (already registered onto v by the caller) into one RunConfig.
// Flags win over environment, which wins over the config file.
func Load(v *viper.Viper, configFile string) (*RunConfig, error) {
	v.SetEnvPrefix("FCBUILD")
	v.AutomaticEnv()

	if err := v.BindEnv("tool_overrides.fc", "FC"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("tool_overrides.cc", "CC"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("tool_overrides.cpp", "CPP"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("tool_overrides.fpp", "FPP"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("tool_overrides.fflags", "FFLAGS"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvedTools is the concrete external binaries and extra flags the
// FC/CC/CPP/FPP/FFLAGS environment contract and PATH probing resolve to.
type ResolvedTools struct {
	FC            string
	CC            string
	CPP           string
	FPP           string
	FPPExtraFlags []string
	FFlags        []string
}

// ResolveTools applies the FC/CC/CPP/FPP/FFLAGS overrides captured in
// ToolOverrides, falling back to conventional default binaries; if FPP is
// unset it probes fpp then cpp on PATH via lookPath (ordinarily
// procrunner.LookPath), and a cpp-as-fpp fallback requires the extra flags
// "-traditional-cpp -P"; -P is ensured present regardless of which tool was
// chosen.
func (c *RunConfig) ResolveTools(lookPath func(string) (string, error)) (ResolvedTools, error) {
	rt := ResolvedTools{
		FC:  firstNonEmpty(c.ToolOverrides.FC, "gfortran"),
		CC:  firstNonEmpty(c.ToolOverrides.CC, "gcc"),
		CPP: firstNonEmpty(c.ToolOverrides.CPP, "cpp"),
	}
	if c.ToolOverrides.FFlags != "" {
		rt.FFlags = strings.Fields(c.ToolOverrides.FFlags)
	}

	switch {
	case c.ToolOverrides.FPP != "":
		rt.FPP = c.ToolOverrides.FPP
	default:
		if _, err := lookPath("fpp"); err == nil {
			rt.FPP = "fpp"
			break
		}
		if _, err := lookPath("cpp"); err == nil {
			rt.FPP = "cpp"
			rt.FPPExtraFlags = []string{"-traditional-cpp"}
			break
		}
		return ResolvedTools{}, fmt.Errorf("no Fortran preprocessor found: set FPP, or install fpp or cpp on PATH")
	}

	if !containsString(rt.FPPExtraFlags, "-P") {
		rt.FPPExtraFlags = append(rt.FPPExtraFlags, "-P")
	}
	return rt, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsString(vals []string, target string) bool {
	for _, v := range vals {
		if v == target {
			return true
		}
	}
	return false
}
