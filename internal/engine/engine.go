// Package engine drives the build pipeline end to end: walk, preprocess,
// hash, analyse, resolve, compile, link. Each phase fans out over a worker
// pool internally; phases run in sequence with a barrier between them, and
// all per-run state lives in values passed through Run rather than in
// package-level singletons.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/latticeforge/fcbuild/internal/analysis"
	"github.com/latticeforge/fcbuild/internal/cache"
	"github.com/latticeforge/fcbuild/internal/compiler"
	"github.com/latticeforge/fcbuild/internal/config"
	"github.com/latticeforge/fcbuild/internal/depgraph"
	"github.com/latticeforge/fcbuild/internal/hashutil"
	"github.com/latticeforge/fcbuild/internal/linker"
	"github.com/latticeforge/fcbuild/internal/model"
	"github.com/latticeforge/fcbuild/internal/observability"
	"github.com/latticeforge/fcbuild/internal/pathflags"
	"github.com/latticeforge/fcbuild/internal/preprocess"
	"github.com/latticeforge/fcbuild/internal/procrunner"
	"github.com/latticeforge/fcbuild/internal/symtab"
	"github.com/latticeforge/fcbuild/internal/walker"
)

// Artefacts is the typed container of everything a run produces: one field
// per collection, each with a known element type. Phases hand results to
// each other through these fields, never through a string-keyed bag.
type Artefacts struct {
	PreprocessedC       []model.SourcePath
	PreprocessedFortran []model.SourcePath
	Analysed            []*model.AnalysedFile
	BuildTree           *depgraph.DepGraph
	CompiledC           []model.CompiledFile
	CompiledFortran     []model.CompiledFile
	ObjectArchive       *model.ArchiveManifest
}

// Run executes every phase in order against cfg and returns the run's
// artefacts. log may be nil for callers that want a silent run.
func Run(ctx context.Context, cfg *config.RunConfig, log *observability.Logger) (*Artefacts, error) {
	art := &Artefacts{}

	tools, err := cfg.ResolveTools(procrunner.LookPath)
	if err != nil {
		return nil, err
	}

	// 1. Walk every source root, classify, dedupe skip rules.
	skip := walker.NewSkip(cfg.SkipFiles)
	var sources []model.SourcePath
	for _, root := range cfg.SourceRoots {
		found, err := walker.Walk(root, skip)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
		sources = append(sources, found...)
	}
	log.Info(0, "walked source tree", zap.Int("files", len(sources)))

	flags := pathflags.NewResolver(primaryRoot(cfg.SourceRoots), cfg.OutputRoot, cfg.CommonFlags, cfg.PathFlags)

	// 2. Preprocess files that need it; pass through those already
	// preprocessed.
	preprocessed, err := runPreprocessPhase(ctx, cfg, tools, flags, sources)
	if err != nil {
		return nil, err
	}
	for _, sp := range preprocessed {
		if sp.Lang == model.LangC {
			art.PreprocessedC = append(art.PreprocessedC, sp)
		} else {
			art.PreprocessedFortran = append(art.PreprocessedFortran, sp)
		}
	}

	// 3. Hash every preprocessed/passthrough file.
	hasher := hashutil.NewFileHasher()
	hashed := make([]model.HashedSource, 0, len(preprocessed))
	for _, sp := range preprocessed {
		h, err := hasher.HashFile(sp.Path)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", sp.Path, err)
		}
		hashed = append(hashed, model.HashedSource{SourcePath: sp, ContentHash: h})
	}

	// 4-5. Partition into reused/to-analyse against the previous analysis
	// table, analyse what changed, persisting incrementally.
	analysisPath := filepath.Join(cfg.OutputRoot, "analysis.csv")
	reused, toAnalyse, err := cache.LoadPrevious(analysisPath, hashed)
	if err != nil {
		return nil, fmt.Errorf("loading analysis table: %w", err)
	}

	table, err := cache.Open(analysisPath, reused)
	if err != nil {
		return nil, fmt.Errorf("opening analysis table: %w", err)
	}
	defer table.Close()

	analyser := &analysis.Analyser{
		Registry: analysis.NewRegistry(),
		NProcs:   cfg.NProcs,
		OnResult: func(f model.AnalysedFile) {
			if err := table.Append(f); err != nil {
				log.Error("failed to persist analysis row", zap.String("path", f.Path), zap.Error(err))
			}
		},
	}
	report, err := analyser.Run(ctx, toAnalyse)
	if err != nil {
		return nil, err
	}
	for _, w := range report.Warnings {
		log.Warn("parse failure", zap.String("detail", w))
	}
	log.Info(0, "analysed", zap.Int("reused", len(reused)), zap.Int("analysed", report.ItemsProcessed))

	art.Analysed = table.AllRows()

	// 6. Symbol table.
	st, dups := symtab.Build(art.Analysed)
	for _, d := range dups {
		log.Warn("duplicate symbol", zap.String("symbol", d.Symbol), zap.String("kept", d.KeptPath), zap.String("discarded", d.DiscardedPath))
	}

	// 7. Resolve symbol deps to file deps, extract the reachable sub-tree,
	// inject unreferenced dependencies.
	full, resolveReport := depgraph.Resolve(art.Analysed, st, dups)
	if resolveReport.UnresolvedSymbolCount > 0 {
		log.Warn("unresolved symbol dependencies", zap.Int("count", resolveReport.UnresolvedSymbolCount))
	}
	for _, b := range resolveReport.UnresolvedCommentedDeps {
		log.Warn("unresolved commented file dependency", zap.String("basename", b))
	}

	sub, missing, err := depgraph.ExtractSubtree(full, st, cfg.RootSymbol)
	if err != nil {
		return nil, fmt.Errorf("root symbol %q: %w", cfg.RootSymbol, err)
	}
	for m := range missing {
		log.Warn("missing file dependency", zap.String("path", m))
	}

	unrefWarnings, unrefMissing := depgraph.InjectUnreferenced(sub, full, st, cfg.UnreferencedDeps)
	for _, w := range unrefWarnings {
		log.Warn("unreferenced dependency", zap.String("detail", w))
	}
	for m := range unrefMissing {
		log.Warn("missing file dependency", zap.String("path", m))
	}

	art.BuildTree = sub
	log.Info(0, "sub-tree extracted", zap.Int("files", sub.Len()))

	// 8. Compile the sub-tree in dependency-respecting waves.
	compilePath := filepath.Join(cfg.OutputRoot, "compile.csv")
	prevCompile, err := cache.LoadCompileTable(compilePath)
	if err != nil {
		return nil, fmt.Errorf("loading compile table: %w", err)
	}

	driver := &compiler.Driver{
		FortranTool:       tools.FC,
		FortranExtraFlags: tools.FFlags,
		CTool:             tools.CC,
		ModuleDir:         cfg.ModuleDir,
		ModuleDirFlag:     cfg.ModuleDirFlag,
		OutputRoot:        cfg.OutputRoot,
		Flags:             flags,
		NProcs:            cfg.NProcs,
		Log:               log,
	}
	ordered, err := driver.Run(ctx, sub, st, prevCompile)
	if err != nil {
		return nil, fmt.Errorf("compile phase: %w", err)
	}
	if err := prevCompile.Save(); err != nil {
		return nil, fmt.Errorf("saving compile table: %w", err)
	}
	for _, cf := range ordered {
		if node, ok := sub.Get(cf.InputPath); ok && node.Lang == model.LangC {
			art.CompiledC = append(art.CompiledC, cf)
		} else {
			art.CompiledFortran = append(art.CompiledFortran, cf)
		}
	}
	log.Info(0, "compiled", zap.Int("files", len(ordered)))

	// 9. Link/archive.
	front := &linker.Front{}
	switch cfg.OutputKind {
	case config.OutputExecutable:
		front.Mode = linker.ModeExecutable
		front.Tool = tools.FC
		front.ExtraFlags = cfg.CommonFlags["link"]
	default:
		front.Mode = linker.ModeArchive
		front.Tool = cfg.ArchiveTool
	}

	manifest, err := front.Link(ctx, ordered, cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("link phase: %w", err)
	}
	art.ObjectArchive = manifest
	log.Info(0, "linked", zap.String("output", manifest.OutputPath), zap.Int("objects", len(manifest.Objects)))
	return art, nil
}

// runPreprocessPhase preprocesses every file that needs it (C and
// not-yet-preprocessed Fortran) and passes already-preprocessed Fortran
// straight through.
func runPreprocessPhase(ctx context.Context, cfg *config.RunConfig, tools config.ResolvedTools, flags *pathflags.Resolver, sources []model.SourcePath) ([]model.SourcePath, error) {
	var cJobs, fJobs []preprocess.Job
	var passthrough []model.SourcePath

	for _, s := range sources {
		switch s.Lang {
		case model.LangC:
			cJobs = append(cJobs, preprocess.Job{Input: s, Output: preprocessedOutputPath(cfg, s, ".i")})
		case model.LangFortranNeedsPreprocessing:
			fJobs = append(fJobs, preprocess.Job{Input: s, Output: preprocessedOutputPath(cfg, s, ".f90")})
		case model.LangFortranPreprocessed:
			passthrough = append(passthrough, s)
		default:
			// headers and other files are neither preprocessed nor analysed
		}
	}

	var out []model.SourcePath
	out = append(out, passthrough...)

	if len(cJobs) > 0 {
		cDriver := &preprocess.Driver{Tool: tools.CPP, Flags: flags, ReuseArtefacts: cfg.ReuseArtefacts, NProcs: cfg.NProcs}
		res, err := cDriver.Run(ctx, cJobs)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	if len(fJobs) > 0 {
		fortranDriver := &preprocess.Driver{Tool: tools.FPP, ExtraFlags: tools.FPPExtraFlags, Flags: flags, ReuseArtefacts: cfg.ReuseArtefacts, NProcs: cfg.NProcs}
		res, err := fortranDriver.Run(ctx, fJobs)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// preprocessedOutputPath mirrors an input path under outputRoot/preprocessed
// with the extension swapped for the post-preprocessing one.
func preprocessedOutputPath(cfg *config.RunConfig, s model.SourcePath, ext string) string {
	rel := strings.TrimPrefix(s.Path, "/")
	base := rel
	if dot := strings.LastIndex(filepath.Base(rel), "."); dot >= 0 {
		base = filepath.Join(filepath.Dir(rel), filepath.Base(rel)[:dot])
	}
	return filepath.Join(cfg.OutputRoot, "preprocessed", base+ext)
}

func primaryRoot(roots []string) string {
	if len(roots) == 0 {
		return ""
	}
	return roots[0]
}
