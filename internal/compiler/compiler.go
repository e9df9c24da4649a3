// Package compiler implements the wave-based parallel compile driver: it
// schedules a DepGraph's Fortran files into the fewest passes such that
// every file's Fortran file_deps are compiled first, runs each wave's
// files in parallel, and decides per file whether the previous run's
// object can be reused.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/latticeforge/fcbuild/internal/cache"
	"github.com/latticeforge/fcbuild/internal/common"
	"github.com/latticeforge/fcbuild/internal/depgraph"
	"github.com/latticeforge/fcbuild/internal/hashutil"
	"github.com/latticeforge/fcbuild/internal/model"
	"github.com/latticeforge/fcbuild/internal/observability"
	"github.com/latticeforge/fcbuild/internal/pathflags"
	"github.com/latticeforge/fcbuild/internal/procrunner"
	"github.com/latticeforge/fcbuild/internal/symtab"
)

// FileState is the compile-phase state machine position of one file:
// pending -> ready -> compiling -> {compiled, failed}.
type FileState int

const (
	StatePending FileState = iota
	StateReady
	StateCompiling
	StateCompiled
	StateFailed
)

// Driver compiles a DepGraph's files in dependency-respecting waves.
type Driver struct {
	FortranTool       string
	FortranExtraFlags []string // FFLAGS override, ahead of path-specific flags
	CTool             string
	ModuleDir         string // Fortran module output directory
	ModuleDirFlag     string // the compiler's module-output flag, "-J" if empty
	OutputRoot        string
	Flags             *pathflags.Resolver
	NProcs            int
	Log               *observability.Logger
}

// DeadlockError reports the unready files and their still-missing Fortran
// dependencies when a wave makes no progress.
type DeadlockError struct {
	Unready map[string][]string
}

func (e *DeadlockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deadlocked: %d file(s) cannot make progress", len(e.Unready))
	paths := make([]string, 0, len(e.Unready))
	for p := range e.Unready {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&b, "\n  %s: missing %s", p, strings.Join(e.Unready[p], ", "))
	}
	return b.String()
}

// NothingCompiledError reports a wave that ended with no compiled file and
// no per-file error. Run checks per-file errors first, so a wave in which
// every file failed reports those errors instead.
type NothingCompiledError struct{ Wave int }

func (e *NothingCompiledError) Error() string {
	return fmt.Sprintf("wave %d compiled zero files", e.Wave)
}

// workResult is one file's compile outcome inside a wave.
type workResult struct {
	path    string
	state   FileState
	record  model.CompiledFile
	reason  string
	skipped bool // recompile decision said "reuse", no external tool run
	err     error
}

// Run schedules graph into waves and compiles them, consulting prevTable
// for the recompile decision and st to resolve each file's Fortran module
// dependencies. It returns every CompiledFile record produced this run
// (reused or freshly compiled) in wave-completion order, the order the
// linker/archiver uses for deterministic member ordering, and publishes
// new records into prevTable.
func (d *Driver) Run(ctx context.Context, graph *depgraph.DepGraph, st *symtab.SymbolTable, prevTable *cache.CompileTable) ([]model.CompiledFile, error) {
	remaining := make(map[string]*model.AnalysedFile)
	for _, p := range graph.Paths() {
		f, _ := graph.Get(p)
		remaining[p] = f
	}

	if d.ModuleDir != "" {
		if err := os.MkdirAll(d.ModuleDir, os.ModePerm); err != nil {
			return nil, err
		}
	}

	compiled := make(map[string]bool, len(remaining))
	moduleHashes := make(map[string]hashutil.ContentHash)
	var ordered []model.CompiledFile

	waveIdx := 0
	for len(remaining) > 0 {
		ready := readySet(remaining, compiled, graph)
		if len(ready) == 0 {
			return nil, &DeadlockError{Unready: unmetDeps(remaining, compiled, graph)}
		}

		results, err := d.compileWave(ctx, ready, graph, st, prevTable, moduleHashes)
		if err != nil {
			return nil, err
		}

		anyCompiled := false
		var errs []error
		for _, r := range results {
			if r.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.path, r.err))
				continue
			}
			anyCompiled = true
		}
		// Complete the wave before failing, so the error report is
		// comprehensive; only then propagate.
		if len(errs) > 0 {
			return nil, fmt.Errorf("wave %d: compile failed for %d file(s): %w", waveIdx, len(errs), joinErrs(errs))
		}
		if !anyCompiled {
			return nil, &NothingCompiledError{Wave: waveIdx}
		}

		for _, r := range results {
			compiled[r.path] = true
			delete(remaining, r.path)
			prevTable.Put(r.record)
			ordered = append(ordered, r.record)
			if d.Log != nil {
				if r.skipped {
					d.Log.Info(1, "reused object", zap.String("path", r.path))
				} else {
					d.Log.Info(1, "compiled: "+r.reason, zap.String("path", r.path))
				}
			}
		}

		// Publish newly produced module artifacts between waves, strictly
		// after every worker in the wave has returned, so workers never
		// observe a mid-wave write.
		for _, r := range results {
			node, ok := graph.Get(r.path)
			if !ok || !node.Lang.IsFortran() {
				continue
			}
			publishModuleHashes(d.ModuleDir, node, moduleHashes)
		}

		waveIdx++
	}

	return ordered, nil
}

// readySet returns every remaining file whose Fortran file_deps are all
// already compiled. C dependencies never gate scheduling.
func readySet(remaining map[string]*model.AnalysedFile, compiled map[string]bool, graph *depgraph.DepGraph) []*model.AnalysedFile {
	var out []*model.AnalysedFile
	paths := make([]string, 0, len(remaining))
	for p := range remaining {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		f := remaining[p]
		if isReady(f, compiled, graph) {
			out = append(out, f)
		}
	}
	return out
}

// isReady reports whether f can join the current wave. C files carry no
// inter-file ordering constraint (headers are already inlined by
// preprocessing) and are always ready; a Fortran file is ready once every
// Fortran file_dep is compiled. A file_dep with no node in graph is a
// dangling dependency the resolver could not classify; it is treated as
// permanently unready rather than silently skipped, so it surfaces as a
// DeadlockError instead of vanishing.
func isReady(f *model.AnalysedFile, compiled map[string]bool, graph *depgraph.DepGraph) bool {
	if !f.Lang.IsFortran() {
		return true
	}
	for _, dep := range f.FileDeps.Sorted() {
		if depNode, ok := graph.Get(dep); ok && !depNode.Lang.IsFortran() {
			continue // a known C dependency never gates Fortran scheduling
		}
		if !compiled[dep] {
			return false
		}
	}
	return true
}

func unmetDeps(remaining map[string]*model.AnalysedFile, compiled map[string]bool, graph *depgraph.DepGraph) map[string][]string {
	out := make(map[string][]string)
	for p, f := range remaining {
		if !f.Lang.IsFortran() {
			continue
		}
		var missing []string
		for _, dep := range f.FileDeps.Sorted() {
			if depNode, ok := graph.Get(dep); ok && !depNode.Lang.IsFortran() {
				continue
			}
			if !compiled[dep] {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			out[p] = missing
		}
	}
	return out
}

// compileWave compiles every file in ready concurrently, up to NProcs at a
// time. The recompile decision reads prevTable.Previous and moduleHashes,
// both read-only within a wave; prevTable.Put is deferred to the
// engine-owned loop in Run.
func (d *Driver) compileWave(ctx context.Context, ready []*model.AnalysedFile, graph *depgraph.DepGraph, st *symtab.SymbolTable, prevTable *cache.CompileTable, moduleHashes map[string]hashutil.ContentHash) ([]workResult, error) {
	results := make([]workResult, len(ready))

	g, gctx := errgroup.WithContext(ctx)
	if d.NProcs > 0 {
		g.SetLimit(d.NProcs)
	}

	for i, f := range ready {
		i, f := i, f
		g.Go(func() error {
			results[i] = d.compileOne(gctx, f, graph, st, prevTable, moduleHashes)
			return nil
		})
	}
	_ = g.Wait() // per-file errors are carried in workResult, not the group
	return results, nil
}

func (d *Driver) compileOne(ctx context.Context, f *model.AnalysedFile, graph *depgraph.DepGraph, st *symtab.SymbolTable, prevTable *cache.CompileTable, moduleHashes map[string]hashutil.ContentHash) workResult {
	tool := d.CTool
	flags := d.Flags.FlagsFor("compiler", f.Path)
	if f.Lang.IsFortran() {
		tool = d.FortranTool
		flags = append(append([]string{}, d.FortranExtraFlags...), flags...)
		flags = append(flags, d.moduleDirFlags()...)
	}
	flagsHash := hashutil.HashStrings(flags)
	moduleDeps := fortranModuleDeps(f, graph, st, moduleHashes)

	prev, hasPrev := prevTable.Previous(f.Path)
	reason, recompile := decideRecompile(f, flagsHash, moduleDeps, prev, hasPrev)

	outputPath := ObjectPath(d.OutputRoot, f.Path)

	if !recompile {
		return workResult{
			path:    f.Path,
			state:   StateCompiled,
			skipped: true,
			reason:  "reused",
			record: model.CompiledFile{
				InputPath:        f.Path,
				OutputPath:       prev.OutputPath,
				SourceHash:       f.FileHash,
				FlagsHash:        flagsHash,
				ModuleDepsHashes: moduleDeps,
			},
		}
	}

	if err := common.MkdirForFile(outputPath); err != nil {
		return workResult{path: f.Path, state: StateFailed, err: err}
	}

	// Reserve a collision-free scratch object name next to the final
	// output: a wave compiles every ready file concurrently, and this
	// keeps two racing compiles on a shared directory from ever
	// observing each other's partial object.
	tmp, err := common.OpenTempFile(outputPath)
	if err != nil {
		return workResult{path: f.Path, state: StateFailed, err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()

	args := append(append([]string{}, flags...), f.Path, "-o", tmpPath)
	res, err := procrunner.Run(ctx, procrunner.Invocation{Tool: tool, Args: args})
	if err != nil {
		_ = os.Remove(tmpPath)
		return workResult{path: f.Path, state: StateFailed, err: fmt.Errorf("compiling %s: %w", f.Path, err)}
	}
	if !res.Succeeded() {
		_ = os.Remove(tmpPath) // partial objects left behind by a failed compiler invocation
		return workResult{path: f.Path, state: StateFailed, err: fmt.Errorf("compiling %s: exit %d: %s", f.Path, res.ExitCode, res.Stderr)}
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return workResult{path: f.Path, state: StateFailed, err: fmt.Errorf("compiling %s: publishing object: %w", f.Path, err)}
	}

	return workResult{
		path:   f.Path,
		state:  StateCompiled,
		reason: reason,
		record: model.CompiledFile{
			InputPath:        f.Path,
			OutputPath:       outputPath,
			SourceHash:       f.FileHash,
			FlagsHash:        flagsHash,
			ModuleDepsHashes: moduleDeps,
		},
	}
}

// moduleDirFlags is the flag pair telling the Fortran compiler where to
// emit .mod artifacts, so publishModuleHashes finds them where the
// compiler actually left them. The flag name itself varies per toolchain
// ("-J" for gfortran, "-module" for ifort) and is caller-set.
func (d *Driver) moduleDirFlags() []string {
	if d.ModuleDir == "" {
		return nil
	}
	flag := d.ModuleDirFlag
	if flag == "" {
		flag = "-J"
	}
	return []string{flag, d.ModuleDir}
}

// ObjectPath maps an input source path to its object output path, mirrored
// into outputRoot/obj with the source extension replaced by ".o".
func ObjectPath(outputRoot, inputPath string) string {
	rel := strings.TrimPrefix(inputPath, "/")
	return common.ReplaceFileExt(filepath.Join(outputRoot, "obj", rel), ".o")
}

// ModuleArtifactPath is where a Fortran compiler emits the .mod file for a
// module named name, inside moduleDir (the "-J"/"-module" style directory
// every file in a run shares).
func ModuleArtifactPath(moduleDir, name string) string {
	return filepath.Join(moduleDir, strings.ToLower(name)+".mod")
}

// fortranModuleDeps returns the subset of f's symbol dependencies that
// resolve, via st, to a Fortran-defining file (f's module_deps for the
// purposes of the recompile key) together with each one's current module
// hash, defaulting to zero if that module has not been (re)compiled yet
// this run.
func fortranModuleDeps(f *model.AnalysedFile, graph *depgraph.DepGraph, st *symtab.SymbolTable, moduleHashes map[string]hashutil.ContentHash) map[string]hashutil.ContentHash {
	out := make(map[string]hashutil.ContentHash)
	for _, sym := range f.SymbolDeps.Sorted() {
		definer, ok := st.Lookup(sym)
		if !ok || definer == f.Path {
			continue
		}
		if node, known := graph.Get(definer); !known || !node.Lang.IsFortran() {
			continue // only Fortran definers emit module artifacts
		}
		out[sym] = moduleHashes[sym] // zero value until that module's wave publishes it
	}
	return out
}

// decideRecompile decides whether f's object must be rebuilt, returning
// the reason for logging. Any of: no prior record, changed source hash,
// changed flags hash, or a changed module dependency hash forces a
// recompile.
func decideRecompile(f *model.AnalysedFile, flagsHash hashutil.ContentHash, moduleDeps map[string]hashutil.ContentHash, prev model.CompiledFile, hasPrev bool) (string, bool) {
	if !hasPrev {
		return "no previous result", true
	}
	if f.FileHash != prev.SourceHash {
		return "source changed", true
	}
	if flagsHash != prev.FlagsHash {
		return "flags changed", true
	}
	for m, h := range moduleDeps {
		if h != prev.ModuleDepsHashes[m] {
			return "module dependencies changed", true
		}
	}
	return "unchanged", false
}

// publishModuleHashes hashes the .mod artifacts found in moduleDir for a
// Fortran file that this wave compiled or reused (one per top-level symbol
// it defines that has a module file; programs, subroutines and functions
// leave no .mod behind) and publishes them into moduleHashes, visible to
// the next wave only.
func publishModuleHashes(moduleDir string, f *model.AnalysedFile, moduleHashes map[string]hashutil.ContentHash) {
	for _, sym := range f.SymbolDefs.Sorted() {
		modPath := ModuleArtifactPath(moduleDir, sym)
		h, err := hashFile(modPath)
		if err != nil {
			continue // not every defined symbol is a module; no .mod is expected
		}
		moduleHashes[sym] = h
	}
}

func hashFile(path string) (hashutil.ContentHash, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return hashutil.HashBytes(b), nil
}

func joinErrs(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
