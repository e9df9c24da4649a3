// Package depgraph converts symbol-level dependencies into a file-level
// dependency graph and extracts the sub-graph reachable from a chosen root
// symbol.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/latticeforge/fcbuild/internal/model"
	"github.com/latticeforge/fcbuild/internal/symtab"
)

// DepGraph is a path-indexed, arena-style store of AnalysedFiles with
// file_deps populated; nodes reference each other by path, never by
// pointer.
type DepGraph struct {
	nodes map[string]*model.AnalysedFile
}

// New builds an empty DepGraph.
func New() *DepGraph {
	return &DepGraph{nodes: make(map[string]*model.AnalysedFile)}
}

// Add inserts a node, keyed by its path.
func (g *DepGraph) Add(f *model.AnalysedFile) { g.nodes[f.Path] = f }

// Get looks up a node by path.
func (g *DepGraph) Get(path string) (*model.AnalysedFile, bool) {
	f, ok := g.nodes[path]
	return f, ok
}

// Len returns the node count.
func (g *DepGraph) Len() int { return len(g.nodes) }

// Paths returns every node's path, sorted, for deterministic iteration.
func (g *DepGraph) Paths() []string {
	out := make([]string, 0, len(g.nodes))
	for p := range g.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ResolveReport aggregates the non-fatal warnings produced while resolving
// symbol dependencies into file dependencies. Unresolved symbols are warned
// once as an aggregate count, not per symbol.
type ResolveReport struct {
	UnresolvedSymbolCount   int
	UnresolvedSymbols       []string // kept for diagnostics; count is what's warned
	UnresolvedCommentedDeps []string
	DuplicateSymbols        []symtab.Duplicate
}

// Resolve builds the full DepGraph from analysed files: symbol_deps are
// looked up in the symbol table and turned into file_deps; commented
// file deps are looked up by basename among the known C files; self-deps
// are dropped silently.
func Resolve(files []*model.AnalysedFile, st *symtab.SymbolTable, dups []symtab.Duplicate) (*DepGraph, *ResolveReport) {
	graph := New()
	report := &ResolveReport{DuplicateSymbols: dups}

	// Commented file deps name a ".o" the C compiler would produce (e.g.
	// "helper.o"), not the ".c" source itself, so the index is keyed by
	// basename stem rather than the full basename.
	cByBasename := make(map[string]string)
	for _, f := range files {
		if f.Lang == model.LangC {
			cByBasename[stemName(f.Path)] = f.Path
		}
	}

	for _, f := range files {
		resolved := model.NewStringSet()

		for _, sym := range f.SymbolDeps.Sorted() {
			definer, ok := st.Lookup(sym)
			if !ok {
				report.UnresolvedSymbolCount++
				report.UnresolvedSymbols = append(report.UnresolvedSymbols, sym)
				continue
			}
			if definer == f.Path {
				continue // self-dependency, dropped silently
			}
			resolved.Add(definer)
		}

		for _, basename := range f.CommentedFileDeps.Sorted() {
			cPath, ok := cByBasename[stemName(basename)]
			if !ok {
				report.UnresolvedCommentedDeps = append(report.UnresolvedCommentedDeps, basename)
				continue
			}
			if cPath == f.Path {
				continue
			}
			resolved.Add(cPath)
		}

		f.FileDeps = resolved
		graph.Add(f)
	}

	return graph, report
}

// stemName returns a path's basename with its extension stripped, so
// "dir/helper.c" and "helper.o" both stem to "helper".
func stemName(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}

// ExtractSubtree performs a depth-first walk over full's file_deps starting
// at the file that defines rootSymbol, copying visited nodes into a new
// graph. Missing dependencies (a file_dep with no node in full) are
// collected, not fatal. The walk is idempotent: revisiting a node
// short-circuits.
func ExtractSubtree(full *DepGraph, st *symtab.SymbolTable, rootSymbol string) (*DepGraph, model.StringSet, error) {
	rootPath, ok := st.Lookup(rootSymbol)
	if !ok {
		return nil, nil, fmt.Errorf("root symbol %q has no definer", rootSymbol)
	}
	sub, missing, _ := extractSubtreeFromPath(full, rootPath)
	return sub, missing, nil
}

// InjectUnreferenced extends sub with the sub-trees rooted at each symbol
// in unreferenced, unioning them in place. Symbols already present (resolve
// to a file already in sub) are a no-op; symbols that fail to resolve
// produce a warning string.
func InjectUnreferenced(sub *DepGraph, full *DepGraph, st *symtab.SymbolTable, unreferenced []string) ([]string, model.StringSet) {
	var warnings []string
	missing := model.NewStringSet()

	for _, symbol := range unreferenced {
		path, ok := st.Lookup(symbol)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unreferenced dependency %q does not resolve to any known symbol", symbol))
			continue
		}
		if _, already := sub.Get(path); already {
			continue // no-op: already reachable
		}

		extra, extraMissing, err := extractSubtreeFromPath(full, path)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		for _, p := range extra.Paths() {
			n, _ := extra.Get(p)
			sub.Add(n)
		}
		for m := range extraMissing {
			missing.Add(m)
		}
	}
	return warnings, missing
}

// extractSubtreeFromPath is ExtractSubtree's walk, seeded directly from a
// path instead of a root symbol (used by unreferenced-dependency
// injection, which already knows the defining file).
func extractSubtreeFromPath(full *DepGraph, rootPath string) (*DepGraph, model.StringSet, error) {
	sub := New()
	missing := model.NewStringSet()
	visited := make(map[string]bool)

	var walk func(path string)
	walk = func(path string) {
		if visited[path] {
			return
		}
		visited[path] = true

		node, ok := full.Get(path)
		if !ok {
			missing.Add(path)
			return
		}
		sub.Add(node)
		for _, dep := range node.FileDeps.Sorted() {
			walk(dep)
		}
	}
	walk(rootPath)
	return sub, missing, nil
}
