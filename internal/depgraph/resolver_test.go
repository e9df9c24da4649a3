package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/fcbuild/internal/model"
	"github.com/latticeforge/fcbuild/internal/symtab"
)

func analysed(path string, lang model.Language, defs, deps []string, commented ...string) *model.AnalysedFile {
	return &model.AnalysedFile{
		Path:              path,
		FileHash:          1,
		Lang:              lang,
		SymbolDefs:        model.NewStringSet(defs...),
		SymbolDeps:        model.NewStringSet(deps...),
		FileDeps:          model.NewStringSet(),
		CommentedFileDeps: model.NewStringSet(commented...),
	}
}

// prog.f90 uses module m, m.f90 defines it: the use becomes a file dep.
func TestResolve_SymbolToFileDep(t *testing.T) {
	prog := analysed("prog.f90", model.LangFortranPreprocessed, []string{"p"}, []string{"m"})
	mod := analysed("m.f90", model.LangFortranPreprocessed, []string{"m"}, nil)

	st, dups := symtab.Build([]*model.AnalysedFile{mod, prog})
	assert.Empty(t, dups)

	graph, report := Resolve([]*model.AnalysedFile{prog, mod}, st, dups)
	assert.Zero(t, report.UnresolvedSymbolCount)

	progNode, ok := graph.Get("prog.f90")
	require.True(t, ok)
	assert.True(t, progNode.FileDeps.Has("m.f90"))
}

// Comment-based C dependency: "DEPENDS ON: helper.o" resolves
// to helper.c, keyed by basename stem rather than full basename.
func TestResolve_CommentedFileDep(t *testing.T) {
	prog := analysed("prog.f90", model.LangFortranPreprocessed, []string{"p"}, nil, "helper.o")
	helper := analysed("helper.c", model.LangC, []string{"helper"}, nil)

	st, dups := symtab.Build([]*model.AnalysedFile{prog, helper})
	graph, report := Resolve([]*model.AnalysedFile{prog, helper}, st, dups)
	assert.Empty(t, report.UnresolvedCommentedDeps)

	progNode, ok := graph.Get("prog.f90")
	require.True(t, ok)
	assert.True(t, progNode.FileDeps.Has("helper.c"))
}

func TestResolve_SelfDependencyDropped(t *testing.T) {
	f := analysed("a.f90", model.LangFortranPreprocessed, []string{"a"}, []string{"a"})
	st, dups := symtab.Build([]*model.AnalysedFile{f})
	graph, _ := Resolve([]*model.AnalysedFile{f}, st, dups)

	node, _ := graph.Get("a.f90")
	assert.False(t, node.FileDeps.Has("a.f90"))
	assert.Empty(t, node.FileDeps)
}

func TestResolve_UnresolvedSymbolCounted(t *testing.T) {
	f := analysed("a.f90", model.LangFortranPreprocessed, []string{"a"}, []string{"missing_mod"})
	st, dups := symtab.Build([]*model.AnalysedFile{f})
	_, report := Resolve([]*model.AnalysedFile{f}, st, dups)
	assert.Equal(t, 1, report.UnresolvedSymbolCount)
}

// Duplicate symbol: first-seen wins, both files named in the
// warning.
func TestSymtab_DuplicateSymbolFirstWins(t *testing.T) {
	m1 := analysed("m.f90", model.LangFortranPreprocessed, []string{"m"}, nil)
	m2 := analysed("m2.f90", model.LangFortranPreprocessed, []string{"m"}, nil)

	st, dups := symtab.Build([]*model.AnalysedFile{m1, m2})
	require.Len(t, dups, 1)
	assert.Equal(t, "m.f90", dups[0].KeptPath)
	assert.Equal(t, "m2.f90", dups[0].DiscardedPath)

	definer, ok := st.Lookup("M")
	require.True(t, ok)
	assert.Equal(t, "m.f90", definer)
}

// Sub-tree extraction keeps only files reachable from the root symbol.
func TestExtractSubtree(t *testing.T) {
	prog := analysed("prog.f90", model.LangFortranPreprocessed, []string{"p"}, []string{"m"})
	mod := analysed("m.f90", model.LangFortranPreprocessed, []string{"m"}, nil)
	orphan := analysed("unrelated.f90", model.LangFortranPreprocessed, []string{"q"}, nil)

	st, dups := symtab.Build([]*model.AnalysedFile{mod, prog, orphan})
	full, _ := Resolve([]*model.AnalysedFile{prog, mod, orphan}, st, dups)

	sub, missing, err := ExtractSubtree(full, st, "p")
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, 2, sub.Len())
	_, hasOrphan := sub.Get("unrelated.f90")
	assert.False(t, hasOrphan)
}

func TestExtractSubtree_MissingDepIsWarnedNotFatal(t *testing.T) {
	a := analysed("a.f90", model.LangFortranPreprocessed, []string{"a"}, nil)
	a.FileDeps = model.NewStringSet("phantom.f90") // not present in the source tree

	st, _ := symtab.Build([]*model.AnalysedFile{a})
	full := New()
	full.Add(a)

	sub, missing, err := ExtractSubtree(full, st, "a")
	require.NoError(t, err)
	assert.True(t, missing.Has("phantom.f90"))
	assert.Equal(t, 1, sub.Len())
}

func TestExtractSubtree_UnknownRootSymbolIsError(t *testing.T) {
	st := symtab.New()
	full := New()
	_, _, err := ExtractSubtree(full, st, "nope")
	assert.Error(t, err)
}

// Unreferenced dependency injection pulls in a symbol's whole sub-tree.
func TestInjectUnreferenced(t *testing.T) {
	prog := analysed("prog.f90", model.LangFortranPreprocessed, []string{"p"}, nil)
	util := analysed("util.f90", model.LangFortranPreprocessed, []string{"util_sub"}, nil)

	st, dups := symtab.Build([]*model.AnalysedFile{prog, util})
	full, _ := Resolve([]*model.AnalysedFile{prog, util}, st, dups)

	sub, _, err := ExtractSubtree(full, st, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.Len())

	warnings, missing := InjectUnreferenced(sub, full, st, []string{"util_sub"})
	assert.Empty(t, warnings)
	assert.Empty(t, missing)
	assert.Equal(t, 2, sub.Len())
	_, ok := sub.Get("util.f90")
	assert.True(t, ok)
}

func TestInjectUnreferenced_UnknownSymbolWarns(t *testing.T) {
	prog := analysed("prog.f90", model.LangFortranPreprocessed, []string{"p"}, nil)
	st, dups := symtab.Build([]*model.AnalysedFile{prog})
	full, _ := Resolve([]*model.AnalysedFile{prog}, st, dups)
	sub, _, _ := ExtractSubtree(full, st, "p")

	warnings, _ := InjectUnreferenced(sub, full, st, []string{"ghost"})
	require.Len(t, warnings, 1)
}

func TestInjectUnreferenced_AlreadyPresentIsNoop(t *testing.T) {
	prog := analysed("prog.f90", model.LangFortranPreprocessed, []string{"p"}, []string{"m"})
	mod := analysed("m.f90", model.LangFortranPreprocessed, []string{"m"}, nil)
	st, dups := symtab.Build([]*model.AnalysedFile{mod, prog})
	full, _ := Resolve([]*model.AnalysedFile{prog, mod}, st, dups)
	sub, _, _ := ExtractSubtree(full, st, "p")
	require.Equal(t, 2, sub.Len())

	warnings, missing := InjectUnreferenced(sub, full, st, []string{"m"})
	assert.Empty(t, warnings)
	assert.Empty(t, missing)
	assert.Equal(t, 2, sub.Len())
}
