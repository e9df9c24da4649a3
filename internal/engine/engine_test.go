package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/fcbuild/internal/cache"
	"github.com/latticeforge/fcbuild/internal/config"
)

// The end-to-end runs below drive every phase with stub external tools:
// cp obeys the preprocessor contract (`<tool> <flags> <input> <output>`)
// and true stands in for the compiler and archiver, whose outputs the
// engine only tracks by path.
func testConfig(t *testing.T, srcRoot, outRoot string) *config.RunConfig {
	t.Helper()
	cfg := &config.RunConfig{
		SourceRoots: []string{srcRoot},
		OutputRoot:  outRoot,
		RootSymbol:  "p",
		OutputKind:  config.OutputArchive,
		OutputPath:  filepath.Join(outRoot, "libprog.a"),
		ArchiveTool: "true",
		NProcs:      2,
		ToolOverrides: config.ToolOverrides{
			FC:  "true",
			CC:  "true",
			CPP: "cp",
			FPP: "cp",
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeTree(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"prog.f90": "program p\n  use m\n  ! DEPENDS ON: helper.o\nend program p\n",
		"m.f90":    "module m\nend module m\n",
		"helper.c": "int helper(int x) {\n  return x + 1;\n}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0644))
	}
}

func TestRun_EndToEnd(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeTree(t, srcRoot)

	art, err := Run(context.Background(), testConfig(t, srcRoot, outRoot), nil)
	require.NoError(t, err)

	// The sub-tree reachable from p: prog.f90, m.f90 by use, helper.c via
	// the DEPENDS ON comment.
	assert.Equal(t, 3, art.BuildTree.Len())
	assert.Len(t, art.CompiledFortran, 2)
	assert.Len(t, art.CompiledC, 1)
	require.NotNil(t, art.ObjectArchive)
	assert.Len(t, art.ObjectArchive.Objects, 3)
	assert.Equal(t, filepath.Join(outRoot, "libprog.a"), art.ObjectArchive.OutputPath)

	// Both persisted tables exist after the run.
	_, err = os.Stat(filepath.Join(outRoot, "analysis.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outRoot, "compile.csv"))
	assert.NoError(t, err)

	// m.f90 compiled strictly before prog.f90.
	index := make(map[string]int)
	for i, cf := range art.CompiledFortran {
		index[filepath.Base(cf.InputPath)] = i
	}
	assert.Less(t, index["m.f90"], index["prog.f90"])
}

// A second run with no source changes reuses every analysis row and every
// compile record: compilers are swapped for nonexistent binaries to prove
// nothing shells out, and the reloaded compile table is row-for-row
// identical.
func TestRun_RerunWithoutChangesReusesEverything(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeTree(t, srcRoot)

	_, err := Run(context.Background(), testConfig(t, srcRoot, outRoot), nil)
	require.NoError(t, err)

	compilePath := filepath.Join(outRoot, "compile.csv")
	firstTable, err := cache.LoadCompileTable(compilePath)
	require.NoError(t, err)

	cfg := testConfig(t, srcRoot, outRoot)
	cfg.ReuseArtefacts = true
	cfg.ToolOverrides.FC = "no-such-compiler-binary"
	cfg.ToolOverrides.CC = "no-such-compiler-binary"

	art, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, art.BuildTree.Len())

	secondTable, err := cache.LoadCompileTable(compilePath)
	require.NoError(t, err)
	assert.True(t, firstTable.Equal(secondTable))
}

// Changing a leaf module's source re-analyses and recompiles it, so its
// compile record carries the new source hash. The stub compiler emits no
// .mod file, so prog.f90 sees no module-hash change and is reused.
func TestRun_SourceChangeRecompilesChangedModule(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeTree(t, srcRoot)

	_, err := Run(context.Background(), testConfig(t, srcRoot, outRoot), nil)
	require.NoError(t, err)

	firstTable, err := cache.LoadCompileTable(filepath.Join(outRoot, "compile.csv"))
	require.NoError(t, err)

	modPath := filepath.Join(srcRoot, "m.f90")
	require.NoError(t, os.WriteFile(modPath, []byte("module m\n  integer :: version = 2\nend module m\n"), 0644))

	cfg := testConfig(t, srcRoot, outRoot)
	cfg.ReuseArtefacts = true
	_, err = Run(context.Background(), cfg, nil)
	require.NoError(t, err)

	secondTable, err := cache.LoadCompileTable(filepath.Join(outRoot, "compile.csv"))
	require.NoError(t, err)

	prev, ok := firstTable.Previous(modPath)
	require.True(t, ok)
	cur, ok := secondTable.Previous(modPath)
	require.True(t, ok)
	assert.NotEqual(t, prev.SourceHash, cur.SourceHash, "m.f90's recorded source hash must track the edit")
}

func TestRun_UnknownRootSymbolIsFatal(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeTree(t, srcRoot)

	cfg := testConfig(t, srcRoot, outRoot)
	cfg.RootSymbol = "no_such_symbol"
	_, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_symbol")
}
