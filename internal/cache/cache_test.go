package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/fcbuild/internal/hashutil"
	"github.com/latticeforge/fcbuild/internal/model"
)

// Writing then reading back an analysis table round-trips every field,
// including set equality regardless of insertion order.
func TestAnalysisTable_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.csv")

	tbl, err := Open(path, nil)
	require.NoError(t, err)
	row := model.AnalysedFile{
		Path:              "a.f90",
		FileHash:          42,
		SymbolDefs:        model.NewStringSet("a", "b"),
		SymbolDeps:        model.NewStringSet("m"),
		FileDeps:          model.NewStringSet(),
		CommentedFileDeps: model.NewStringSet(),
	}
	require.NoError(t, tbl.Append(row))
	require.NoError(t, tbl.Close())

	reused, toAnalyse, err := LoadPrevious(path, []model.HashedSource{
		{SourcePath: model.SourcePath{Path: "a.f90", Lang: model.LangFortranPreprocessed}, ContentHash: 42},
	})
	require.NoError(t, err)
	require.Len(t, reused, 1)
	assert.Empty(t, toAnalyse)
	assert.True(t, reused[0].SymbolDefs.Equal(model.NewStringSet("a", "b")))
	assert.Equal(t, model.LangFortranPreprocessed, reused[0].Lang)
}

// A changed content hash routes the file to the to-analyse set instead of
// being reused, even though a same-path row exists.
func TestAnalysisTable_ChangedHashForcesReanalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.csv")

	tbl, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Append(model.AnalysedFile{Path: "a.f90", FileHash: 1}))
	require.NoError(t, tbl.Close())

	reused, toAnalyse, err := LoadPrevious(path, []model.HashedSource{
		{SourcePath: model.SourcePath{Path: "a.f90", Lang: model.LangFortranPreprocessed}, ContentHash: 2},
	})
	require.NoError(t, err)
	assert.Empty(t, reused)
	require.Len(t, toAnalyse, 1)
	assert.Equal(t, "a.f90", toAnalyse[0].Path)
}

func TestCompileTable_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile.csv")

	tbl, err := LoadCompileTable(path)
	require.NoError(t, err)
	tbl.Put(model.CompiledFile{
		InputPath:        "a.f90",
		OutputPath:       "/out/obj/a.o",
		SourceHash:       10,
		FlagsHash:        20,
		ModuleDepsHashes: map[string]hashutil.ContentHash{"m": 30},
	})
	require.NoError(t, tbl.Save())

	reloaded, err := LoadCompileTable(path)
	require.NoError(t, err)
	assert.True(t, tbl.Equal(reloaded))

	prev, ok := reloaded.Previous("a.f90")
	require.True(t, ok)
	assert.Equal(t, hashutil.ContentHash(30), prev.ModuleDepsHashes["m"])
}

func TestCompileTable_EqualDetectsDifference(t *testing.T) {
	a, err := LoadCompileTable(filepath.Join(t.TempDir(), "a.csv"))
	require.NoError(t, err)
	b, err := LoadCompileTable(filepath.Join(t.TempDir(), "b.csv"))
	require.NoError(t, err)

	a.Put(model.CompiledFile{InputPath: "a.f90", SourceHash: 1})
	b.Put(model.CompiledFile{InputPath: "a.f90", SourceHash: 2})
	assert.False(t, a.Equal(b))
}

func TestLoadCompileTable_MissingFileIsEmptyNotError(t *testing.T) {
	tbl, err := LoadCompileTable(filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, err)
	_, ok := tbl.Previous("anything")
	assert.False(t, ok)
}
