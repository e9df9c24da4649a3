package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/fcbuild/internal/model"
)

func defs(path string, symbols ...string) *model.AnalysedFile {
	return &model.AnalysedFile{Path: path, SymbolDefs: model.NewStringSet(symbols...)}
}

func TestBuild_CaseInsensitiveLookup(t *testing.T) {
	st, dups := Build([]*model.AnalysedFile{defs("m.f90", "Thermo_Core")})
	assert.Empty(t, dups)

	for _, name := range []string{"thermo_core", "THERMO_CORE", "Thermo_Core"} {
		p, ok := st.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "m.f90", p)
	}
}

func TestBuild_FirstDefinerWinsAcrossCase(t *testing.T) {
	st, dups := Build([]*model.AnalysedFile{
		defs("a.f90", "solve"),
		defs("b.f90", "SOLVE"),
	})
	require.Len(t, dups, 1)
	assert.Equal(t, "a.f90", dups[0].KeptPath)
	assert.Equal(t, "b.f90", dups[0].DiscardedPath)

	p, ok := st.Lookup("solve")
	require.True(t, ok)
	assert.Equal(t, "a.f90", p)
}

func TestLookup_UnknownSymbol(t *testing.T) {
	st := New()
	_, ok := st.Lookup("ghost")
	assert.False(t, ok)
	assert.Zero(t, st.Len())
}
