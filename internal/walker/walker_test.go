package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/fcbuild/internal/model"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestWalk_ClassifiesByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.f90")
	writeFile(t, root, "b.c")
	writeFile(t, root, "c.h")
	writeFile(t, root, "legacy/d.for")
	writeFile(t, root, "readme.txt")

	sources, err := Walk(root, NewSkip(nil))
	require.NoError(t, err)
	require.Len(t, sources, 5)

	byLang := Group(sources)
	assert.Len(t, byLang[model.LangFortranPreprocessed], 1)
	assert.Len(t, byLang[model.LangC], 1)
	assert.Len(t, byLang[model.LangHeader], 1)
	assert.Len(t, byLang[model.LangFortranNeedsPreprocessing], 1)
	assert.Len(t, byLang[model.LangOther], 1)
}

func TestWalk_SkipsByExactBasename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.f90")
	writeFile(t, root, "generated.f90")

	sources, err := Walk(root, NewSkip([]string{"generated.f90"}))
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, filepath.Join(root, "keep.f90"), sources[0].Path)
}

func TestWalk_SkipsByGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/a.f90")
	writeFile(t, root, "src/b.f90")

	sources, err := Walk(root, NewSkip([]string{"vendor/**"}))
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, filepath.Join(root, "src/b.f90"), sources[0].Path)
}

func TestNewSkip_DistinguishesGlobFromBasename(t *testing.T) {
	s := NewSkip([]string{"exact.f90", "dir/*.f90"})
	_, isBasename := s.Basenames["exact.f90"]
	assert.True(t, isBasename)
	assert.Equal(t, []string{"dir/*.f90"}, s.Globs)
}
