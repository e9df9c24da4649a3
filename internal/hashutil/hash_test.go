package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_StringRoundTrip(t *testing.T) {
	h := HashBytes([]byte("hello"))
	parsed, err := ParseContentHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseContentHash_EmptyStringIsZero(t *testing.T) {
	h, err := ParseContentHash("")
	require.NoError(t, err)
	assert.Equal(t, ContentHash(0), h)
}

func TestHashStrings_NoConcatenationCollision(t *testing.T) {
	a := HashStrings([]string{"ab", "c"})
	b := HashStrings([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
}

func TestHashStrings_OrderSensitive(t *testing.T) {
	a := HashStrings([]string{"-O2", "-Wall"})
	b := HashStrings([]string{"-Wall", "-O2"})
	assert.NotEqual(t, a, b)
}

func TestFileHasher_MemoizesByPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	fh := NewFileHasher()
	h1, err := fh.HashFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0644))
	h2, err := fh.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "memoized result should not reflect the on-disk change")
}

func TestFileHasher_MissingFileIsError(t *testing.T) {
	fh := NewFileHasher()
	_, err := fh.HashFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
