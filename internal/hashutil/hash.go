// Package hashutil computes the stable content hashes the engine uses to
// detect source and artifact changes between runs.
package hashutil

import (
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ContentHash is a 64-bit xxhash content hash, serialised as a decimal
// integer in the persisted tables.
type ContentHash uint64

func (h ContentHash) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// ParseContentHash decodes a decimal string produced by String.
func ParseContentHash(s string) (ContentHash, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ContentHash(v), nil
}

// HashBytes hashes an in-memory buffer, e.g. an assembled flag list.
func HashBytes(b []byte) ContentHash {
	return ContentHash(xxhash.Sum64(b))
}

// HashStrings hashes an ordered sequence of strings, each length-prefixed
// so that ("ab","c") and ("a","bc") never collide.
func HashStrings(parts []string) ContentHash {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.Write([]byte{byte(len(p)), byte(len(p) >> 8)})
		_, _ = h.Write([]byte(p))
	}
	return ContentHash(h.Sum64())
}

// FileHasher computes content hashes of files on disk, memoizing results by
// path within a single run so a path hashed twice is only read once. The
// memo key is the path string as given, so a symlink and its real path are
// read and cached separately.
type FileHasher struct {
	mu    sync.RWMutex
	cache map[string]ContentHash
}

// NewFileHasher returns a FileHasher ready for use.
func NewFileHasher() *FileHasher {
	return &FileHasher{cache: make(map[string]ContentHash)}
}

// HashFile returns the content hash of the file at path, using the
// per-run memoization cache.
func (fh *FileHasher) HashFile(path string) (ContentHash, error) {
	fh.mu.RLock()
	if h, ok := fh.cache[path]; ok {
		fh.mu.RUnlock()
		return h, nil
	}
	fh.mu.RUnlock()

	h, err := hashFileImpl(path)
	if err != nil {
		return 0, err
	}

	fh.mu.Lock()
	fh.cache[path] = h
	fh.mu.Unlock()
	return h, nil
}

func hashFileImpl(path string) (ContentHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return ContentHash(h.Sum64()), nil
}
