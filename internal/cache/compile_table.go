package cache

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/latticeforge/fcbuild/internal/common"
	"github.com/latticeforge/fcbuild/internal/hashutil"
	"github.com/latticeforge/fcbuild/internal/model"
)

var compileTableHeader = []string{"input_path", "output_path", "source_hash", "flags_hash", "module_deps_hashes"}

func joinModuleHashes(m map[string]hashutil.ContentHash) string {
	if len(m) == 0 {
		return ""
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, m[name].String()))
	}
	return strings.Join(parts, ";")
}

func splitModuleHashes(s string) (map[string]hashutil.ContentHash, error) {
	out := make(map[string]hashutil.ContentHash)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed module_deps_hashes entry %q", part)
		}
		h, err := hashutil.ParseContentHash(kv[1])
		if err != nil {
			return nil, fmt.Errorf("malformed module_deps_hashes entry %q: %w", part, err)
		}
		out[kv[0]] = h
	}
	return out, nil
}

// CompileTable is the persisted store of CompiledFile rows, written back
// in full at the end of the compile phase.
//
// Previous is read concurrently by every worker in a compile wave; Put is
// called only by the engine goroutine after a wave's workers have all
// returned, so the mutex only ever guards reads against that single serial
// writer.
type CompileTable struct {
	path string

	mu   sync.RWMutex
	rows map[string]model.CompiledFile // keyed by input path
}

// LoadCompileTable reads the previous run's compilation table, or returns
// an empty table if none exists yet.
func LoadCompileTable(path string) (*CompileTable, error) {
	t := &CompileTable{path: path, rows: make(map[string]model.CompiledFile)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) != len(compileTableHeader) {
		return nil, fmt.Errorf("compile table %s: unexpected column count %d", path, len(header))
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		sourceHash, err := hashutil.ParseContentHash(rec[2])
		if err != nil {
			return nil, err
		}
		flagsHash, err := hashutil.ParseContentHash(rec[3])
		if err != nil {
			return nil, err
		}
		modDeps, err := splitModuleHashes(rec[4])
		if err != nil {
			return nil, err
		}
		t.rows[rec[0]] = model.CompiledFile{
			InputPath:        rec[0],
			OutputPath:       rec[1],
			SourceHash:       sourceHash,
			FlagsHash:        flagsHash,
			ModuleDepsHashes: modDeps,
		}
	}
	return t, nil
}

// Previous returns the prior compile record for inputPath, if any.
func (t *CompileTable) Previous(inputPath string) (model.CompiledFile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[inputPath]
	return r, ok
}

// Put records the result of this run's compile decision for inputPath
// (whether it was actually recompiled or reused).
func (t *CompileTable) Put(cf model.CompiledFile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[cf.InputPath] = cf
}

// Save writes the full table, in full, at the end of the compile phase.
func (t *CompileTable) Save() error {
	if err := common.MkdirForFile(t.path); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(compileTableHeader); err != nil {
		return err
	}

	t.mu.RLock()
	paths := make([]string, 0, len(t.rows))
	for p := range t.rows {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		r := t.rows[p]
		row := []string{r.InputPath, r.OutputPath, r.SourceHash.String(), r.FlagsHash.String(), joinModuleHashes(r.ModuleDepsHashes)}
		if err := w.Write(row); err != nil {
			t.mu.RUnlock()
			return err
		}
	}
	t.mu.RUnlock()

	w.Flush()
	return w.Error()
}

// Equal reports whether this table's rows are identical to other's rows.
// A rerun with no source changes must reproduce the table exactly.
func (t *CompileTable) Equal(other *CompileTable) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	if len(t.rows) != len(other.rows) {
		return false
	}
	for path, row := range t.rows {
		o, ok := other.rows[path]
		if !ok || !compiledFilesEqual(row, o) {
			return false
		}
	}
	return true
}

func compiledFilesEqual(a, b model.CompiledFile) bool {
	if a.InputPath != b.InputPath || a.OutputPath != b.OutputPath || a.SourceHash != b.SourceHash || a.FlagsHash != b.FlagsHash {
		return false
	}
	if len(a.ModuleDepsHashes) != len(b.ModuleDepsHashes) {
		return false
	}
	for k, v := range a.ModuleDepsHashes {
		if b.ModuleDepsHashes[k] != v {
			return false
		}
	}
	return true
}
