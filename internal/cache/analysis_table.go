// Package cache persists the analysis table and compilation table, the
// only state carried between runs, as row-oriented CSV files.
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

var analysisTableHeader = []string{"path", "file_hash", "symbol_defs", "symbol_deps", "file_deps", "commented_file_deps"}

func joinSet(s model.StringSet) string {
	if len(s) == 0 {
		return ""
	}
	return strings.Join(s.Sorted(), ";")
}

func splitSet(s string) model.StringSet {
	if s == "" {
		return model.NewStringSet()
	}
	return model.NewStringSet(strings.Split(s, ";")...)
}

// AnalysisTable is the persisted store of AnalysedFile rows. A single
// AnalysisTable is opened once per run: LoadPrevious partitions the
// hashed-file set into reused rows and a to-analyse set, then Append is
// called once per file as the Analyser completes it, so a crash mid-run
// loses no already-analysed work.
type AnalysisTable struct {
	path string

	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	written []model.AnalysedFile // everything carried over + newly appended, for the next run's full rewrite
}

// LoadPrevious reads the previous run's analysis table (if any) and
// partitions hashed against it: rows whose path is no longer in hashed are
// dropped; rows whose file_hash still matches are reused; the rest (plus
// any path in hashed with no prior row) become the to-analyse set.
func LoadPrevious(path string, hashed []model.HashedSource) (reused []*model.AnalysedFile, toAnalyse []model.HashedSource, err error) {
	prevRows, err := readAnalysisTable(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	byPath := make(map[string]*model.AnalysedFile, len(prevRows))
	for i := range prevRows {
		byPath[prevRows[i].Path] = &prevRows[i]
	}

	for _, h := range hashed {
		prev, ok := byPath[h.Path]
		if ok && prev.FileHash == h.ContentHash {
			// Lang is not a persisted column; it is a pure function of the
			// path, so it is restored from the current walk rather than the
			// stored row.
			prev.Lang = h.Lang
			reused = append(reused, prev)
			continue
		}
		toAnalyse = append(toAnalyse, h)
	}

	return reused, toAnalyse, nil
}

func readAnalysisTable(path string) ([]model.AnalysedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) != len(analysisTableHeader) {
		return nil, fmt.Errorf("analysis table %s: unexpected column count %d", path, len(header))
	}

	var rows []model.AnalysedFile
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		h, err := hashutil.ParseContentHash(rec[1])
		if err != nil {
			return nil, fmt.Errorf("analysis table %s: bad file_hash %q: %w", path, rec[1], err)
		}
		rows = append(rows, model.AnalysedFile{
			Path:              rec[0],
			FileHash:          h,
			SymbolDefs:        splitSet(rec[2]),
			SymbolDeps:        splitSet(rec[3]),
			FileDeps:          splitSet(rec[4]),
			CommentedFileDeps: splitSet(rec[5]),
		})
	}
	return rows, nil
}

// Open opens path for incremental append, rewriting it from the reused
// rows carried over from the previous run.
func Open(path string, reused []*model.AnalysedFile) (*AnalysisTable, error) {
	if err := common.MkdirForFile(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	t := &AnalysisTable{path: path, file: f, writer: csv.NewWriter(f)}
	if err := t.writer.Write(analysisTableHeader); err != nil {
		return nil, err
	}

	for _, r := range reused {
		if err := t.appendLocked(*r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Append writes one row and flushes immediately, so a crash mid-run does
// not lose already-analysed progress.
func (t *AnalysisTable) Append(f model.AnalysedFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(f)
}

func (t *AnalysisTable) appendLocked(f model.AnalysedFile) error {
	row := []string{
		f.Path,
		f.FileHash.String(),
		joinSet(f.SymbolDefs),
		joinSet(f.SymbolDeps),
		joinSet(f.FileDeps),
		joinSet(f.CommentedFileDeps),
	}
	if err := t.writer.Write(row); err != nil {
		return err
	}
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		return err
	}
	t.written = append(t.written, f)
	return nil
}

// Close flushes and closes the underlying file.
func (t *AnalysisTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writer.Flush()
	return t.file.Close()
}

// AllRows returns every row written this run (reused + newly analysed),
// sorted by path for deterministic downstream processing.
func (t *AnalysisTable) AllRows() []*model.AnalysedFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*model.AnalysedFile, len(t.written))
	for i := range t.written {
		out[i] = &t.written[i]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
