// Package model holds the data types shared across every phase of the
// engine.
package model

import (
	"sort"

	"github.com/latticeforge/fcbuild/internal/hashutil"
)

// Language classifies a SourcePath for scheduling and extraction purposes.
type Language int

const (
	LangUnknown Language = iota
	LangC
	LangFortranPreprocessed
	LangFortranNeedsPreprocessing
	LangHeader
	LangOther
)

func (l Language) String() string {
	switch l {
	case LangC:
		return "c"
	case LangFortranPreprocessed:
		return "fortran-preprocessed"
	case LangFortranNeedsPreprocessing:
		return "fortran-needs-preprocessing"
	case LangHeader:
		return "header"
	default:
		return "other"
	}
}

// IsFortran reports whether this classification participates in Fortran
// module-dependency scheduling.
func (l Language) IsFortran() bool {
	return l == LangFortranPreprocessed || l == LangFortranNeedsPreprocessing
}

// SourcePath is one file discovered by the Walker, classified by suffix.
// Immutable once created.
type SourcePath struct {
	Path string
	Lang Language
}

// HashedSource is a SourcePath with its content hash attached, produced by
// the Hasher after preprocessing.
type HashedSource struct {
	SourcePath
	ContentHash hashutil.ContentHash
}

// StringSet is a deduplicated, order-independent set of names, serialised
// to a sorted, semicolon-joined string so CSV output is deterministic.
type StringSet map[string]struct{}

// NewStringSet builds a StringSet from a slice, dropping empty strings.
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		s[it] = struct{}{}
	}
	return s
}

// Add inserts a non-empty name into the set.
func (s StringSet) Add(name string) {
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

// Has reports set membership.
func (s StringSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the set's members in sorted order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Equal reports set equality.
func (s StringSet) Equal(other StringSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// AnalysedFile is the per-file output of the Analyser, and the row shape
// persisted to the analysis table.
type AnalysedFile struct {
	Path              string
	FileHash          hashutil.ContentHash
	SymbolDefs        StringSet
	SymbolDeps        StringSet
	FileDeps          StringSet // populated later, by the resolver
	CommentedFileDeps StringSet // basenames, e.g. "helper.o"
	Lang              Language
}

// CompiledFile is the per-file output of the Compile driver, and the row
// shape persisted to the compilation table.
type CompiledFile struct {
	InputPath        string
	OutputPath       string
	SourceHash       hashutil.ContentHash
	FlagsHash        hashutil.ContentHash
	ModuleDepsHashes map[string]hashutil.ContentHash
}

// PhaseReport is the aggregate result of one phase barrier: workers return
// results as values, the engine aggregates them.
type PhaseReport struct {
	Phase          string
	ItemsTotal     int
	ItemsReused    int
	ItemsProcessed int
	Warnings       []string
	Errs           []error
}

// Fatal reports whether this phase's errors should abort the run.
func (r *PhaseReport) Fatal() bool { return len(r.Errs) > 0 }

// ArchiveManifest is what the Linker front-end returns: what it invoked and
// with what inputs.
type ArchiveManifest struct {
	OutputPath string
	Tool       string
	Objects    []string
	ExtraFlags []string
}
