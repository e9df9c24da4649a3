// Package analysis implements the source analyser: for each preprocessed
// file it extracts the symbols the file defines, the symbols it depends
// on, and comment-embedded file dependency hints. Extraction is
// line-oriented scanning, not real parsing; an Extractor that wants a full
// parser can be registered without touching the callers.
package analysis

import (
	"github.com/latticeforge/fcbuild/internal/model"
)

// Extracted is the raw result of scanning one file's content, before the
// resolver turns symbol_deps into file_deps.
type Extracted struct {
	SymbolDefs        []string
	SymbolDeps        []string
	CommentedFileDeps []string // basenames ending in .o
}

// Extractor extracts symbol information from one file's preprocessed
// content.
type Extractor interface {
	CanHandle(lang model.Language) bool
	Extract(content []byte) (Extracted, error)
}

// Registry dispatches to the extractor registered for a file's language.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds the default Fortran+C registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			&FortranExtractor{},
			&CExtractor{},
		},
	}
}

// ExtractorFor returns the extractor that handles lang, or nil.
func (r *Registry) ExtractorFor(lang model.Language) Extractor {
	for _, e := range r.extractors {
		if e.CanHandle(lang) {
			return e
		}
	}
	return nil
}
