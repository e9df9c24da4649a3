// Package symtab builds the symbol table: a fold over every analysed
// file's symbol_defs into a single symbol -> path mapping.
package symtab

import (
	"strings"

	"github.com/latticeforge/fcbuild/internal/model"
)

// Duplicate records a duplicate-definition warning: two files defining the
// same symbol, first-seen wins.
type Duplicate struct {
	Symbol        string
	KeptPath      string
	DiscardedPath string
}

// SymbolTable maps a lower-cased symbol name to the path of the file that
// defines it. Fortran names compare case-insensitively.
type SymbolTable struct {
	definers map[string]string
}

// New builds an empty SymbolTable.
func New() *SymbolTable {
	return &SymbolTable{definers: make(map[string]string)}
}

// Build folds every AnalysedFile.SymbolDefs into the table, first-definer-
// wins, returning the duplicate warnings encountered. Iteration order over
// files must be stable for "first-seen" to be well defined, so callers pass
// files already ordered (by path) rather than, say, map iteration order.
func Build(files []*model.AnalysedFile) (*SymbolTable, []Duplicate) {
	st := New()
	var dups []Duplicate

	for _, f := range files {
		for _, sym := range f.SymbolDefs.Sorted() {
			key := strings.ToLower(sym)
			if existing, ok := st.definers[key]; ok {
				if existing != f.Path {
					dups = append(dups, Duplicate{Symbol: sym, KeptPath: existing, DiscardedPath: f.Path})
				}
				continue
			}
			st.definers[key] = f.Path
		}
	}
	return st, dups
}

// Lookup returns the defining path for a symbol, case-insensitively.
func (st *SymbolTable) Lookup(symbol string) (string, bool) {
	p, ok := st.definers[strings.ToLower(symbol)]
	return p, ok
}

// Len returns the number of distinct symbols in the table.
func (st *SymbolTable) Len() int { return len(st.definers) }
