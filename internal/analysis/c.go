package analysis

import (
	"regexp"
	"strings"

	"github.com/latticeforge/fcbuild/internal/model"
)

// cDefRe matches a top-level function definition: a return type, a name,
// a parenthesised argument list, and an opening brace, allowing the
// argument list to span lines (preprocessed C has no line continuations
// left to worry about, but wrapped signatures are common).
var cDefRe = regexp.MustCompile(`(?m)^[A-Za-z_][\w\s\*]*?\b(\w+)\s*\([^;{}]*\)\s*\{`)

// cCallRe matches a call-shaped token: an identifier immediately followed
// by '('. Keywords that share this shape are filtered out in Extract.
var cCallRe = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)

var cKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "return": {},
	"sizeof": {}, "do": {}, "else": {}, "static": {}, "inline": {},
	"typedef": {}, "struct": {}, "union": {}, "enum": {},
}

// CExtractor scans preprocessed C for top-level function definitions and
// call-shaped references to other symbols, plus "DEPENDS ON:" comment
// hints. Headers are already inlined by the time this runs, so there is no
// preprocessor directive handling here.
type CExtractor struct{}

func (CExtractor) CanHandle(lang model.Language) bool { return lang == model.LangC }

func (CExtractor) Extract(content []byte) (Extracted, error) {
	text := string(content)

	defs := model.NewStringSet()
	for _, m := range cDefRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, isKeyword := cKeywords[name]; isKeyword {
			continue
		}
		defs.Add(name)
	}

	deps := model.NewStringSet()
	for _, m := range cCallRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, isKeyword := cKeywords[name]; isKeyword {
			continue
		}
		if defs.Has(name) {
			continue
		}
		deps.Add(name)
	}

	var commented []string
	for _, line := range strings.Split(text, "\n") {
		if m := dependsOnRe.FindStringSubmatch(line); m != nil {
			commented = append(commented, parseDependsOnList(m[1])...)
		}
	}

	return Extracted{
		SymbolDefs:        defs.Sorted(),
		SymbolDeps:        deps.Sorted(),
		CommentedFileDeps: commented,
	}, nil
}
