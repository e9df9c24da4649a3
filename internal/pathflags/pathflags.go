// Package pathflags resolves the per-path flag configuration: globs
// matched against a path relative to a configured root, concatenated after
// common flags, with $source/$output/$relative substitution.
package pathflags

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/latticeforge/fcbuild/internal/config"
)

// Resolver expands common_flags + matching path_flags rules for a given
// tool and file path.
type Resolver struct {
	sourceRoot  string
	outputRoot  string
	commonFlags map[string][]string
	pathFlags   map[string][]config.PathFlagRule
}

// NewResolver builds a Resolver from the relevant slice of RunConfig.
func NewResolver(sourceRoot, outputRoot string, commonFlags map[string][]string, pathFlags map[string][]config.PathFlagRule) *Resolver {
	return &Resolver{
		sourceRoot:  sourceRoot,
		outputRoot:  outputRoot,
		commonFlags: commonFlags,
		pathFlags:   pathFlags,
	}
}

// FlagsFor returns the fully expanded flag list for tool applied to path:
// common flags for that tool, then every matching path_filter rule's flags
// in declaration order, each substituted.
func (r *Resolver) FlagsFor(tool, path string) []string {
	rel, err := filepath.Rel(r.sourceRoot, path)
	if err != nil {
		rel = path
	}

	var out []string
	out = append(out, r.commonFlags[tool]...)

	for _, rule := range r.pathFlags[tool] {
		ok, _ := doublestar.Match(rule.PathFilter, rel)
		if !ok {
			continue
		}
		for _, flag := range rule.Flags {
			out = append(out, r.substitute(flag, rel))
		}
	}
	return out
}

// substitute expands $source/$output/$relative in a flag string. relPath is
// the file's path relative to the source root; $relative expands to its
// parent directory.
func (r *Resolver) substitute(flag, relPath string) string {
	flag = strings.ReplaceAll(flag, "$source", r.sourceRoot)
	flag = strings.ReplaceAll(flag, "$output", r.outputRoot)
	relDir := filepath.Dir(relPath)
	if relDir == "." {
		relDir = ""
	}
	flag = strings.ReplaceAll(flag, "$relative", relDir)
	return flag
}
