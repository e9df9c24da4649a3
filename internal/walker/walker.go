// Package walker enumerates a source tree and classifies files by
// extension.
package walker

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/latticeforge/fcbuild/internal/model"
)

// classifyExt maps a lowercased file extension to its Language.
func classifyExt(ext string) model.Language {
	switch ext {
	case ".c":
		return model.LangC
	case ".h":
		return model.LangHeader
	case ".f90", ".f95", ".f03", ".f08", ".f":
		return model.LangFortranPreprocessed
	case ".fpp", ".f90p", ".ftn", ".for":
		return model.LangFortranNeedsPreprocessing
	default:
		return model.LangOther
	}
}

// Skip is the set of skip rules applied against a path relative to root:
// exact basenames and doublestar globs are both honoured, the same glob
// vocabulary as the per-path flag configuration.
type Skip struct {
	Basenames map[string]struct{}
	Globs     []string
}

// NewSkip builds a Skip set from a flat list of basenames/globs. An entry
// containing any of '*', '/', '?' or '[' is treated as a glob; everything
// else, as an exact basename.
func NewSkip(entries []string) Skip {
	s := Skip{Basenames: make(map[string]struct{})}
	for _, e := range entries {
		if strings.ContainsAny(e, "*/?[") {
			s.Globs = append(s.Globs, e)
		} else {
			s.Basenames[e] = struct{}{}
		}
	}
	return s
}

func (s Skip) matches(relPath, base string) bool {
	if _, ok := s.Basenames[base]; ok {
		return true
	}
	for _, g := range s.Globs {
		if ok, _ := doublestar.Match(g, relPath); ok {
			return true
		}
	}
	return false
}

// Walk recursively visits root, returning every non-skipped file classified
// by extension. Output is not pre-grouped; callers that want files bucketed
// by language use Group.
func Walk(root string, skip Skip) ([]model.SourcePath, error) {
	var out []model.SourcePath

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relPath = path
		}
		base := filepath.Base(path)
		if skip.matches(relPath, base) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		out = append(out, model.SourcePath{Path: path, Lang: classifyExt(ext)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Group partitions sources by Language.
func Group(sources []model.SourcePath) map[model.Language][]model.SourcePath {
	grouped := make(map[model.Language][]model.SourcePath)
	for _, s := range sources {
		grouped[s.Lang] = append(grouped[s.Lang], s)
	}
	return grouped
}
