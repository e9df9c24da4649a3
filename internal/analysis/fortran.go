package analysis

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/latticeforge/fcbuild/internal/model"
)

var (
	fortranDefRe  = regexp.MustCompile(`(?i)^\s*(?:recursive\s+)?(module|program|subroutine|function)\s+(\w+)`)
	fortranUseRe  = regexp.MustCompile(`(?i)^\s*use\s+(?:,\s*\w+\s*::\s*)?(\w+)`)
	fortranCallRe = regexp.MustCompile(`(?i)\bcall\s+(\w+)`)
	dependsOnRe   = regexp.MustCompile(`(?i)^\s*!\s*depends\s+on\s*:\s*(.+)$`)
)

// FortranExtractor scans preprocessed free-form Fortran for module/program/
// subroutine/function definitions, module USE statements, CALL references,
// and "DEPENDS ON:" comment hints.
type FortranExtractor struct{}

func (FortranExtractor) CanHandle(lang model.Language) bool { return lang.IsFortran() }

func (FortranExtractor) Extract(content []byte) (Extracted, error) {
	var out Extracted
	defs := model.NewStringSet()
	deps := model.NewStringSet()

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if m := fortranDefRe.FindStringSubmatch(line); m != nil {
			defs.Add(strings.ToLower(m[2]))
			continue
		}
		if m := fortranUseRe.FindStringSubmatch(line); m != nil {
			deps.Add(strings.ToLower(m[1]))
			continue
		}
		for _, m := range fortranCallRe.FindAllStringSubmatch(line, -1) {
			deps.Add(strings.ToLower(m[1]))
		}
		if m := dependsOnRe.FindStringSubmatch(line); m != nil {
			out.CommentedFileDeps = append(out.CommentedFileDeps, parseDependsOnList(m[1])...)
		}
	}
	if err := scanner.Err(); err != nil {
		return Extracted{}, err
	}

	out.SymbolDefs = defs.Sorted()
	out.SymbolDeps = deps.Sorted()
	return out, nil
}

// parseDependsOnList splits a "DEPENDS ON:" comment body into basenames,
// keeping only tokens that end in ".o".
func parseDependsOnList(body string) []string {
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if strings.HasSuffix(f, ".o") {
			out = append(out, f)
		}
	}
	return out
}
