// Package linker is the thin front-end over the external archiver/linker
// tool: it collects object paths and invokes one command.
package linker

import (
	"context"
	"fmt"

	"github.com/latticeforge/fcbuild/internal/common"
	"github.com/latticeforge/fcbuild/internal/model"
	"github.com/latticeforge/fcbuild/internal/procrunner"
)

// Mode selects which external tool contract to invoke.
type Mode int

const (
	// ModeArchive invokes the Archiver CLI contract: `<ar> cr <archive> <objects...>`.
	ModeArchive Mode = iota
	// ModeExecutable links through the Fortran compiler front-end, since
	// most Fortran toolchains link through the compiler, not `ld` directly.
	ModeExecutable
)

// Front is the linker/archiver front-end.
type Front struct {
	Mode       Mode
	Tool       string   // "ar" for ModeArchive, the Fortran compiler for ModeExecutable
	ExtraFlags []string // common_flags filtered to the "link" path_filter bucket
}

// Link collects objects (already in wave-completion order) and invokes the
// configured tool, returning the produced archive/executable path.
func (f *Front) Link(ctx context.Context, objects []model.CompiledFile, outputPath string) (*model.ArchiveManifest, error) {
	if err := common.MkdirForFile(outputPath); err != nil {
		return nil, err
	}

	paths := make([]string, len(objects))
	for i, o := range objects {
		paths[i] = o.OutputPath
	}

	var args []string
	switch f.Mode {
	case ModeArchive:
		args = append([]string{"cr", outputPath}, paths...)
	case ModeExecutable:
		args = append(append([]string{"-o", outputPath}, paths...), f.ExtraFlags...)
	default:
		return nil, fmt.Errorf("linker: unknown mode %d", f.Mode)
	}

	res, err := procrunner.Run(ctx, procrunner.Invocation{Tool: f.Tool, Args: args})
	if err != nil {
		return nil, fmt.Errorf("linking %s: %w", outputPath, err)
	}
	if !res.Succeeded() {
		return nil, fmt.Errorf("linking %s: exit %d: %s", outputPath, res.ExitCode, res.Stderr)
	}

	return &model.ArchiveManifest{
		OutputPath: outputPath,
		Tool:       f.Tool,
		Objects:    paths,
		ExtraFlags: f.ExtraFlags,
	}, nil
}
