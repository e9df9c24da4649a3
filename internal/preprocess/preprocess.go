// Package preprocess drives the external C/Fortran preprocessor: one
// invocation per file, with artefact reuse.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/latticeforge/fcbuild/internal/common"
	"github.com/latticeforge/fcbuild/internal/model"
	"github.com/latticeforge/fcbuild/internal/pathflags"
	"github.com/latticeforge/fcbuild/internal/procrunner"
)

// Job describes one file to preprocess.
type Job struct {
	Input  model.SourcePath
	Output string
}

// Driver invokes an external preprocessor per Job.
type Driver struct {
	Tool           string
	ExtraFlags     []string // e.g. the cpp-as-fpp fallback's "-traditional-cpp -P"
	Flags          *pathflags.Resolver
	ReuseArtefacts bool
	NProcs         int
}

// Run preprocesses every job, in parallel, up to NProcs at a time. Errors
// from individual invocations are collected, not raised eagerly; the phase
// as a whole fails only after every job has been attempted.
func (d *Driver) Run(ctx context.Context, jobs []Job) ([]model.SourcePath, error) {
	outputs := make([]model.SourcePath, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if d.NProcs > 0 {
		g.SetLimit(d.NProcs)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if d.ReuseArtefacts {
				if _, statErr := os.Stat(job.Output); statErr == nil {
					outputs[i] = model.SourcePath{Path: job.Output, Lang: job.Input.Lang}
					return nil
				}
			}

			if err := common.MkdirForFile(job.Output); err != nil {
				errs[i] = fmt.Errorf("preprocessing %s: %w", job.Input.Path, err)
				return nil
			}

			// Reserve a collision-free scratch name next to the final
			// output so two workers racing on a shared directory
			// never clobber each other's in-progress write; the tool
			// writes the temp path and a successful run is published with
			// one rename.
			tmp, err := common.OpenTempFile(job.Output)
			if err != nil {
				errs[i] = fmt.Errorf("preprocessing %s: %w", job.Input.Path, err)
				return nil
			}
			tmpPath := tmp.Name()
			tmp.Close()

			flags := d.Flags.FlagsFor("preprocessor", job.Input.Path)
			args := append(append(append([]string{}, d.ExtraFlags...), flags...), job.Input.Path, tmpPath)

			res, err := procrunner.Run(gctx, procrunner.Invocation{Tool: d.Tool, Args: args})
			if err != nil {
				os.Remove(tmpPath)
				errs[i] = fmt.Errorf("preprocessing %s: %w", job.Input.Path, err)
				return nil
			}
			if !res.Succeeded() {
				os.Remove(tmpPath)
				errs[i] = fmt.Errorf("preprocessing %s: exit %d: %s", job.Input.Path, res.ExitCode, res.Stderr)
				return nil
			}

			if err := os.Rename(tmpPath, job.Output); err != nil {
				errs[i] = fmt.Errorf("preprocessing %s: publishing output: %w", job.Input.Path, err)
				return nil
			}

			outputs[i] = model.SourcePath{Path: job.Output, Lang: job.Input.Lang}
			return nil
		})
	}

	_ = g.Wait() // errors are collected per-job above, not propagated through the group

	var collected []error
	for _, e := range errs {
		if e != nil {
			collected = append(collected, e)
		}
	}
	if len(collected) > 0 {
		return nil, fmt.Errorf("preprocessing failed for %d file(s): %w", len(collected), errors.Join(collected...))
	}
	return outputs, nil
}
