package analysis

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/latticeforge/fcbuild/internal/model"
)

// Outcome is the per-file result of running the Analyser: exactly one of
// File set, Empty true, or Err set.
type Outcome struct {
	File  *model.AnalysedFile
	Empty bool
	Err   error
}

// Analyser runs the extractor registry over a set of to-analyse files.
type Analyser struct {
	Registry *Registry
	NProcs   int

	// OnResult, if set, is invoked synchronously (from the engine's single
	// writer goroutine) as each file's analysis completes, so the caller
	// can append to the analysis table incrementally.
	OnResult func(model.AnalysedFile)
}

// Run analyses every file in toAnalyse, fanning out over NProcs workers.
// Parse failures are collected as warnings and do not abort the phase.
func (a *Analyser) Run(ctx context.Context, toAnalyse []model.HashedSource) (*model.PhaseReport, error) {
	report := &model.PhaseReport{Phase: "analyse", ItemsTotal: len(toAnalyse)}

	results := make(chan Outcome)
	var resultsWG sync.WaitGroup
	resultsWG.Add(1)
	go func() {
		defer resultsWG.Done()
		for o := range results {
			switch {
			case o.Err != nil:
				report.Warnings = append(report.Warnings, o.Err.Error())
			case o.Empty:
				// nothing to record
			default:
				report.ItemsProcessed++
				if a.OnResult != nil {
					a.OnResult(*o.File)
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	if a.NProcs > 0 {
		g.SetLimit(a.NProcs)
	}

	for _, hs := range toAnalyse {
		hs := hs
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			results <- a.analyseOne(hs)
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	resultsWG.Wait()

	return report, nil
}

func (a *Analyser) analyseOne(hs model.HashedSource) Outcome {
	content, err := os.ReadFile(hs.Path)
	if err != nil {
		return Outcome{Err: fmt.Errorf("reading %s: %w", hs.Path, err)}
	}
	if len(content) == 0 {
		return Outcome{Empty: true}
	}

	extractor := a.Registry.ExtractorFor(hs.Lang)
	if extractor == nil {
		return Outcome{Err: fmt.Errorf("analysing %s: no extractor for %s", hs.Path, hs.Lang)}
	}

	extracted, err := extractor.Extract(content)
	if err != nil {
		return Outcome{Err: fmt.Errorf("analysing %s: %w", hs.Path, err)}
	}

	file := model.AnalysedFile{
		Path:              hs.Path,
		FileHash:          hs.ContentHash,
		SymbolDefs:        model.NewStringSet(extracted.SymbolDefs...),
		SymbolDeps:        model.NewStringSet(extracted.SymbolDeps...),
		FileDeps:          model.NewStringSet(), // populated by the resolver
		CommentedFileDeps: model.NewStringSet(extracted.CommentedFileDeps...),
		Lang:              hs.Lang,
	}
	return Outcome{File: &file}
}
