package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/docmill/docmill/backend"
	"github.com/docmill/docmill/docmodel"
)

// Pipeline converts one input document into a ConversionResult. Execute is
// synchronous from the caller's perspective; internally a pipeline may
// parallelize page batches.
type Pipeline interface {
	Execute(ctx context.Context, in *InputDocument) (*ConversionResult, error)
	// IsBackendSupported reports whether this pipeline can drive the given
	// backend. The converter consults it when wiring its dispatch table.
	IsBackendSupported(b backend.Backend) bool
}

// variant is the capability set a concrete pipeline plugs into the shared
// Execute lifecycle: how to build, how to judge the outcome, and optionally
// how to assemble (Base provides the identity default).
type variant interface {
	Name() string
	BuildDocument(ctx context.Context, in *InputDocument, res *ConversionResult) error
	AssembleDocument(ctx context.Context, in *InputDocument, res *ConversionResult) error
	DetermineStatus(in *InputDocument, res *ConversionResult) Status
	IsBackendSupported(b backend.Backend) bool
}

// Base carries the three-phase Execute lifecycle shared by every pipeline
// variant: build → assemble → enrich, then status resolution, with backend
// release guaranteed on every path that acquired one.
type Base struct {
	opts           Options
	logger         *slog.Logger
	enrichmentPipe []EnrichmentStage
	self           variant
}

func newBase(opts Options, self variant, enrichment []EnrichmentStage) Base {
	opts.defaults()
	return Base{
		opts:           opts,
		logger:         opts.Logger,
		enrichmentPipe: enrichment,
		self:           self,
	}
}

// Options returns the effective (defaulted) configuration.
func (b *Base) Options() Options { return b.opts }

// AssembleDocument is the identity assembly: pipelines whose build phase
// already produced the output document keep it as-is.
func (b *Base) AssembleDocument(ctx context.Context, in *InputDocument, res *ConversionResult) error {
	return nil
}

// Execute runs the full conversion lifecycle for one document.
//
// An invalid input short-circuits to FAILURE before any backend resource is
// touched. Otherwise the backend attached to the input is released exactly
// once, whether the phases succeed, fail, or the context is cancelled. A
// fault in any phase forces FAILURE; it is returned to the caller only when
// Options.RaisesOnError is set.
func (b *Base) Execute(ctx context.Context, in *InputDocument) (*ConversionResult, error) {
	res := &ConversionResult{Input: in, Status: StatusPending}

	b.logger.Info("processing document", "name", in.Name, "format", in.Format, "pipeline", b.self.Name())

	if !in.Valid() {
		res.Status = StatusFailure
		return res, nil
	}

	res.Status = StatusStarted
	defer in.Unload()

	err := b.runPhases(ctx, in, res)
	if err != nil {
		res.Status = StatusFailure
		b.logger.Warn("conversion failed", "name", in.Name, "hash", in.Hash, "error", err)
		if b.opts.RaisesOnError {
			return res, err
		}
		return res, nil
	}

	return res, nil
}

func (b *Base) runPhases(ctx context.Context, in *InputDocument, res *ConversionResult) error {
	if err := b.self.BuildDocument(ctx, in, res); err != nil {
		return err
	}
	if err := b.self.AssembleDocument(ctx, in, res); err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	if !b.opts.RetainPageImages {
		for _, page := range res.Pages {
			page.ClearImageCache()
		}
	}
	// From here on, everything operates on res.Output only.
	if err := b.enrichDocument(ctx, res); err != nil {
		return err
	}
	res.Status = b.self.DetermineStatus(in, res)
	return nil
}

// enrichDocument runs each enrichment stage over batches drawn from one
// lazy, in-order traversal of the assembled document, filtered by the
// stage's applicability predicate. Every batch is fully processed before
// the stage sees the next one.
func (b *Base) enrichDocument(ctx context.Context, res *ConversionResult) error {
	if res.Output == nil || len(b.enrichmentPipe) == 0 {
		return nil
	}
	for _, stage := range b.enrichmentPipe {
		filtered := func(yield func(*docmodel.Item) bool) {
			for it := range res.Output.Items() {
				if stage.IsProcessable(res.Output, it) {
					if !yield(it) {
						return
					}
				}
			}
		}
		for batch := range ChunkSeq(iter.Seq[*docmodel.Item](filtered), b.opts.ElementsBatchSize) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := stage.ProcessBatch(ctx, res.Output, batch); err != nil {
				return fmt.Errorf("enrich %s: %w", stage.Name(), err)
			}
		}
	}
	return nil
}
