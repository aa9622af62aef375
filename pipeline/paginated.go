package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docmill/docmill/backend"
)

// InitPageFunc attaches per-page backend resources to a fresh page record
// before the stage chain runs over it.
type InitPageFunc func(ctx context.Context, in *InputDocument, page *Page) error

// PaginatedConfig assembles a paginated pipeline: page initialization, the
// ordered build-phase stage chain, and optional enrichment stages.
type PaginatedConfig struct {
	Name       string
	InitPage   InitPageFunc
	BuildPipe  []Stage
	Enrichment []EnrichmentStage
}

// Paginated drives page-oriented backends through the batch engine: one
// page record per page, contiguous batches of PageBatchSize, at most
// PageBatchConcurrency batches in flight. Batch completion order is
// irrelevant — pages are identified by index — but the build phase drains
// every batch before assembly starts.
type Paginated struct {
	Base
	name      string
	initPage  InitPageFunc
	buildPipe []Stage
}

// NewPaginated creates a paginated pipeline from its configuration.
func NewPaginated(opts Options, cfg PaginatedConfig) *Paginated {
	p := &Paginated{
		name:      cfg.Name,
		initPage:  cfg.InitPage,
		buildPipe: cfg.BuildPipe,
	}
	p.Base = newBase(opts, p, cfg.Enrichment)
	return p
}

func (p *Paginated) Name() string { return p.name }

// IsBackendSupported accepts any backend exposing a page arena.
func (p *Paginated) IsBackendSupported(b backend.Backend) bool {
	_, ok := b.(backend.Paginated)
	return ok
}

// BuildDocument materializes one page record per page and runs every batch
// through the stage chain. Whatever happens, page records sever their arena
// views (snapshotting backend validity) before this method returns, so the
// backend can be torn down without dangling access.
func (p *Paginated) BuildDocument(ctx context.Context, in *InputDocument, res *ConversionResult) error {
	if _, ok := in.Backend().(backend.Paginated); !ok {
		return fmt.Errorf("backend for %s is not paginated; check the format configuration", in.Name)
	}

	for i := 0; i < in.PageCount(); i++ {
		res.Pages = append(res.Pages, NewPage(i))
	}

	batches, err := Chunk(res.Pages, p.opts.PageBatchSize)
	if err != nil {
		return err
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.PageBatchConcurrency)

	for _, batch := range batches {
		eg.Go(func() error {
			start := time.Now()
			if err := p.processBatch(gctx, in, res, batch); err != nil {
				return err
			}
			p.logger.Debug("page batch converted",
				"first_page", batch[0].No, "pages", len(batch), "took", time.Since(start))
			return nil
		})
	}

	err = eg.Wait()

	// Build phase is over: snapshot validity and release arena views on
	// every page, including pages an aborted batch never touched.
	for _, page := range res.Pages {
		page.ClearBackend()
	}

	return err
}

// processBatch initializes page resources, then chains the build stages.
// The chain output replaces records in the result by page index, so stages
// that return fresh records keep index identity.
func (p *Paginated) processBatch(ctx context.Context, in *InputDocument, res *ConversionResult, batch []*Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, page := range batch {
		if err := p.initPage(ctx, in, page); err != nil {
			return fmt.Errorf("initialize page %d: %w", page.No, err)
		}
	}

	out := batch
	var err error
	for _, stage := range p.buildPipe {
		out, err = stage.ProcessPages(ctx, out)
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if len(out) != len(batch) {
			return fmt.Errorf("stage %s: batch cardinality changed from %d to %d", stage.Name(), len(batch), len(out))
		}
	}

	for _, page := range out {
		if page.No < 0 || page.No >= len(res.Pages) {
			return fmt.Errorf("stage chain produced page index %d outside document", page.No)
		}
		res.Pages[page.No] = page
	}
	return nil
}

// DetermineStatus inspects the recorded backend validity and stage faults
// of every page. Each failed page appends one error item naming its index
// and downgrades the status to PARTIAL_SUCCESS. SUCCESS only survives a
// fully valid document; a FAILURE set by an earlier phase never reaches
// this resolver.
func (p *Paginated) DetermineStatus(in *InputDocument, res *ConversionResult) Status {
	status := StatusSuccess
	for _, page := range res.Pages {
		switch {
		case !page.BackendValid():
			res.AddError(ComponentBackend, p.name, fmt.Sprintf("Page %d failed to parse.", page.No))
			status = StatusPartialSuccess
		case page.Fault != nil:
			res.AddError(ComponentModel, p.name, fmt.Sprintf("Page %d: %v.", page.No, page.Fault))
			status = StatusPartialSuccess
		}
	}
	return status
}
