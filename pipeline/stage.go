package pipeline

import (
	"context"

	"github.com/docmill/docmill/docmodel"
)

// Stage is one build-phase transformation: it consumes a batch of page
// records and returns a batch of the same cardinality, mutating records in
// place or replacing them while preserving index identity. Stages may
// parallelize internally; the engine never hands the same page to two
// stages concurrently.
type Stage interface {
	// Name identifies the stage in logs and error items.
	Name() string
	// ProcessPages transforms one page batch. A returned error is fatal to
	// the whole document.
	ProcessPages(ctx context.Context, batch []*Page) ([]*Page, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, batch []*Page) ([]*Page, error)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) ProcessPages(ctx context.Context, batch []*Page) ([]*Page, error) {
	return s.Fn(ctx, batch)
}

// EnrichmentStage operates on the assembled document after the build phase.
// The engine filters the document's items through IsProcessable in a single
// in-order traversal, groups survivors into batches, and calls ProcessBatch
// once per batch.
//
// Enrichment mutates items in place through the shared pointers it is
// handed; there is no replace-item channel. This is a documented limitation
// of the contract, and stages must finish all mutation before returning.
type EnrichmentStage interface {
	// Name identifies the stage in logs and error items.
	Name() string
	// IsProcessable reports whether the stage wants this item. The
	// predicate must be pure: calling it twice over an unmodified document
	// yields the same element set.
	IsProcessable(doc *docmodel.Document, item *docmodel.Item) bool
	// ProcessBatch enriches one batch of items in place.
	ProcessBatch(ctx context.Context, doc *docmodel.Document, batch []*docmodel.Item) error
}
