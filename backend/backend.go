// Package backend provides format-specific adapters that turn raw document
// bytes into page-level primitives or directly into a structured document.
//
// Two adapter shapes exist:
//
//   - Paginated backends (PDF) expose a page arena: per-page resources
//     addressed by index, valid until Unload tears the arena down.
//   - Declarative backends (DOCX, PPTX, HTML) walk the source once and build
//     the output document through the docmodel builder.
//
// All parsers are pure Go, CGO_ENABLED=0 compatible.
package backend

import (
	"context"
	"errors"
	"image"

	"github.com/docmill/docmill/docmodel"
)

// Format identifies an input document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatPPTX Format = "pptx"
	FormatHTML Format = "html"
)

// ErrUnloaded is returned when a page is requested after the backend's
// arena has been torn down.
var ErrUnloaded = errors.New("backend: resources unloaded")

// ErrNoRaster is returned by backends that cannot rasterize pages.
var ErrNoRaster = errors.New("backend: page rendering not supported")

// Cell is a primitive text element extracted from a page.
type Cell struct {
	ID   int                  `json:"id"`
	Text string               `json:"text"`
	BBox docmodel.BoundingBox `json:"bbox"`
}

// Backend is the minimal contract every format adapter fulfils. The
// conversion core calls Unload exactly once per document; implementations
// must tolerate (and ignore) later page access by returning ErrUnloaded.
type Backend interface {
	// IsValid reports whether the source parsed well enough to process.
	IsValid() bool
	// Format returns the input format this instance was built for.
	Format() Format
	// Unload releases all resources. Idempotent by contract.
	Unload()
}

// PageHandle is one entry of a paginated backend's page arena. Handles are
// non-owning views: they become unusable once the backend unloads.
type PageHandle interface {
	// IsValid reports whether this page parsed successfully.
	IsValid() bool
	// Size returns the page extent in points.
	Size() docmodel.Size
	// TextCells returns the page's primitive text elements.
	TextCells() ([]Cell, error)
	// Image renders the page at the given scale. Backends without a
	// rasterizer return ErrNoRaster.
	Image(scale float64) (image.Image, error)
}

// Paginated is a backend whose document decomposes into independently
// parseable pages.
type Paginated interface {
	Backend
	// PageCount returns the number of pages in the document.
	PageCount() int
	// Page returns the arena entry for the 0-based page index. After
	// Unload it returns ErrUnloaded; out-of-range indexes are an error.
	Page(index int) (PageHandle, error)
}

// Declarative is a backend that builds the output document in one pass,
// without page-level intermediate state.
type Declarative interface {
	Backend
	// Convert walks the source and populates doc through its builder
	// operations.
	Convert(ctx context.Context, doc *docmodel.Document) error
}
