package pipeline

import (
	"image"

	"github.com/docmill/docmill/backend"
	"github.com/docmill/docmill/docmodel"
)

// Cluster is a group of cells carrying one layout role.
type Cluster struct {
	ID         int                  `json:"id"`
	Label      docmodel.ItemLabel   `json:"label"`
	BBox       docmodel.BoundingBox `json:"bbox"`
	Confidence float64              `json:"confidence"`
	Cells      []backend.Cell       `json:"cells,omitempty"`
}

// BaseElement is the part every assembled page element shares.
type BaseElement struct {
	ID      int                `json:"id"`
	PageNo  int                `json:"page_no"`
	Label   docmodel.ItemLabel `json:"label"`
	Cluster Cluster            `json:"cluster"`
	Text    string             `json:"text,omitempty"`
}

func (e *BaseElement) ElementID() int                   { return e.ID }
func (e *BaseElement) ElementPage() int                 { return e.PageNo }
func (e *BaseElement) ElementLabel() docmodel.ItemLabel { return e.Label }

// PageElement is any element an assembled page can hold.
type PageElement interface {
	ElementID() int
	ElementPage() int
	ElementLabel() docmodel.ItemLabel
}

// TextElement is a text-bearing assembled element.
type TextElement struct {
	BaseElement
}

// TableElement is a recognized table with grid structure.
type TableElement struct {
	BaseElement
	Data *docmodel.TableData `json:"data,omitempty"`
}

// FigureElement is a classified figure.
type FigureElement struct {
	BaseElement
	PredictedClass string  `json:"predicted_class,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// LayoutPrediction holds layout clusters for one page.
type LayoutPrediction struct {
	Clusters []Cluster `json:"clusters"`
}

// TableStructurePrediction maps cluster IDs to recognized tables.
type TableStructurePrediction struct {
	TableMap map[int]*TableElement `json:"table_map"`
}

// FigureClassificationPrediction maps cluster IDs to classified figures.
type FigureClassificationPrediction struct {
	FigureCount int                    `json:"figure_count"`
	FigureMap   map[int]*FigureElement `json:"figure_map"`
}

// EquationPrediction maps cluster IDs to detected equations.
type EquationPrediction struct {
	EquationCount int                  `json:"equation_count"`
	EquationMap   map[int]*TextElement `json:"equation_map"`
}

// Predictions carries the independently-optional per-page model outputs.
type Predictions struct {
	Layout         *LayoutPrediction               `json:"layout,omitempty"`
	TableStructure *TableStructurePrediction       `json:"tablestructure,omitempty"`
	Figures        *FigureClassificationPrediction `json:"figures_classification,omitempty"`
	Equations      *EquationPrediction             `json:"equations_prediction,omitempty"`
}

// AssembledUnit is the per-page reading-order view, split into body and
// headers (page furniture).
type AssembledUnit struct {
	Elements []PageElement `json:"elements"`
	Body     []PageElement `json:"body"`
	Headers  []PageElement `json:"headers"`
}

// Page is the per-page mutable state traversed by the build-phase stage
// chain. The page index is assigned once and identifies the page for the
// document's lifetime; stages may reorder batches internally but never
// reassign indexes.
//
// Pages hold a non-owning view into the backend's page arena, valid only
// during the build phase. ClearBackend snapshots validity and severs the
// view so the arena can be torn down without dangling access.
type Page struct {
	No          int            `json:"page_no"`
	Size        docmodel.Size  `json:"size"`
	Cells       []backend.Cell `json:"cells,omitempty"`
	Predictions Predictions    `json:"predictions"`
	Assembled   *AssembledUnit `json:"assembled,omitempty"`

	// Fault records a page-scoped stage failure. The status resolver turns
	// it into an error item and downgrades the document, without aborting
	// sibling pages.
	Fault error `json:"-"`

	handle       backend.PageHandle
	backendValid bool
	initialized  bool
	imageCache   map[float64]image.Image
}

// NewPage creates an uninitialized record for the given 0-based index.
func NewPage(no int) *Page {
	return &Page{No: no}
}

// AttachBackend wires the page to its arena entry and records its size.
func (p *Page) AttachBackend(h backend.PageHandle) {
	p.handle = h
	p.initialized = true
	if h != nil {
		p.Size = h.Size()
	}
}

// Backend returns the page's arena view, nil once cleared.
func (p *Page) Backend() backend.PageHandle { return p.handle }

// ClearBackend snapshots backend validity and severs the arena view. Called
// once after the build phase; the snapshot is what the status resolver
// inspects.
func (p *Page) ClearBackend() {
	p.backendValid = p.initialized && p.handle != nil && p.handle.IsValid()
	p.handle = nil
}

// BackendValid reports whether the page's backend parsed successfully.
// Before ClearBackend it consults the live handle; afterwards, the snapshot.
func (p *Page) BackendValid() bool {
	if p.handle != nil {
		return p.handle.IsValid()
	}
	return p.backendValid
}

// Image renders the page at the given scale, serving repeated requests from
// the cache. After the backend view is cleared only cached scales remain.
func (p *Page) Image(scale float64) (image.Image, error) {
	if img, ok := p.imageCache[scale]; ok {
		return img, nil
	}
	if p.handle == nil {
		return nil, backend.ErrUnloaded
	}
	img, err := p.handle.Image(scale)
	if err != nil {
		return nil, err
	}
	if p.imageCache == nil {
		p.imageCache = make(map[float64]image.Image)
	}
	p.imageCache[scale] = img
	return img, nil
}

// ClearImageCache drops cached renders. The assemble phase calls it unless
// the pipeline is configured to retain page images.
func (p *Page) ClearImageCache() { p.imageCache = nil }
