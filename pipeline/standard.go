package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/docmill/docmill/backend"
	"github.com/docmill/docmill/docmodel"
)

// StandardPDF is the stock paginated pipeline: attach the page's arena
// entry, extract text cells, run heuristic layout analysis, assemble each
// page's reading order, then fold the assembled units into one document.
type StandardPDF struct {
	*Paginated
}

// NewStandardPDF wires the standard build chain.
func NewStandardPDF(opts Options, enrichment ...EnrichmentStage) *StandardPDF {
	p := &StandardPDF{}
	p.Paginated = NewPaginated(opts, PaginatedConfig{
		Name:     "standard_pdf",
		InitPage: initArenaPage,
		BuildPipe: []Stage{
			CellExtractionStage{},
			LayoutStage{},
			PageAssembleStage{},
		},
		Enrichment: enrichment,
	})
	p.Paginated.Base.self = p // assembly override must reach the lifecycle
	return p
}

// AssembleDocument folds per-page assembled units into the output document
// in page-index order, regardless of which batch finished first.
func (p *StandardPDF) AssembleDocument(ctx context.Context, in *InputDocument, res *ConversionResult) error {
	doc := docmodel.New(in.Name)
	for _, page := range res.Pages {
		doc.AddPage(page.No, page.Size)
		if page.Assembled == nil {
			continue
		}
		for _, el := range page.Assembled.Body {
			if err := addElement(doc, el); err != nil {
				return fmt.Errorf("page %d: %w", page.No, err)
			}
		}
	}
	res.Output = doc
	return nil
}

func addElement(doc *docmodel.Document, el PageElement) error {
	prov := docmodel.Provenance{PageNo: el.ElementPage()}
	switch e := el.(type) {
	case *TextElement:
		prov.CharSpan = [2]int{0, len(e.Text)}
		prov.BBox = e.Cluster.BBox
		if e.Label == docmodel.LabelSectionHeader {
			doc.AddHeading(e.Text, 1, nil, prov)
		} else {
			doc.AddText(e.Label, e.Text, nil, prov)
		}
	case *TableElement:
		prov.BBox = e.Cluster.BBox
		doc.AddTable(e.Data, nil, prov)
	case *FigureElement:
		prov.BBox = e.Cluster.BBox
		doc.AddPicture(&docmodel.PictureData{
			PredictedClass: e.PredictedClass,
			Confidence:     e.Confidence,
		}, nil, prov)
	default:
		return fmt.Errorf("unknown element kind %T", el)
	}
	return nil
}

// initArenaPage attaches the backend's arena entry for the page index.
func initArenaPage(ctx context.Context, in *InputDocument, page *Page) error {
	pg, ok := in.Backend().(backend.Paginated)
	if !ok {
		return fmt.Errorf("backend is not paginated")
	}
	handle, err := pg.Page(page.No)
	if err != nil {
		return err
	}
	page.AttachBackend(handle)
	return nil
}

// CellExtractionStage pulls primitive text cells out of each page's
// backend resource. Pages whose backend failed to parse keep an empty cell
// list; the status resolver reports them after the build phase.
type CellExtractionStage struct{}

func (CellExtractionStage) Name() string { return "cell_extraction" }

func (CellExtractionStage) ProcessPages(ctx context.Context, batch []*Page) ([]*Page, error) {
	for _, page := range batch {
		h := page.Backend()
		if h == nil || !h.IsValid() {
			continue
		}
		cells, err := h.TextCells()
		if err != nil {
			page.Fault = fmt.Errorf("cell extraction: %w", err)
			continue
		}
		page.Cells = cells
	}
	return batch, nil
}

// LayoutStage runs heuristic layout classification: one cluster per cell,
// labeled by shape. Short lead lines become section headers, bullet-like
// lines list items, bare page numbers page footers.
type LayoutStage struct{}

func (LayoutStage) Name() string { return "layout_analysis" }

func (LayoutStage) ProcessPages(ctx context.Context, batch []*Page) ([]*Page, error) {
	for _, page := range batch {
		pred := &LayoutPrediction{}
		for i, cell := range page.Cells {
			pred.Clusters = append(pred.Clusters, Cluster{
				ID:         i,
				Label:      classifyCell(cell.Text, i),
				BBox:       cell.BBox,
				Confidence: 1.0,
				Cells:      []backend.Cell{cell},
			})
		}
		page.Predictions.Layout = pred
	}
	return batch, nil
}

func classifyCell(text string, position int) docmodel.ItemLabel {
	trimmed := strings.TrimSpace(text)
	switch {
	case isPageNumber(trimmed):
		return docmodel.LabelPageFooter
	case strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "- "):
		return docmodel.LabelListItem
	case position == 0 && looksLikeHeading(trimmed):
		return docmodel.LabelSectionHeader
	default:
		return docmodel.LabelText
	}
}

func isPageNumber(s string) bool {
	if len(s) == 0 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func looksLikeHeading(s string) bool {
	return len(s) > 0 && len(s) <= 80 && !strings.HasSuffix(s, ".")
}

// PageAssembleStage turns layout clusters into the page's assembled unit,
// splitting page furniture (headers, footers) from body content.
type PageAssembleStage struct{}

func (PageAssembleStage) Name() string { return "page_assemble" }

func (PageAssembleStage) ProcessPages(ctx context.Context, batch []*Page) ([]*Page, error) {
	for _, page := range batch {
		if page.Predictions.Layout == nil {
			continue
		}
		unit := &AssembledUnit{}
		for _, cluster := range page.Predictions.Layout.Clusters {
			text := clusterText(cluster)
			el := &TextElement{BaseElement{
				ID:      cluster.ID,
				PageNo:  page.No,
				Label:   cluster.Label,
				Cluster: cluster,
				Text:    text,
			}}
			unit.Elements = append(unit.Elements, el)
			switch cluster.Label {
			case docmodel.LabelPageHeader, docmodel.LabelPageFooter:
				unit.Headers = append(unit.Headers, el)
			default:
				unit.Body = append(unit.Body, el)
			}
		}
		page.Assembled = unit
	}
	return batch, nil
}

func clusterText(c Cluster) string {
	parts := make([]string, 0, len(c.Cells))
	for _, cell := range c.Cells {
		parts = append(parts, cell.Text)
	}
	return strings.Join(parts, " ")
}
