// Package docmodel defines the unified structured-document representation
// produced by the conversion pipeline.
//
// A Document is a tree of items (groups, text, tables, pictures) built
// incrementally through add-operations. Every add-operation returns the new
// item, usable as the parent of later additions. Items carry provenance
// records (page index, character span, bounding box) pointing back into the
// source document.
//
// Usage:
//
//	doc := docmodel.New("report")
//	ch := doc.AddGroup(docmodel.GroupChapter, "slide-0", nil)
//	doc.AddText(docmodel.LabelTitle, "Q3 Results", ch, prov)
package docmodel

import "iter"

// ItemLabel classifies a content item.
type ItemLabel string

const (
	LabelTitle         ItemLabel = "title"
	LabelSectionHeader ItemLabel = "section_header"
	LabelParagraph     ItemLabel = "paragraph"
	LabelText          ItemLabel = "text"
	LabelListItem      ItemLabel = "list_item"
	LabelCaption       ItemLabel = "caption"
	LabelTable         ItemLabel = "table"
	LabelPicture       ItemLabel = "picture"
	LabelFormula       ItemLabel = "formula"
	LabelPageHeader    ItemLabel = "page_header"
	LabelPageFooter    ItemLabel = "page_footer"
	LabelFootnote      ItemLabel = "footnote"
)

// GroupLabel classifies a container item.
type GroupLabel string

const (
	GroupList    GroupLabel = "list"
	GroupChapter GroupLabel = "chapter"
	GroupSection GroupLabel = "section"
)

// CoordOrigin indicates where a bounding box's origin sits.
type CoordOrigin string

const (
	TopLeft    CoordOrigin = "top_left"
	BottomLeft CoordOrigin = "bottom_left"
)

// BoundingBox is an axis-aligned rectangle in page coordinates.
type BoundingBox struct {
	Left   float64     `json:"l"`
	Top    float64     `json:"t"`
	Right  float64     `json:"r"`
	Bottom float64     `json:"b"`
	Origin CoordOrigin `json:"origin,omitempty"`
}

// Size is a page extent in points (or EMU for slide formats, normalized by
// the backend).
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Provenance links an item to its location in the source document.
type Provenance struct {
	PageNo   int         `json:"page_no"`
	CharSpan [2]int      `json:"charspan"`
	BBox     BoundingBox `json:"bbox"`
}

// TableCell is one cell of a table, with span and header information.
type TableCell struct {
	Text      string `json:"text"`
	RowSpan   int    `json:"row_span"`
	ColSpan   int    `json:"col_span"`
	StartRow  int    `json:"start_row"`
	StartCol  int    `json:"start_col"`
	RowHeader bool   `json:"row_header"`
	ColHeader bool   `json:"col_header"`
}

// TableData holds the grid content of a table item.
type TableData struct {
	NumRows int         `json:"num_rows"`
	NumCols int         `json:"num_cols"`
	Cells   []TableCell `json:"cells"`
}

// PictureData holds metadata for a picture item. Raster content stays with
// the source; the model records classification and caption only.
type PictureData struct {
	Caption        string  `json:"caption,omitempty"`
	PredictedClass string  `json:"predicted_class,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// Item is one node of the document tree. Enrichment stages mutate items in
// place through shared pointers; there is no replace-item operation.
type Item struct {
	ID      int          `json:"id"`
	Label   ItemLabel    `json:"label,omitempty"`
	Group   GroupLabel   `json:"group,omitempty"`
	Name    string       `json:"name,omitempty"`
	Text    string       `json:"text,omitempty"`
	Level   int          `json:"level,omitempty"` // heading level, 0 for body
	Table   *TableData   `json:"table,omitempty"`
	Picture *PictureData `json:"picture,omitempty"`
	Prov    []Provenance `json:"prov,omitempty"`

	parent   *Item
	children []*Item
}

// IsGroup reports whether the item is a container node.
func (it *Item) IsGroup() bool { return it.Group != "" }

// Parent returns the item's parent, nil for top-level items.
func (it *Item) Parent() *Item { return it.parent }

// Children returns the item's direct children in insertion order.
func (it *Item) Children() []*Item { return it.children }

// PageInfo records a page registered on the document.
type PageInfo struct {
	PageNo int  `json:"page_no"`
	Size   Size `json:"size"`
}

// Document is the assembled output of one conversion.
type Document struct {
	Name  string     `json:"name"`
	Pages []PageInfo `json:"pages,omitempty"`

	body   []*Item // top-level items in document order
	nextID int
}

// New creates an empty document.
func New(name string) *Document {
	return &Document{Name: name}
}

// AddPage registers a page and its size. Pages are kept in insertion order;
// backends register them in page-index order.
func (d *Document) AddPage(pageNo int, size Size) {
	d.Pages = append(d.Pages, PageInfo{PageNo: pageNo, Size: size})
}

func (d *Document) attach(it *Item, parent *Item) *Item {
	it.ID = d.nextID
	d.nextID++
	it.parent = parent
	if parent == nil {
		d.body = append(d.body, it)
	} else {
		parent.children = append(parent.children, it)
	}
	return it
}

// AddGroup adds a container node and returns it for use as a parent.
func (d *Document) AddGroup(label GroupLabel, name string, parent *Item) *Item {
	return d.attach(&Item{Group: label, Name: name}, parent)
}

// AddText adds a text node with the given label and provenance.
func (d *Document) AddText(label ItemLabel, text string, parent *Item, prov ...Provenance) *Item {
	return d.attach(&Item{Label: label, Text: text, Prov: prov}, parent)
}

// AddHeading adds a section header with an explicit level.
func (d *Document) AddHeading(text string, level int, parent *Item, prov ...Provenance) *Item {
	it := d.AddText(LabelSectionHeader, text, parent, prov...)
	it.Level = level
	return it
}

// AddTable adds a table node.
func (d *Document) AddTable(data *TableData, parent *Item, prov ...Provenance) *Item {
	return d.attach(&Item{Label: LabelTable, Table: data, Prov: prov}, parent)
}

// AddPicture adds a picture node.
func (d *Document) AddPicture(data *PictureData, parent *Item, prov ...Provenance) *Item {
	return d.attach(&Item{Label: LabelPicture, Picture: data, Prov: prov}, parent)
}

// Items yields every item of the document in depth-first document order.
// The traversal is lazy: consumers may stop early, and enrichment batching
// draws from it without materializing the whole tree.
func (d *Document) Items() iter.Seq[*Item] {
	return func(yield func(*Item) bool) {
		var walk func(items []*Item) bool
		walk = func(items []*Item) bool {
			for _, it := range items {
				if !yield(it) {
					return false
				}
				if !walk(it.children) {
					return false
				}
			}
			return true
		}
		walk(d.body)
	}
}

// Body returns the top-level items in document order.
func (d *Document) Body() []*Item { return d.body }

// Len returns the total number of items in the document.
func (d *Document) Len() int {
	n := 0
	for range d.Items() {
		n++
	}
	return n
}
