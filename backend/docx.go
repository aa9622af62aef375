package backend

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/docmill/docmill/docmodel"
)

// maxXMLDepth bounds element nesting in office XML parts. Deeply nested
// documents are XML bombs, not prose.
const maxXMLDepth = 256

// Docx is a declarative backend for Microsoft Word files
// (archive/zip → word/document.xml).
type Docx struct {
	data  []byte
	valid bool
}

// NewDocx validates the archive shape without parsing the document body.
func NewDocx(data []byte) (*Docx, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	b := &Docx{data: data}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			b.valid = true
			break
		}
	}
	return b, nil
}

func (b *Docx) IsValid() bool  { return b.valid }
func (b *Docx) Format() Format { return FormatDocx }
func (b *Docx) Unload()        { b.data = nil }

// Convert walks word/document.xml and builds headings, paragraphs and tables.
func (b *Docx) Convert(ctx context.Context, doc *docmodel.Document) error {
	if !b.valid {
		return fmt.Errorf("word/document.xml not found in archive")
	}
	zr, err := zip.NewReader(bytes.NewReader(b.data), int64(len(b.data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	rc, err := openZipMember(zr, "word/document.xml")
	if err != nil {
		return err
	}
	defer rc.Close()

	return walkDocxBody(rc, doc)
}

func openZipMember(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

func walkDocxBody(r io.Reader, doc *docmodel.Document) error {
	decoder := xml.NewDecoder(r)

	var (
		depth          int
		inParagraph    bool
		inTable        int
		paragraphStyle string
		currentText    strings.Builder
		sawTitle       bool

		tableRows [][]string
		rowCells  []string
		cellText  strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return fmt.Errorf("document.xml: nesting depth exceeds %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "tbl":
				inTable++
				tableRows = nil
			case "tr":
				rowCells = nil
			case "tc":
				cellText.Reset()
			case "p":
				if inTable == 0 {
					inParagraph = true
					currentText.Reset()
					paragraphStyle = ""
				}
			case "pStyle":
				if inParagraph {
					for _, attr := range t.Attr {
						if attr.Name.Local == "val" {
							paragraphStyle = attr.Value
						}
					}
				}
			}

		case xml.CharData:
			if inTable > 0 {
				cellText.Write(t)
			} else if inParagraph {
				currentText.Write(t)
			}

		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "tc":
				rowCells = append(rowCells, strings.TrimSpace(cellText.String()))
			case "tr":
				tableRows = append(tableRows, rowCells)
			case "tbl":
				inTable--
				if inTable == 0 {
					if data := tableFromRows(tableRows); data != nil {
						doc.AddTable(data, nil)
					}
				}
			case "p":
				if inTable > 0 || !inParagraph {
					continue
				}
				inParagraph = false
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}
				level := docxHeadingLevel(paragraphStyle)
				switch {
				case level > 0 && !sawTitle:
					sawTitle = true
					doc.AddText(docmodel.LabelTitle, text, nil)
				case level > 0:
					doc.AddHeading(text, level, nil)
				default:
					doc.AddText(docmodel.LabelParagraph, text, nil)
				}
			}
		}
	}

	return nil
}

// tableFromRows converts a raw cell grid into table data. Spans are not
// recoverable from flattened rows, so every cell spans 1x1.
func tableFromRows(rows [][]string) *docmodel.TableData {
	if len(rows) == 0 {
		return nil
	}
	numCols := 0
	for _, r := range rows {
		if len(r) > numCols {
			numCols = len(r)
		}
	}
	if numCols == 0 {
		return nil
	}
	data := &docmodel.TableData{NumRows: len(rows), NumCols: numCols}
	empty := true
	for ri, row := range rows {
		for ci, text := range row {
			if text != "" {
				empty = false
			}
			data.Cells = append(data.Cells, docmodel.TableCell{
				Text:      text,
				RowSpan:   1,
				ColSpan:   1,
				StartRow:  ri,
				StartCol:  ci,
				ColHeader: ri == 0,
			})
		}
	}
	if empty {
		return nil
	}
	return data
}

// docxHeadingLevel extracts the heading level from a paragraph style name.
// e.g. "Heading1" → 1, "Heading2" → 2, "Title" → 1, etc.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)

	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}

	// "Heading1", "heading1", "Titre1", etc.
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
