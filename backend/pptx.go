package backend

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/docmill/docmill/docmodel"
)

// emuPerPoint converts English Metric Units (the PPTX native unit) to points.
const emuPerPoint = 12700

// PPTX is a declarative backend for PowerPoint files. Each slide becomes a
// chapter group holding titles, paragraphs, bullet lists, tables and
// picture placeholders, all with slide-indexed provenance.
type PPTX struct {
	data   []byte
	slides []string // zip member names, slide order
	valid  bool
}

// NewPPTX validates the archive shape and indexes the slide parts.
func NewPPTX(data []byte) (*PPTX, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	b := &PPTX{data: data}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			b.slides = append(b.slides, f.Name)
		}
	}
	sort.Slice(b.slides, func(i, j int) bool {
		return slideNumber(b.slides[i]) < slideNumber(b.slides[j])
	})
	b.valid = len(b.slides) > 0
	return b, nil
}

func slideNumber(name string) int {
	base := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, _ := strconv.Atoi(base)
	return n
}

func (b *PPTX) IsValid() bool  { return b.valid }
func (b *PPTX) Format() Format { return FormatPPTX }
func (b *PPTX) Unload()        { b.data = nil; b.slides = nil }

// Convert walks every slide in order, building one chapter group per slide.
func (b *PPTX) Convert(ctx context.Context, doc *docmodel.Document) error {
	if !b.valid {
		return fmt.Errorf("no slides found in archive")
	}
	zr, err := zip.NewReader(bytes.NewReader(b.data), int64(len(b.data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	size := presentationSize(zr)

	for i, name := range b.slides {
		rc, err := openZipMember(zr, name)
		if err != nil {
			return err
		}

		slide := doc.AddGroup(docmodel.GroupChapter, fmt.Sprintf("slide-%d", i), nil)
		doc.AddPage(i, size)

		err = walkSlide(rc, doc, slide, i)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// presentationSize reads the slide extent from ppt/presentation.xml,
// falling back to 16:9 defaults when absent.
func presentationSize(zr *zip.Reader) docmodel.Size {
	size := docmodel.Size{Width: 960, Height: 540}
	rc, err := openZipMember(zr, "ppt/presentation.xml")
	if err != nil {
		return size
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	for {
		tok, err := decoder.Token()
		if err != nil {
			return size
		}
		if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "sldSz" {
			for _, attr := range t.Attr {
				v, _ := strconv.ParseFloat(attr.Value, 64)
				switch attr.Name.Local {
				case "cx":
					size.Width = v / emuPerPoint
				case "cy":
					size.Height = v / emuPerPoint
				}
			}
			return size
		}
	}
}

// slideShape accumulates per-shape state while walking slide XML.
type slideShape struct {
	phType    string // title, ctrTitle, subTitle, body, ...
	bbox      docmodel.BoundingBox
	listGroup *docmodel.Item
}

func walkSlide(r io.Reader, doc *docmodel.Document, slide *docmodel.Item, slideIdx int) error {
	decoder := xml.NewDecoder(r)

	var (
		depth     int
		shape     *slideShape
		inPara    bool
		hasBullet bool
		paraText  strings.Builder

		inTable   int
		tableRows [][]string
		rowCells  []string
		cellText  strings.Builder
	)

	prov := func(text string) docmodel.Provenance {
		p := docmodel.Provenance{PageNo: slideIdx, CharSpan: [2]int{0, len(text)}}
		if shape != nil {
			p.BBox = shape.bbox
		}
		return p
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("slide xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return fmt.Errorf("slide xml: nesting depth exceeds %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "sp", "pic", "graphicFrame":
				shape = &slideShape{bbox: docmodel.BoundingBox{Origin: docmodel.TopLeft}}
			case "ph":
				if shape != nil {
					for _, attr := range t.Attr {
						if attr.Name.Local == "type" {
							shape.phType = attr.Value
						}
					}
				}
			case "off":
				if shape != nil {
					for _, attr := range t.Attr {
						v, _ := strconv.ParseFloat(attr.Value, 64)
						switch attr.Name.Local {
						case "x":
							shape.bbox.Left = v / emuPerPoint
						case "y":
							shape.bbox.Top = v / emuPerPoint
						}
					}
				}
			case "ext":
				if shape != nil {
					for _, attr := range t.Attr {
						v, _ := strconv.ParseFloat(attr.Value, 64)
						switch attr.Name.Local {
						case "cx":
							shape.bbox.Right = shape.bbox.Left + v/emuPerPoint
						case "cy":
							shape.bbox.Bottom = shape.bbox.Top + v/emuPerPoint
						}
					}
				}
			case "p":
				if inTable == 0 {
					inPara = true
					hasBullet = false
					paraText.Reset()
				}
			case "buChar", "buAutoNum":
				hasBullet = true
			case "pPr":
				for _, attr := range t.Attr {
					// Indented paragraphs are sub-list items.
					if attr.Name.Local == "lvl" && attr.Value != "0" {
						hasBullet = true
					}
				}
			case "tbl":
				inTable++
				tableRows = nil
			case "tr":
				rowCells = nil
			case "tc":
				cellText.Reset()
			}

		case xml.CharData:
			if inTable > 0 {
				cellText.Write(t)
			} else if inPara {
				paraText.Write(t)
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
						doc.AddTable(data, slide, prov(""))
					}
				}
			case "p":
				if inTable > 0 || !inPara {
					continue
				}
				inPara = false
				text := strings.TrimSpace(paraText.String())
				if text == "" {
					continue
				}
				emitSlideText(doc, slide, shape, text, hasBullet, prov(text))
			case "pic":
				doc.AddPicture(&docmodel.PictureData{}, slide, prov(""))
				shape = nil
			case "sp", "graphicFrame":
				shape = nil
			}
		}
	}
	return nil
}

func emitSlideText(doc *docmodel.Document, slide *docmodel.Item, shape *slideShape, text string, bullet bool, prov docmodel.Provenance) {
	phType := ""
	if shape != nil {
		phType = shape.phType
	}
	switch {
	case phType == "title" || phType == "ctrTitle":
		doc.AddText(docmodel.LabelTitle, text, slide, prov)
	case phType == "subTitle":
		doc.AddHeading(text, 2, slide, prov)
	case bullet && shape != nil:
		if shape.listGroup == nil {
			shape.listGroup = doc.AddGroup(docmodel.GroupList, "list", slide)
		}
		doc.AddText(docmodel.LabelListItem, text, shape.listGroup, prov)
	default:
		doc.AddText(docmodel.LabelParagraph, text, slide, prov)
	}
}
