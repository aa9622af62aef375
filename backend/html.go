package backend

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/docmill/docmill/docmodel"
)

// hiddenStylePatterns match inline styles that hide text from readers while
// keeping it extractable — a classic injection vector.
var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
	regexp.MustCompile(`(?i)position\s*:\s*absolute[^;]*-\d{4,}`),
}

// HTML is a declarative backend for HTML files. The source is parsed to drop
// hidden elements, sanitized, rendered to markdown, and the markdown
// structure is rebuilt as document items.
type HTML struct {
	data  []byte
	title string
	valid bool
	mdc   *converter.Converter
}

// NewHTML parses the document tree once to check validity and capture the
// <title>.
func NewHTML(data []byte) (*HTML, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTML{
		data:  data,
		title: findHTMLTitle(root),
		valid: true,
		mdc: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}, nil
}

func (b *HTML) IsValid() bool  { return b.valid }
func (b *HTML) Format() Format { return FormatHTML }
func (b *HTML) Unload()        { b.data = nil }

// Convert strips hidden elements, sanitizes, converts to markdown, and
// builds the document from the markdown structure.
func (b *HTML) Convert(ctx context.Context, doc *docmodel.Document) error {
	root, err := html.Parse(bytes.NewReader(b.data))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	removeHiddenNodes(root)

	var rendered bytes.Buffer
	if err := html.Render(&rendered, root); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	// Sanitizing after hidden-node removal: the UGC policy strips style
	// attributes, which the hidden checks need.
	clean := bluemonday.UGCPolicy().SanitizeBytes(rendered.Bytes())

	md, err := b.mdc.ConvertString(string(clean))
	if err != nil {
		return fmt.Errorf("html to markdown: %w", err)
	}

	if b.title != "" {
		doc.AddText(docmodel.LabelTitle, b.title, nil)
	}
	buildFromMarkdown(doc, md)
	return nil
}

func findHTMLTitle(root *html.Node) string {
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

func removeHiddenNodes(n *html.Node) {
	var c *html.Node
	for child := n.FirstChild; child != nil; child = c {
		c = child.NextSibling
		if hasHiddenStyle(child) {
			n.RemoveChild(child)
			continue
		}
		removeHiddenNodes(child)
	}
}

// buildFromMarkdown rebuilds document structure from markdown lines:
// ATX headings, bullet lists, pipe tables, images, and paragraphs.
func buildFromMarkdown(doc *docmodel.Document, md string) {
	lines := strings.Split(md, "\n")

	var (
		paragraph strings.Builder
		list      *docmodel.Item
		tableRows [][]string
	)

	flushParagraph := func() {
		text := strings.TrimSpace(paragraph.String())
		if text != "" {
			doc.AddText(docmodel.LabelParagraph, text, nil)
		}
		paragraph.Reset()
	}
	flushTable := func() {
		if data := tableFromRows(tableRows); data != nil {
			doc.AddTable(data, nil)
		}
		tableRows = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#"):
			flushParagraph()
			flushTable()
			list = nil
			level := 0
			for _, ch := range trimmed {
				if ch != '#' {
					break
				}
				level++
			}
			if level > 6 {
				level = 6
			}
			text := strings.TrimSpace(strings.Trim(trimmed, "# "))
			if text != "" {
				doc.AddHeading(text, level, nil)
			}

		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushParagraph()
			flushTable()
			if list == nil {
				list = doc.AddGroup(docmodel.GroupList, "list", nil)
			}
			doc.AddText(docmodel.LabelListItem, strings.TrimSpace(trimmed[2:]), list)

		case strings.HasPrefix(trimmed, "|"):
			flushParagraph()
			list = nil
			if isTableSeparator(trimmed) {
				continue
			}
			tableRows = append(tableRows, splitTableRow(trimmed))

		case strings.HasPrefix(trimmed, "!["):
			flushParagraph()
			flushTable()
			list = nil
			doc.AddPicture(&docmodel.PictureData{Caption: imageAlt(trimmed)}, nil)

		case trimmed == "":
			flushParagraph()
			flushTable()
			list = nil

		default:
			flushTable()
			list = nil
			if paragraph.Len() > 0 {
				paragraph.WriteByte(' ')
			}
			paragraph.WriteString(trimmed)
		}
	}
	flushParagraph()
	flushTable()
}

// isTableSeparator matches markdown header separators: | --- | :---: |
func isTableSeparator(line string) bool {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '|', '-', ':', ' ':
			return -1
		}
		return r
	}, line)
	return stripped == "" && strings.Contains(line, "-")
}

func splitTableRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

var imageAltRe = regexp.MustCompile(`!\[([^\]]*)\]`)

func imageAlt(line string) string {
	if m := imageAltRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}
