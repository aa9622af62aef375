package backend

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/docmill/docmill/docmodel"
)

// PDF is a paginated backend over pdfcpu. Pages are parsed lazily on first
// access and cached in the arena; the whole arena dies with Unload.
type PDF struct {
	mu       sync.Mutex
	ctx      *model.Context
	dims     []docmodel.Size
	arena    []*pdfPage
	valid    bool
	unloaded bool
	once     sync.Once
}

// NewPDF parses the document structure (cross-reference table, page tree)
// without extracting any page content yet.
func NewPDF(rs io.ReadSeeker) (*PDF, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("pdfcpu page dims: %w", err)
	}
	sizes := make([]docmodel.Size, len(dims))
	for i, d := range dims {
		sizes[i] = docmodel.Size{Width: d.Width, Height: d.Height}
	}

	return &PDF{
		ctx:   ctx,
		dims:  sizes,
		arena: make([]*pdfPage, ctx.PageCount),
		valid: true,
	}, nil
}

func (b *PDF) IsValid() bool  { return b.valid }
func (b *PDF) Format() Format { return FormatPDF }

// PageCount returns the number of pages in the document.
func (b *PDF) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unloaded {
		return len(b.arena)
	}
	return b.ctx.PageCount
}

// Unload tears down the arena. Page handles obtained earlier keep their
// already-extracted cells but the backend hands out no new ones.
func (b *PDF) Unload() {
	b.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.unloaded = true
		b.ctx = nil
	})
}

// Page parses (or returns the cached) arena entry for a 0-based page index.
func (b *PDF) Page(index int) (PageHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.arena) {
		return nil, fmt.Errorf("page %d out of range (0..%d)", index, len(b.arena)-1)
	}
	if b.unloaded {
		return nil, ErrUnloaded
	}
	if p := b.arena[index]; p != nil {
		return p, nil
	}

	p := &pdfPage{size: b.sizeFor(index)}
	text, err := extractPageText(b.ctx, index+1) // pdfcpu pages are 1-based
	switch {
	case err != nil:
		p.valid = false
	case !textLooksValid(text):
		p.valid = false
	default:
		p.valid = true
		p.cells = cellsFromText(text, p.size)
	}
	b.arena[index] = p
	return p, nil
}

func (b *PDF) sizeFor(index int) docmodel.Size {
	if index < len(b.dims) {
		return b.dims[index]
	}
	return docmodel.Size{}
}

// pdfPage is one arena entry.
type pdfPage struct {
	size  docmodel.Size
	cells []Cell
	valid bool
}

func (p *pdfPage) IsValid() bool       { return p.valid }
func (p *pdfPage) Size() docmodel.Size { return p.size }

func (p *pdfPage) TextCells() ([]Cell, error) {
	if !p.valid {
		return nil, fmt.Errorf("page failed to parse")
	}
	return p.cells, nil
}

// Image is unsupported: pdfcpu has no rasterizer and this backend is pure Go.
func (p *pdfPage) Image(scale float64) (image.Image, error) {
	return nil, ErrNoRaster
}

// cellsFromText turns extracted text lines into cells with synthetic,
// top-down stacked bounding boxes. Content streams carry no reliable glyph
// geometry after flattening, so line order is the only layout signal kept.
func cellsFromText(text string, size docmodel.Size) []Cell {
	lines := strings.Split(text, "\n")
	var cells []Cell
	lineH := 12.0
	if size.Height > 0 && len(lines) > 0 {
		lineH = size.Height / float64(len(lines)+1)
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		i := len(cells)
		top := float64(i) * lineH
		cells = append(cells, Cell{
			ID:   i,
			Text: line,
			BBox: docmodel.BoundingBox{
				Left: 0, Top: top, Right: size.Width, Bottom: top + lineH,
				Origin: docmodel.TopLeft,
			},
		})
	}
	return cells
}

// extractPageText extracts text from a single PDF page via pdfcpu content stream.
func extractPageText(ctx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return "", fmt.Errorf("extract page %d content: %w", pageNr, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read page %d content: %w", pageNr, err)
	}
	return textFromStream(data), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// textFromStream parses PDF content stream operators for text.
func textFromStream(data []byte) string {
	var sb strings.Builder

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Tj / TJ operators: (text) Tj, [(text) -100 (more)] TJ
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		}

		// ' operator (move to next line and show text): (text) '
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		}

		// Td/TD operator (text positioning): word boundary.
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}

		// T* operator (move to start of next line).
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return cleanStreamText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanStreamText collapses runs of spaces per line while keeping newlines,
// which cellsFromText uses as cell boundaries.
func cleanStreamText(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			if unicode.IsSpace(r) {
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
				continue
			}
			sb.WriteRune(r)
			prevSpace = false
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
