package backend

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/docmill/docmill/docmodel"
)

func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDocxConvert(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Test Title</w:t></w:r></w:p>
<w:p><w:r><w:t>This is body text.</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Section Two</w:t></w:r></w:p>
<w:p><w:r><w:t>More content here.</w:t></w:r></w:p>
</w:body>
</w:document>`
	raw := buildZip(t, map[string]string{"word/document.xml": docXML})

	b, err := NewDocx(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !b.IsValid() {
		t.Fatal("expected valid backend")
	}
	if b.Format() != FormatDocx {
		t.Fatalf("format = %s", b.Format())
	}

	doc := docmodel.New("test.docx")
	if err := b.Convert(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	var title, headings, paragraphs int
	for item := range doc.Items() {
		switch item.Label {
		case docmodel.LabelTitle:
			title++
			if item.Text != "Test Title" {
				t.Errorf("title = %q, want Test Title", item.Text)
			}
		case docmodel.LabelSectionHeader:
			headings++
			if item.Level != 2 {
				t.Errorf("heading level = %d, want 2", item.Level)
			}
		case docmodel.LabelParagraph:
			paragraphs++
		}
	}
	if title != 1 {
		t.Errorf("titles = %d, want 1 (first heading becomes the title)", title)
	}
	if headings != 1 {
		t.Errorf("headings = %d, want 1", headings)
	}
	if paragraphs != 2 {
		t.Errorf("paragraphs = %d, want 2", paragraphs)
	}
}

func TestDocxTable(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Value</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>alpha</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body>
</w:document>`
	raw := buildZip(t, map[string]string{"word/document.xml": docXML})

	b, err := NewDocx(raw)
	if err != nil {
		t.Fatal(err)
	}
	doc := docmodel.New("table.docx")
	if err := b.Convert(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	var table *docmodel.TableData
	for item := range doc.Items() {
		if item.Table != nil {
			table = item.Table
		}
	}
	if table == nil {
		t.Fatal("expected a table item")
	}
	if table.NumRows != 2 || table.NumCols != 2 {
		t.Fatalf("table %dx%d, want 2x2", table.NumRows, table.NumCols)
	}
	if !table.Cells[0].ColHeader {
		t.Error("first-row cell should be a column header")
	}
	if table.Cells[0].Text != "Name" || table.Cells[3].Text != "1" {
		t.Errorf("unexpected cell texts: %q, %q", table.Cells[0].Text, table.Cells[3].Text)
	}
}

func TestDocxMissingDocumentPart(t *testing.T) {
	raw := buildZip(t, map[string]string{"other.xml": "<x/>"})

	b, err := NewDocx(raw)
	if err != nil {
		t.Fatal(err)
	}
	if b.IsValid() {
		t.Fatal("archive without word/document.xml must be invalid")
	}
	if err := b.Convert(context.Background(), docmodel.New("x")); err == nil {
		t.Fatal("expected convert error for invalid backend")
	}
}

func TestDocxNotAZip(t *testing.T) {
	if _, err := NewDocx([]byte("plain text, no archive")); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}

func TestDocxNestingBomb(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for i := 0; i < 400; i++ {
		sb.WriteString("<w:x>")
	}
	for i := 0; i < 400; i++ {
		sb.WriteString("</w:x>")
	}
	sb.WriteString(`</w:body></w:document>`)
	raw := buildZip(t, map[string]string{"word/document.xml": sb.String()})

	b, err := NewDocx(raw)
	if err != nil {
		t.Fatal(err)
	}
	err = b.Convert(context.Background(), docmodel.New("bomb.docx"))
	if err == nil || !strings.Contains(err.Error(), "nesting depth") {
		t.Fatalf("err = %v, want nesting depth error", err)
	}
}

func TestDocxHeadingLevel(t *testing.T) {
	tests := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"heading3", 3},
		{"Titre2", 2},
		{"Title", 1},
		{"Subtitle", 2},
		{"Normal", 0},
		{"Heading9", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := docxHeadingLevel(tt.style); got != tt.want {
			t.Errorf("docxHeadingLevel(%q) = %d, want %d", tt.style, got, tt.want)
		}
	}
}
