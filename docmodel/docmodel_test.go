package docmodel

import (
	"strings"
	"testing"
)

func TestBuildTree(t *testing.T) {
	doc := New("test")
	doc.AddPage(0, Size{Width: 612, Height: 792})

	ch := doc.AddGroup(GroupChapter, "slide-0", nil)
	title := doc.AddText(LabelTitle, "Hello", ch, Provenance{PageNo: 0})
	list := doc.AddGroup(GroupList, "list", ch)
	doc.AddText(LabelListItem, "first", list)
	doc.AddText(LabelListItem, "second", list)

	if title.Parent() != ch {
		t.Error("title parent should be the chapter group")
	}
	if len(ch.Children()) != 2 {
		t.Errorf("chapter children: got %d, want 2", len(ch.Children()))
	}
	if doc.Len() != 5 {
		t.Errorf("item count: got %d, want 5", doc.Len())
	}
}

func TestItemsOrder(t *testing.T) {
	doc := New("order")
	g := doc.AddGroup(GroupSection, "s", nil)
	doc.AddText(LabelParagraph, "a", g)
	doc.AddText(LabelParagraph, "b", nil)

	var ids []int
	for it := range doc.Items() {
		ids = append(ids, it.ID)
	}
	// Depth-first: group, its child, then the top-level sibling.
	want := []int{0, 1, 2}
	if len(ids) != len(want) {
		t.Fatalf("got %d items, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: got id %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestItemsEarlyStop(t *testing.T) {
	doc := New("stop")
	for i := 0; i < 10; i++ {
		doc.AddText(LabelParagraph, "p", nil)
	}
	n := 0
	for range doc.Items() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("early stop: got %d, want 3", n)
	}
}

func TestMarkdown(t *testing.T) {
	doc := New("md")
	doc.AddText(LabelTitle, "Report", nil)
	doc.AddHeading("Findings", 1, nil)
	doc.AddText(LabelParagraph, "All good.", nil)
	list := doc.AddGroup(GroupList, "list", nil)
	doc.AddText(LabelListItem, "item one", list)
	doc.AddTable(&TableData{
		NumRows: 2,
		NumCols: 2,
		Cells: []TableCell{
			{Text: "h1", StartRow: 0, StartCol: 0, RowSpan: 1, ColSpan: 1, ColHeader: true},
			{Text: "h2", StartRow: 0, StartCol: 1, RowSpan: 1, ColSpan: 1, ColHeader: true},
			{Text: "a", StartRow: 1, StartCol: 0, RowSpan: 1, ColSpan: 1},
			{Text: "b", StartRow: 1, StartCol: 1, RowSpan: 1, ColSpan: 1},
		},
	}, nil)

	md := doc.Markdown()
	for _, want := range []string{"# Report", "## Findings", "All good.", "- item one", "| h1 | h2 |", "| a | b |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdownEscapesPipes(t *testing.T) {
	doc := New("pipes")
	doc.AddTable(&TableData{
		NumRows: 1,
		NumCols: 1,
		Cells:   []TableCell{{Text: "a|b", StartRow: 0, StartCol: 0, RowSpan: 1, ColSpan: 1}},
	}, nil)
	if !strings.Contains(doc.Markdown(), `a\|b`) {
		t.Error("pipe in cell text should be escaped")
	}
}
