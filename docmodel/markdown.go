package docmodel

import (
	"fmt"
	"strings"
)

// Markdown renders the document as CommonMark text. Tables become pipe
// tables, pictures become image placeholders with their caption.
func (d *Document) Markdown() string {
	var sb strings.Builder
	for it := range d.Items() {
		renderItem(&sb, it)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func renderItem(sb *strings.Builder, it *Item) {
	switch {
	case it.IsGroup():
		// Groups have no rendering of their own; children follow in the
		// traversal.
	case it.Label == LabelTitle:
		fmt.Fprintf(sb, "# %s\n\n", it.Text)
	case it.Label == LabelSectionHeader:
		level := it.Level
		if level < 1 {
			level = 2
		}
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", level+1), it.Text)
	case it.Label == LabelListItem:
		fmt.Fprintf(sb, "- %s\n", it.Text)
	case it.Label == LabelTable && it.Table != nil:
		renderTable(sb, it.Table)
	case it.Label == LabelPicture:
		caption := ""
		if it.Picture != nil {
			caption = it.Picture.Caption
		}
		fmt.Fprintf(sb, "![%s](#)\n\n", caption)
	case it.Text != "":
		fmt.Fprintf(sb, "%s\n\n", it.Text)
	}
}

func renderTable(sb *strings.Builder, t *TableData) {
	if t.NumRows == 0 || t.NumCols == 0 {
		return
	}

	// Project cells onto a dense grid, ignoring spans beyond the anchor cell.
	grid := make([][]string, t.NumRows)
	for i := range grid {
		grid[i] = make([]string, t.NumCols)
	}
	for _, c := range t.Cells {
		if c.StartRow < t.NumRows && c.StartCol < t.NumCols {
			grid[c.StartRow][c.StartCol] = strings.ReplaceAll(c.Text, "|", "\\|")
		}
	}

	for i, row := range grid {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", t.NumCols))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}
