package pipeline

import (
	"context"
	"testing"

	"github.com/docmill/docmill/docmodel"
)

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello   world", "hello world"},
		{"  leading and trailing  ", "leading and trailing"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"", ""},
		{"   ", ""},
		{"already clean", "already clean"},
	}
	for _, tt := range tests {
		if got := normalizeWhitespace(tt.in); got != tt.want {
			t.Errorf("normalizeWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextNormalizerStage(t *testing.T) {
	doc := docmodel.New("test")
	doc.AddHeading("A  Title", 1, nil)
	doc.AddText(docmodel.LabelText, "body\twith\n\nnoise ", nil)
	group := doc.AddGroup(docmodel.GroupList, "list", nil)
	doc.AddText(docmodel.LabelListItem, " item  one", group)

	stage := TextNormalizer{}
	var batch []*docmodel.Item
	for item := range doc.Items() {
		if stage.IsProcessable(doc, item) {
			batch = append(batch, item)
		}
	}
	if len(batch) != 3 {
		t.Fatalf("processable items = %d, want 3", len(batch))
	}
	if err := stage.ProcessBatch(context.Background(), doc, batch); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	want := []string{"A Title", "body with noise", "item one"}
	for i, item := range batch {
		if item.Text != want[i] {
			t.Errorf("item %d text = %q, want %q", i, item.Text, want[i])
		}
	}
}
