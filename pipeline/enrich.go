package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/docmill/docmill/docmodel"
)

// TextNormalizer is a post-assembly enrichment stage that collapses runs of
// whitespace in text-bearing items to single spaces and trims the edges.
type TextNormalizer struct{}

func (TextNormalizer) Name() string { return "text_normalizer" }

// IsProcessable selects items carrying free text. Tables and pictures keep
// their cell and caption text untouched.
func (TextNormalizer) IsProcessable(doc *docmodel.Document, item *docmodel.Item) bool {
	return !item.IsGroup() && item.Text != ""
}

func (TextNormalizer) ProcessBatch(ctx context.Context, doc *docmodel.Document, batch []*docmodel.Item) error {
	for _, item := range batch {
		item.Text = normalizeWhitespace(item.Text)
	}
	return nil
}

// normalizeWhitespace collapses whitespace runs into single spaces and
// trims leading and trailing space.
func normalizeWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimRight(sb.String(), " ")
}
