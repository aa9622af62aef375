// Package pipeline implements the staged document-conversion orchestrator:
// a build phase over batches of page records, an assemble phase producing
// the output document, and an enrich phase over batches of document
// elements, with partial failure tracked at page granularity.
//
// Pipelines are selected per input format. Paginated pipelines (PDF) drive
// the batch engine; declarative pipelines delegate to backends that build
// the document in one pass. Both share the same Execute lifecycle, status
// resolution and backend cleanup guarantees.
//
// Usage:
//
//	pipe := pipeline.NewStandardPDF(pipeline.Options{})
//	res, err := pipe.Execute(ctx, in)
//	fmt.Println(res.Status, len(res.Errors))
package pipeline

import (
	"fmt"
	"log/slog"
	"math"
)

// Options configures the conversion engine. There is no process-wide
// default: callers pass a zero value and get the documented defaults, or
// set fields explicitly.
type Options struct {
	// PageBatchSize is how many page records form one build batch (default: 4).
	PageBatchSize int `json:"page_batch_size" yaml:"page_batch_size"`

	// PageBatchConcurrency bounds how many page batches of one document may
	// be in flight concurrently (default: 2).
	PageBatchConcurrency int `json:"page_batch_concurrency" yaml:"page_batch_concurrency"`

	// DocBatchSize is how many documents form one conversion batch (default: 2).
	DocBatchSize int `json:"doc_batch_size" yaml:"doc_batch_size"`

	// DocBatchConcurrency bounds how many documents may convert
	// simultaneously (default: 2).
	DocBatchConcurrency int `json:"doc_batch_concurrency" yaml:"doc_batch_concurrency"`

	// ElementsBatchSize is how many document elements form one enrichment
	// batch (default: 16).
	ElementsBatchSize int `json:"elements_batch_size" yaml:"elements_batch_size"`

	// MaxNumPages rejects documents with more pages (default: unlimited).
	MaxNumPages int `json:"max_num_pages" yaml:"max_num_pages"`

	// MaxFileSize rejects larger inputs, in bytes (default: unlimited).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// RaisesOnError makes Execute return the fault alongside the FAILURE
	// result instead of recording it silently (default: false).
	RaisesOnError bool `json:"raises_on_error" yaml:"raises_on_error"`

	// RetainPageImages keeps page image caches past the assemble phase.
	RetainPageImages bool `json:"retain_page_images" yaml:"retain_page_images"`

	// Logger for progress and fault messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (o *Options) defaults() {
	if o.PageBatchSize <= 0 {
		o.PageBatchSize = 4
	}
	if o.PageBatchConcurrency <= 0 {
		o.PageBatchConcurrency = 2
	}
	if o.DocBatchSize <= 0 {
		o.DocBatchSize = 2
	}
	if o.DocBatchConcurrency <= 0 {
		o.DocBatchConcurrency = 2
	}
	if o.ElementsBatchSize <= 0 {
		o.ElementsBatchSize = 16
	}
	if o.MaxNumPages <= 0 {
		o.MaxNumPages = math.MaxInt
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = math.MaxInt64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// WithDefaults returns a copy with unset fields replaced by the documented
// defaults.
func (o Options) WithDefaults() Options {
	o.defaults()
	return o
}

// Validate rejects configurations the batch scheduler cannot honor.
// Zero is not an error: an unset field selects its documented default.
func (o Options) Validate() error {
	for name, v := range map[string]int{
		"page_batch_size":        o.PageBatchSize,
		"page_batch_concurrency": o.PageBatchConcurrency,
		"doc_batch_size":         o.DocBatchSize,
		"doc_batch_concurrency":  o.DocBatchConcurrency,
		"elements_batch_size":    o.ElementsBatchSize,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be positive or 0 for the default, got %d", name, v)
		}
	}
	return nil
}
