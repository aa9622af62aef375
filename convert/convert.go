// Package convert is the front door of the conversion service: it detects
// input formats, enforces document limits, routes each document to the
// pipeline that supports its backend, and fans batches of documents across
// a bounded number of workers.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docmill/docmill/backend"
	"github.com/docmill/docmill/pipeline"
)

// Converter routes documents to pipelines. One Converter is safe for
// concurrent use; per-document state lives in the pipelines' results.
type Converter struct {
	opts   pipeline.Options
	logger *slog.Logger

	// pipes is consulted in order; the first pipeline that supports the
	// document's backend wins.
	pipes []pipeline.Pipeline
}

// New builds a converter with the standard pipelines: the paginated PDF
// pipeline and the declarative pipeline for DOCX, PPTX and HTML. Both get
// the whitespace-normalizing enrichment stage.
func New(opts pipeline.Options) (*Converter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := NewWithPipelines(opts,
		pipeline.NewStandardPDF(opts, pipeline.TextNormalizer{}),
		pipeline.NewDeclarative(opts, pipeline.TextNormalizer{}),
	)
	return c, nil
}

// NewWithPipelines builds a converter with an explicit pipeline chain,
// consulted in order.
func NewWithPipelines(opts pipeline.Options, pipes ...pipeline.Pipeline) *Converter {
	opts = opts.WithDefaults()
	return &Converter{opts: opts, logger: opts.Logger, pipes: pipes}
}

// DetectFormat infers the document format from the file name extension,
// falling back to content sniffing when the extension is missing or
// unknown.
func DetectFormat(name string, data []byte) (backend.Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return backend.FormatPDF, nil
	case ".docx":
		return backend.FormatDocx, nil
	case ".pptx":
		return backend.FormatPPTX, nil
	case ".html", ".htm", ".xhtml":
		return backend.FormatHTML, nil
	}
	if f, ok := sniffFormat(data); ok {
		return f, nil
	}
	return "", fmt.Errorf("cannot determine format of %s", name)
}

// sniffFormat recognizes formats by magic bytes. ZIP containers are
// disambiguated by their OOXML part paths.
func sniffFormat(data []byte) (backend.Format, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return backend.FormatPDF, true
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if bytes.Contains(data, []byte("word/")) {
			return backend.FormatDocx, true
		}
		if bytes.Contains(data, []byte("ppt/")) {
			return backend.FormatPPTX, true
		}
		return "", false
	}
	head := bytes.ToLower(bytes.TrimSpace(data))
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html")) {
		return backend.FormatHTML, true
	}
	return "", false
}

// SupportedFormats lists the formats the converter accepts.
func SupportedFormats() []string {
	return []string{
		string(backend.FormatPDF),
		string(backend.FormatDocx),
		string(backend.FormatPPTX),
		string(backend.FormatHTML),
	}
}

// openBackend builds the format-appropriate backend over the raw bytes.
func openBackend(format backend.Format, data []byte) (backend.Backend, error) {
	switch format {
	case backend.FormatPDF:
		return backend.NewPDF(bytes.NewReader(data))
	case backend.FormatDocx:
		return backend.NewDocx(data)
	case backend.FormatPPTX:
		return backend.NewPPTX(data)
	case backend.FormatHTML:
		return backend.NewHTML(data)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// Prepare validates bytes into an input document: format detection, limit
// checks, backend construction. A document that violates limits or whose
// backend fails to parse comes back invalid but non-nil, so the conversion
// records a FAILURE result instead of vanishing.
func (c *Converter) Prepare(name string, data []byte) *pipeline.InputDocument {
	format, err := DetectFormat(name, data)
	if err != nil {
		c.logger.Warn("format detection failed", "name", name, "error", err)
		return pipeline.NewInvalidInput(name, "")
	}

	if int64(len(data)) > c.opts.MaxFileSize && c.opts.MaxFileSize > 0 {
		c.logger.Warn("document exceeds size limit", "name", name, "size", len(data), "limit", c.opts.MaxFileSize)
		return pipeline.NewInvalidInput(name, format)
	}

	b, err := openBackend(format, data)
	if err != nil {
		c.logger.Warn("backend rejected document", "name", name, "format", format, "error", err)
		return pipeline.NewInvalidInput(name, format)
	}

	in := pipeline.NewInputDocument(name, format, data, b)
	if pg, ok := b.(backend.Paginated); ok && c.opts.MaxNumPages > 0 && pg.PageCount() > c.opts.MaxNumPages {
		c.logger.Warn("document exceeds page limit", "name", name, "pages", pg.PageCount(), "limit", c.opts.MaxNumPages)
		in.Invalidate()
		in.Unload()
	}
	return in
}

// Convert runs one document through the first pipeline supporting its
// backend. Inputs that never got a working backend yield a FAILURE result
// without touching any pipeline.
func (c *Converter) Convert(ctx context.Context, name string, data []byte) (*pipeline.ConversionResult, error) {
	in := c.Prepare(name, data)
	if !in.Valid() {
		// A backend may parse the container yet report the document
		// invalid (e.g. an archive missing its document part). It was
		// still acquired, so it is still released here.
		if in.Backend() != nil {
			in.Unload()
		}
		return &pipeline.ConversionResult{Input: in, Status: pipeline.StatusFailure}, nil
	}

	pipe := c.pipelineFor(in.Backend())
	if pipe == nil {
		in.Unload()
		res := &pipeline.ConversionResult{Input: in, Status: pipeline.StatusFailure}
		err := fmt.Errorf("no pipeline supports %s documents", in.Format)
		if c.opts.RaisesOnError {
			return res, err
		}
		c.logger.Warn("no pipeline for document", "name", name, "format", in.Format)
		return res, nil
	}

	start := time.Now()
	res, err := pipe.Execute(ctx, in)
	c.logger.Info("document converted",
		"name", name, "status", res.Status, "errors", len(res.Errors), "took", time.Since(start))
	return res, err
}

// ConvertFile reads and converts one file from disk.
func (c *Converter) ConvertFile(ctx context.Context, path string) (*pipeline.ConversionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Convert(ctx, filepath.Base(path), data)
}

// readHead reads at most 4 KiB of a file, enough for format sniffing.
func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf[:n], nil
}

func (c *Converter) pipelineFor(b backend.Backend) pipeline.Pipeline {
	for _, p := range c.pipes {
		if p.IsBackendSupported(b) {
			return p
		}
	}
	return nil
}

// Source is one named input for batch conversion.
type Source struct {
	Name string
	Data []byte
}

// ConvertAll converts sources in document batches of DocBatchSize with at
// most DocBatchConcurrency batches in flight. One document's failure never
// aborts its siblings: results are returned positionally, failures recorded
// as FAILURE results. Only a cancelled context stops the run early.
func (c *Converter) ConvertAll(ctx context.Context, sources []Source) ([]*pipeline.ConversionResult, error) {
	results := make([]*pipeline.ConversionResult, len(sources))

	type indexed struct {
		pos int
		src Source
	}
	items := make([]indexed, len(sources))
	for i, s := range sources {
		items[i] = indexed{pos: i, src: s}
	}

	batches, err := pipeline.Chunk(items, c.opts.DocBatchSize)
	if err != nil {
		return nil, err
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.DocBatchConcurrency)

	for _, batch := range batches {
		eg.Go(func() error {
			for _, it := range batch {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := c.Convert(gctx, it.src.Name, it.src.Data)
				if err != nil {
					// RaisesOnError faults stay per-document in batch mode.
					c.logger.Warn("batch conversion fault", "name", it.src.Name, "error", err)
				}
				results[it.pos] = res
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
