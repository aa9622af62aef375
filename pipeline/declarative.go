package pipeline

import (
	"context"
	"fmt"

	"github.com/docmill/docmill/backend"
	"github.com/docmill/docmill/docmodel"
)

// Declarative wraps backends that build the output document in a single
// pass (DOCX, PPTX, HTML). There are no page records; the backend's one
// Convert call is the whole build phase. Assembly is the identity default
// and enrichment runs on the produced document as usual.
type Declarative struct {
	Base
}

// NewDeclarative creates the declarative pipeline.
func NewDeclarative(opts Options, enrichment ...EnrichmentStage) *Declarative {
	p := &Declarative{}
	p.Base = newBase(opts, p, enrichment)
	return p
}

func (p *Declarative) Name() string { return "declarative" }

// IsBackendSupported accepts any backend that can convert in one pass.
func (p *Declarative) IsBackendSupported(b backend.Backend) bool {
	_, ok := b.(backend.Declarative)
	return ok
}

// BuildDocument delegates the whole build to the backend.
func (p *Declarative) BuildDocument(ctx context.Context, in *InputDocument, res *ConversionResult) error {
	db, ok := in.Backend().(backend.Declarative)
	if !ok {
		return fmt.Errorf("backend for %s is not declarative; check the format configuration", in.Name)
	}
	doc := docmodel.New(in.Name)
	if err := db.Convert(ctx, doc); err != nil {
		return fmt.Errorf("convert %s: %w", in.Name, err)
	}
	res.Output = doc
	return nil
}

// DetermineStatus is all-or-nothing: declarative backends have no per-page
// failure granularity.
func (p *Declarative) DetermineStatus(in *InputDocument, res *ConversionResult) Status {
	if in.Backend() != nil && in.Backend().IsValid() {
		return StatusSuccess
	}
	return StatusFailure
}
