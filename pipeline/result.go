package pipeline

import (
	"github.com/docmill/docmill/docmodel"
)

// Status describes the whole-document outcome of one conversion.
type Status string

const (
	StatusPending        Status = "pending"
	StatusStarted        Status = "started"
	StatusFailure        Status = "failure"
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
)

// Usable reports whether the conversion produced consumable output.
// PARTIAL_SUCCESS is usable but incomplete — never treat it as SUCCESS.
func (s Status) Usable() bool {
	return s == StatusSuccess || s == StatusPartialSuccess
}

// ComponentKind names the component an error item originated from.
type ComponentKind string

const (
	ComponentBackend   ComponentKind = "document_backend"
	ComponentModel     ComponentKind = "model"
	ComponentAssembler ComponentKind = "doc_assembler"
)

// ErrorItem is one structured, page- or stage-scoped error recorded on a
// conversion result. The error list is append-only.
type ErrorItem struct {
	Component ComponentKind `json:"component_type"`
	Module    string        `json:"module_name"`
	Message   string        `json:"error_message"`
}

// ConversionResult aggregates everything one document's conversion produced.
// It is populated phase by phase during Execute and must be treated as
// immutable once returned.
type ConversionResult struct {
	Input  *InputDocument     `json:"input"`
	Pages  []*Page            `json:"pages,omitempty"`
	Output *docmodel.Document `json:"output,omitempty"`
	Status Status             `json:"status"`
	Errors []ErrorItem        `json:"errors,omitempty"`
}

// AddError appends a structured error item.
func (r *ConversionResult) AddError(component ComponentKind, module, message string) {
	r.Errors = append(r.Errors, ErrorItem{Component: component, Module: module, Message: message})
}
