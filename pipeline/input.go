package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/docmill/docmill/backend"
)

// InputDocument wraps one validated input source and exclusively owns its
// backend. The backend is released exactly once per document lifetime,
// either after a successful build or on the error-cleanup path.
type InputDocument struct {
	Name   string         `json:"name"`
	Format backend.Format `json:"format"`
	Hash   string         `json:"hash"`
	Size   int64          `json:"size"`

	valid     bool
	pageCount int
	backend   backend.Backend

	unloadOnce sync.Once
	unloaded   bool
}

// NewInputDocument binds a source to its backend. The document is valid
// when the backend parsed the source; invalid documents must never reach a
// processing stage.
func NewInputDocument(name string, format backend.Format, data []byte, b backend.Backend) *InputDocument {
	sum := sha256.Sum256(data)
	in := &InputDocument{
		Name:    name,
		Format:  format,
		Hash:    hex.EncodeToString(sum[:]),
		Size:    int64(len(data)),
		backend: b,
	}
	if b != nil && b.IsValid() {
		in.valid = true
		if pg, ok := b.(backend.Paginated); ok {
			in.pageCount = pg.PageCount()
		}
	}
	return in
}

// NewInvalidInput records a source that failed validation before any
// backend was acquired.
func NewInvalidInput(name string, format backend.Format) *InputDocument {
	return &InputDocument{Name: name, Format: format}
}

// Valid reports whether the document may be processed.
func (in *InputDocument) Valid() bool { return in.valid }

// Invalidate marks the document unprocessable (limits exceeded, etc.).
func (in *InputDocument) Invalidate() { in.valid = false }

// PageCount returns the page count reported by a paginated backend, 0 for
// declarative backends.
func (in *InputDocument) PageCount() int { return in.pageCount }

// Backend returns the owned backend, nil if none was acquired.
func (in *InputDocument) Backend() backend.Backend { return in.backend }

// Unload releases the backend. Safe to call from cleanup paths; only the
// first call reaches the backend.
func (in *InputDocument) Unload() {
	in.unloadOnce.Do(func() {
		if in.backend != nil {
			in.backend.Unload()
		}
		in.unloaded = true
	})
}

// Unloaded reports whether the backend has been released.
func (in *InputDocument) Unloaded() bool { return in.unloaded }
