package pipeline

import (
	"fmt"
	"iter"
)

// Chunk splits items into contiguous batches of at most size elements,
// preserving order. The final batch may be shorter. Size below 1 is a
// configuration error.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", size)
	}
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end:end])
	}
	return batches, nil
}

// ChunkSeq batches a lazy sequence, yielding contiguous slices of at most
// size elements in input order. The enrich phase uses it to batch a single
// filtered traversal of the document without materializing it. Size below 1
// yields nothing.
func ChunkSeq[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		if size < 1 {
			return
		}
		batch := make([]T, 0, size)
		for v := range seq {
			batch = append(batch, v)
			if len(batch) == size {
				if !yield(batch) {
					return
				}
				batch = make([]T, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}
