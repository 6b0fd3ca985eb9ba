// Package index maintains the two nearest-neighbor indices (text and
// image) behind an atomically swapped, durably persisted store.
package index

import (
	"fmt"
	"sort"

	"visionrag/internal/domain"
)

// Hit is one scored index entry. Order is the entry's creation order
// within its index, used as the deterministic tie-break.
type Hit struct {
	Entry domain.IndexEntry
	Order int
	Score float64
}

// Searcher is the read side shared by the file store and the remote
// backend. Search never mutates state and is safe for concurrent use.
type Searcher interface {
	SearchText(vector []float64, k int) ([]Hit, error)
	SearchImage(vector []float64, k int) ([]Hit, error)
}

// Builder is the write side: a full, all-or-nothing replacement of
// both indices.
type Builder interface {
	Build(textEntries, imageEntries []domain.IndexEntry) error
}

// flat is an exact inner-product index. Vectors are assumed
// L2-normalized, so inner product equals cosine similarity.
type flat struct {
	dimension int
	entries   []domain.IndexEntry
}

func newFlat(dimension int, entries []domain.IndexEntry) (*flat, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	for i, e := range entries {
		if len(e.Vector) != dimension {
			return nil, fmt.Errorf("%w: entry %d (%s) has %d dimensions, index wants %d",
				domain.ErrDimensionMismatch, i, e.UnitID, len(e.Vector), dimension)
		}
	}
	return &flat{dimension: dimension, entries: entries}, nil
}

func (f *flat) len() int { return len(f.entries) }

// search returns up to k hits, sorted by descending similarity; ties
// go to the entry created earlier.
func (f *flat) search(vector []float64, k int) []Hit {
	if k <= 0 || len(f.entries) == 0 {
		return nil
	}
	hits := make([]Hit, len(f.entries))
	for i, e := range f.entries {
		hits[i] = Hit{Entry: e, Order: i, Score: dot(e.Vector, vector)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Order < hits[j].Order
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
