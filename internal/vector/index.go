// Package vector provides an exact (flat) nearest-neighbor index over
// float32 embeddings. Search is a brute-force scan; with one index per
// document session the vector counts stay small enough that exactness
// beats any approximate structure.
package vector

import (
	"fmt"
	"sort"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// FlatIndex stores embeddings row by row. Row position is the contract:
// position i in a search result refers to the i-th embedding passed to
// Build, which callers align with the i-th chunk of the document.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// Build creates an index over embeddings. The index takes ownership of the
// slices. All vectors must share one dimension.
func Build(embeddings [][]float32) (*FlatIndex, error) {
	if len(embeddings) == 0 {
		return nil, domain.ErrEmptyEmbeddings
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional vectors", domain.ErrEmptyEmbeddings)
	}
	for i, v := range embeddings {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d",
				domain.ErrVectorDimMismatch, i, len(v), dim)
		}
	}
	return &FlatIndex{dim: dim, vectors: embeddings}, nil
}

// Search returns the k nearest vectors by squared Euclidean distance,
// ascending. Equal distances keep row order. k beyond the stored count
// returns everything; k <= 0 returns nothing.
func (x *FlatIndex) Search(query []float32, k int) ([]domain.IndexMatch, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d",
			domain.ErrVectorDimMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	if k > len(x.vectors) {
		k = len(x.vectors)
	}

	matches := make([]domain.IndexMatch, len(x.vectors))
	for i, v := range x.vectors {
		matches[i] = domain.IndexMatch{Position: i, Distance: sqDist(query, v)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches[:k], nil
}

// Dimension returns the vector dimension.
func (x *FlatIndex) Dimension() int { return x.dim }

// Len returns the stored vector count.
func (x *FlatIndex) Len() int { return len(x.vectors) }

func sqDist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
