package domain

import (
	"context"
	"math"
)

// Vector is an L2-normalized image embedding. A Vector is either nil
// (absent) or has exactly the dimensionality the embedder was configured
// with; partial vectors never leave the embedding client.
type Vector []float32

// Dim returns the number of components.
func (v Vector) Dim() int { return len(v) }

// Normalize scales v to unit L2 length in place and returns it.
// A zero vector is returned unchanged.
func (v Vector) Normalize() Vector {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// ImageEmbedder is the image vectorization contract between the pipeline
// and the embedding client.
type ImageEmbedder interface {
	Embed(ctx context.Context, imageURL string) (Vector, error)
}
