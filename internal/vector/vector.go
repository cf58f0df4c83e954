// Package vector provides the embedding arithmetic used for matching.
package vector

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrLengthMismatch is returned when two embeddings of different length are compared.
var ErrLengthMismatch = errors.New("embedding length mismatch")

// Embedding is a fixed-length face descriptor produced by an embedder.
type Embedding []float64

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return math.Inf(1), errors.Wrapf(ErrLengthMismatch, "%d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}

// MinDistance returns the smallest Euclidean distance from query to any
// member of set, skipping members whose length differs from the query.
// It returns +Inf when nothing comparable is present.
func MinDistance(query Embedding, set []Embedding) float64 {
	best := math.Inf(1)
	for _, e := range set {
		d, err := Distance(query, e)
		if err != nil {
			continue
		}
		if d < best {
			best = d
		}
	}
	return best
}

// Normalize returns a unit-length copy of e. A zero vector is returned unchanged.
func Normalize(e Embedding) Embedding {
	out := make(Embedding, len(e))
	copy(out, e)
	n := floats.Norm(out, 2)
	if n < 1e-12 {
		return out
	}
	floats.Scale(1/n, out)
	return out
}

// FromFloat32 widens a network output into an Embedding.
func FromFloat32(v []float32) Embedding {
	out := make(Embedding, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
