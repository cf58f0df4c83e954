// Package recognition identifies faces in frames against the stored embeddings.
package recognition

import (
	"math"
	"sort"

	"github.com/ayusman/facultyid/internal/store"
	"github.com/ayusman/facultyid/internal/vector"
)

type galleryEntry struct {
	identity   string
	embeddings []vector.Embedding
}

// Gallery is an immutable in-memory snapshot of the embedding store.
// Identities are kept in lexicographic order so lookups are deterministic.
type Gallery struct {
	entries    []galleryEntry
	normalized bool
	size       int
}

// NewGallery builds a snapshot from store records. With normalize set every
// stored vector is scaled to unit length and queries are normalized before
// comparison.
func NewGallery(records []store.Record, normalize bool) *Gallery {
	g := &Gallery{
		entries:    make([]galleryEntry, 0, len(records)),
		normalized: normalize,
	}
	for _, r := range records {
		set := make([]vector.Embedding, len(r.Embeddings))
		for i, e := range r.Embeddings {
			if normalize {
				set[i] = vector.Normalize(e)
			} else {
				set[i] = append(vector.Embedding(nil), e...)
			}
		}
		g.entries = append(g.entries, galleryEntry{identity: r.Identity, embeddings: set})
		g.size += len(set)
	}
	sort.SliceStable(g.entries, func(i, j int) bool {
		return g.entries[i].identity < g.entries[j].identity
	})
	return g
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Size returns the total number of stored embeddings.
func (g *Gallery) Size() int {
	if g == nil {
		return 0
	}
	return g.size
}

// Normalized reports whether the gallery compares unit-length vectors.
func (g *Gallery) Normalized() bool {
	return g != nil && g.normalized
}

// Identities returns the identity keys in scan order.
func (g *Gallery) Identities() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, len(g.entries))
	for i, e := range g.entries {
		ids[i] = e.identity
	}
	return ids
}

// Nearest scans every stored embedding and returns the identity whose
// closest embedding is nearest to query. Ties keep the lexicographically
// smallest identity. An empty gallery yields ("", +Inf).
func (g *Gallery) Nearest(query vector.Embedding) (string, float64) {
	best, bestDist := "", math.Inf(1)
	if g == nil {
		return best, bestDist
	}
	if g.normalized {
		query = vector.Normalize(query)
	}
	for _, e := range g.entries {
		d := vector.MinDistance(query, e.embeddings)
		if d < bestDist {
			best, bestDist = e.identity, d
		}
	}
	return best, bestDist
}
