// Package vectorindex stores knowledge-base case vectors and answers
// nearest-neighbor queries over them.
package vectorindex

import (
	"context"
	"math"
)

// Candidate is one ranked answer from a nearest-neighbor query.
type Candidate struct {
	CaseID string
	Score  float64
}

// Index is the vector-index contract consumed by the retrieval engine. The
// search implementation behind it is opaque to callers.
type Index interface {
	// Upsert stores or replaces the vector for a case.
	Upsert(ctx context.Context, caseID string, vector []float32) error

	// Query returns up to limit candidates ordered by score descending.
	// Scores are bounded to [0,1].
	Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error)
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// clamped to [0,1]: embedding backends in use produce non-negative
// similarities for related text, and anything anti-correlated is as good as
// unrelated for ranking purposes.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
