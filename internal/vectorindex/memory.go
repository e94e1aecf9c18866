package vectorindex

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index used in tests and single-node setups.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string][]float32)}
}

func (m *MemoryIndex) Upsert(_ context.Context, caseID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.vectors[caseID] = cp
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]Candidate, 0, len(m.vectors))
	for caseID, stored := range m.vectors {
		candidates = append(candidates, Candidate{
			CaseID: caseID,
			Score:  CosineSimilarity(vector, stored),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CaseID < candidates[j].CaseID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
