// Package retrieval matches a job's embedding against the knowledge base and
// returns the historical cases most similar to it.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/vectorindex"
)

// CaseStore resolves case identifiers returned by the index into full
// knowledge-base entries. Inactive entries are never returned.
type CaseStore interface {
	GetActiveCases(ctx context.Context, caseIDs []string) ([]models.KnowledgeBaseEntry, error)
	FetchSolutions(ctx context.Context, category string, minSuccessRate float64) ([]models.KnowledgeBaseEntry, error)
}

// Engine runs similarity search over the knowledge base.
type Engine struct {
	index vectorindex.Index
	cases CaseStore

	limit         int
	minSimilarity float64
}

// NewEngine wires an index and a case store with the configured limit and
// similarity floor.
func NewEngine(index vectorindex.Index, cases CaseStore, limit int, minSimilarity float64) *Engine {
	if limit <= 0 {
		limit = 10
	}
	return &Engine{index: index, cases: cases, limit: limit, minSimilarity: minSimilarity}
}

// FindSimilar returns the active knowledge-base entries whose vectors are
// closest to the given embedding, ordered by similarity descending. Candidates
// below the similarity floor and entries that have been deactivated since
// indexing are dropped. An empty result is not an error: jobs proceed with no
// historical context when the knowledge base has nothing relevant.
func (e *Engine) FindSimilar(ctx context.Context, embedding []float32) ([]models.CaseMatch, error) {
	// Over-fetch so floor filtering and inactive-entry drops still leave
	// enough candidates to fill the limit.
	candidates, err := e.index.Query(ctx, embedding, e.limit*2)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	scores := make(map[string]float64, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < e.minSimilarity {
			continue
		}
		scores[c.CaseID] = c.Score
		ids = append(ids, c.CaseID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	entries, err := e.cases.GetActiveCases(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load knowledge-base cases: %w", err)
	}

	matches := make([]models.CaseMatch, 0, len(entries))
	for _, entry := range entries {
		matches = append(matches, models.CaseMatch{Case: entry, Similarity: scores[entry.CaseID]})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Case.SuccessRate != matches[j].Case.SuccessRate {
			return matches[i].Case.SuccessRate > matches[j].Case.SuccessRate
		}
		return matches[i].Case.CreatedAt.Before(matches[j].Case.CreatedAt)
	})
	if len(matches) > e.limit {
		matches = matches[:e.limit]
	}
	return matches, nil
}

// FetchSolutions exposes category-filtered knowledge-base browsing for the
// API without going through the vector index.
func (e *Engine) FetchSolutions(ctx context.Context, category string, minSuccessRate float64) ([]models.KnowledgeBaseEntry, error) {
	return e.cases.FetchSolutions(ctx, category, minSuccessRate)
}
