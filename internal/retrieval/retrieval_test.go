package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/vectorindex"
)

type fakeCaseStore struct {
	cases map[string]models.KnowledgeBaseEntry
	err   error
}

func (f *fakeCaseStore) GetActiveCases(_ context.Context, caseIDs []string) ([]models.KnowledgeBaseEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.KnowledgeBaseEntry
	for _, id := range caseIDs {
		if entry, ok := f.cases[id]; ok && entry.IsActive {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeCaseStore) FetchSolutions(_ context.Context, category string, minSuccessRate float64) ([]models.KnowledgeBaseEntry, error) {
	var out []models.KnowledgeBaseEntry
	for _, entry := range f.cases {
		if entry.Category == category && entry.SuccessRate >= minSuccessRate {
			out = append(out, entry)
		}
	}
	return out, nil
}

type failingIndex struct{}

func (failingIndex) Upsert(context.Context, string, []float32) error { return nil }
func (failingIndex) Query(context.Context, []float32, int) ([]vectorindex.Candidate, error) {
	return nil, apperrors.ErrIndexUnavailable
}

func seedEntry(caseID, title string, successRate float64, createdAt time.Time) models.KnowledgeBaseEntry {
	return models.KnowledgeBaseEntry{
		CaseID:      caseID,
		Title:       title,
		Solution:    "solution for " + caseID,
		Category:    "Database",
		Severity:    models.SeverityHigh,
		SuccessRate: successRate,
		IsActive:    true,
		CreatedAt:   createdAt,
	}
}

func TestFindSimilarSingleStrongMatch(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	base := time.Now()

	// KB_001 aligned with the query, the others nearly orthogonal.
	if err := idx.Upsert(context.Background(), "KB_001", []float32{1, 0.05, 0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(context.Background(), "KB_002", []float32{0.1, 1, 0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(context.Background(), "KB_003", []float32{0, 0.1, 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	store := &fakeCaseStore{cases: map[string]models.KnowledgeBaseEntry{
		"KB_001": seedEntry("KB_001", "Database Connection Timeout Resolution", 0.95, base),
		"KB_002": seedEntry("KB_002", "Memory Usage Optimization", 0.88, base),
		"KB_003": seedEntry("KB_003", "API Rate Limiting Mitigation", 0.92, base),
	}}

	engine := NewEngine(idx, store, 10, 0.7)
	matches, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected a single match above the floor, got %d", len(matches))
	}
	if matches[0].Case.CaseID != "KB_001" {
		t.Fatalf("expected KB_001, got %s", matches[0].Case.CaseID)
	}
	if matches[0].Similarity < 0.9 {
		t.Fatalf("expected strong similarity, got %f", matches[0].Similarity)
	}
}

func TestFindSimilarEmptyIndex(t *testing.T) {
	engine := NewEngine(vectorindex.NewMemoryIndex(), &fakeCaseStore{}, 10, 0.7)
	matches, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("empty index should not error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestFindSimilarDropsInactive(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	if err := idx.Upsert(context.Background(), "KB_001", []float32{1, 0, 0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	entry := seedEntry("KB_001", "Database Connection Timeout Resolution", 0.95, time.Now())
	entry.IsActive = false
	store := &fakeCaseStore{cases: map[string]models.KnowledgeBaseEntry{"KB_001": entry}}

	engine := NewEngine(idx, store, 10, 0.7)
	matches, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("inactive entries must not be returned, got %d", len(matches))
	}
}

func TestFindSimilarOrderingAndLimit(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	base := time.Now()

	// Two vectors tied at perfect similarity, one slightly behind.
	vectors := map[string][]float32{
		"KB_A": {1, 0, 0},
		"KB_B": {1, 0, 0},
		"KB_C": {1, 0.3, 0},
	}
	for id, v := range vectors {
		if err := idx.Upsert(context.Background(), id, v); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	store := &fakeCaseStore{cases: map[string]models.KnowledgeBaseEntry{
		"KB_A": seedEntry("KB_A", "a", 0.80, base),
		"KB_B": seedEntry("KB_B", "b", 0.95, base.Add(time.Hour)),
		"KB_C": seedEntry("KB_C", "c", 0.99, base),
	}}

	engine := NewEngine(idx, store, 2, 0.7)
	matches, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("limit not applied, got %d matches", len(matches))
	}
	// Tie on similarity broken by success rate: KB_B before KB_A; KB_C cut.
	if matches[0].Case.CaseID != "KB_B" || matches[1].Case.CaseID != "KB_A" {
		t.Fatalf("unexpected order: %s, %s", matches[0].Case.CaseID, matches[1].Case.CaseID)
	}
}

func TestFindSimilarCreatedAtTieBreak(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	base := time.Now()

	// Identical vectors and identical success rates: only creation time can
	// order them, earliest first.
	for _, id := range []string{"KB_NEW", "KB_OLD"} {
		if err := idx.Upsert(context.Background(), id, []float32{1, 0, 0}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	store := &fakeCaseStore{cases: map[string]models.KnowledgeBaseEntry{
		"KB_NEW": seedEntry("KB_NEW", "newer", 0.90, base.Add(time.Hour)),
		"KB_OLD": seedEntry("KB_OLD", "older", 0.90, base),
	}}

	engine := NewEngine(idx, store, 10, 0.7)
	matches, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected both entries, got %d", len(matches))
	}
	if matches[0].Case.CaseID != "KB_OLD" || matches[1].Case.CaseID != "KB_NEW" {
		t.Fatalf("earliest case should win the tie: %s, %s", matches[0].Case.CaseID, matches[1].Case.CaseID)
	}
}

func TestFindSimilarIndexFailure(t *testing.T) {
	engine := NewEngine(failingIndex{}, &fakeCaseStore{}, 10, 0.7)
	_, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0})
	if !errors.Is(err, apperrors.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}
