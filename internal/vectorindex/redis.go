package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
)

const vectorHashKey = "vectors:knowledge_base"

// RedisIndex keeps case vectors in a Redis hash and scores candidates by
// cosine similarity. The knowledge base is small and curated, so a full scan
// per query is acceptable; the Index contract hides that choice from callers.
type RedisIndex struct {
	client *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func (r *RedisIndex) Upsert(ctx context.Context, caseID string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal vector for %s: %w", caseID, err)
	}
	if err := r.client.HSet(ctx, vectorHashKey, caseID, data).Err(); err != nil {
		return fmt.Errorf("store vector for %s: %v: %w", caseID, err, apperrors.ErrIndexUnavailable)
	}
	return nil
}

// Remove drops a case from the index, used when an entry is retired.
func (r *RedisIndex) Remove(ctx context.Context, caseID string) error {
	if err := r.client.HDel(ctx, vectorHashKey, caseID).Err(); err != nil {
		return fmt.Errorf("remove vector for %s: %v: %w", caseID, err, apperrors.ErrIndexUnavailable)
	}
	return nil
}

func (r *RedisIndex) Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	stored, err := r.client.HGetAll(ctx, vectorHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load vectors: %v: %w", err, apperrors.ErrIndexUnavailable)
	}

	candidates := make([]Candidate, 0, len(stored))
	for caseID, raw := range stored {
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("corrupt vector for %s: %w", caseID, err)
		}
		candidates = append(candidates, Candidate{
			CaseID: caseID,
			Score:  CosineSimilarity(vector, vec),
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
