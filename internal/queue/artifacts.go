package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrArtifactMissing is returned when a stage artifact was never written or
// already expired.
var ErrArtifactMissing = errors.New("stage artifact missing")

// Stage artifacts are the persisted intermediate outputs of a job run
// (extraction summary, embedding vector, retrieved matches, model output,
// entity mapping). A stage's output is written here before the next stage is
// dispatched, and the keys outlive job failure so a failed run stays
// inspectable.

func (q *RedisQueue) artifactKey(jobID, stage string) string {
	return fmt.Sprintf("pipeline:artifact:%s:%s", jobID, stage)
}

// PutArtifact stores a stage output as JSON with the given TTL.
func (q *RedisQueue) PutArtifact(ctx context.Context, jobID, stage string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s artifact: %w", stage, err)
	}
	if err := q.client.Set(ctx, q.artifactKey(jobID, stage), data, ttl).Err(); err != nil {
		return fmt.Errorf("store %s artifact: %w", stage, err)
	}
	return nil
}

// GetArtifact loads a stage output into dest.
func (q *RedisQueue) GetArtifact(ctx context.Context, jobID, stage string, dest any) error {
	data, err := q.client.Get(ctx, q.artifactKey(jobID, stage)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%s for job %s: %w", stage, jobID, ErrArtifactMissing)
	}
	if err != nil {
		return fmt.Errorf("load %s artifact: %w", stage, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s artifact: %w", stage, err)
	}
	return nil
}
