// Package pipeline drives job execution: workers lease queued jobs and walk
// them through extraction, embedding, retrieval, model analysis, and entity
// extraction until a result is persisted or the run fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/aggregate"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/extract"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/nlu"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/storage"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/telemetry"
)

// Registry is the job persistence surface the processor needs.
type Registry interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	UpdateStatus(ctx context.Context, id string, next models.Status, errorMessage *string) error
	SaveResult(ctx context.Context, res models.AnalysisResult) error
	InsertSimilarCases(ctx context.Context, jobID string, matches []models.SimilarCase) error
}

// Queue is the durable queue and artifact surface the processor needs.
type Queue interface {
	DequeueWithLease(ctx context.Context) (string, error)
	Ack(ctx context.Context, jobID string) error
	ExtendLease(ctx context.Context, jobID string, extension time.Duration) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	ReadyDepth(ctx context.Context) (int64, error)
	PutArtifact(ctx context.Context, jobID, stage string, v any, ttl time.Duration) error
	GetArtifact(ctx context.Context, jobID, stage string, dest any) error
}

// Embedder turns extracted log text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds knowledge-base cases similar to an embedding.
type Retriever interface {
	FindSimilar(ctx context.Context, embedding []float32) ([]models.CaseMatch, error)
}

// Analyzer produces a structured diagnosis from extraction output and
// retrieved context.
type Analyzer interface {
	Analyze(ctx context.Context, summary extract.Summary, matches []models.CaseMatch) (models.ModelAnalysis, error)
}

// Processor runs the worker pool over the durable queue.
type Processor struct {
	cfg       config.Config
	registry  Registry
	queue     Queue
	files     storage.Store
	embedder  Embedder
	retriever Retriever
	analyzer  Analyzer
}

func NewProcessor(cfg config.Config, reg Registry, q Queue, files storage.Store, emb Embedder, ret Retriever, an Analyzer) *Processor {
	return &Processor{
		cfg:       cfg,
		registry:  reg,
		queue:     q,
		files:     files,
		embedder:  emb,
		retriever: ret,
		analyzer:  an,
	}
}

// Run starts cfg.WorkerCount workers plus a lease janitor and blocks until
// the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.janitor(ctx)
	}()

	workers := p.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// janitor reclaims expired leases so jobs from crashed workers re-enter the
// ready queue, and keeps the depth gauge current.
func (p *Processor) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.VisibilityTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if reclaimed, err := p.queue.RequeueExpired(ctx, time.Now(), 100); err == nil && len(reclaimed) > 0 {
			log.Printf("reclaimed %d expired job leases", len(reclaimed))
			telemetry.InFlightGauge.Sub(float64(len(reclaimed)))
		}
		if depth, err := p.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}
	}
}

func (p *Processor) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.WorkerPollInterval):
			}
			continue
		}

		telemetry.InFlightGauge.Inc()
		p.processJob(ctx, jobID)
		telemetry.InFlightGauge.Dec()
	}
}

// ProcessOne dequeues and runs at most one job. Returns false when the queue
// was empty.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	jobID, err := p.queue.DequeueWithLease(ctx)
	if err != nil {
		return false, err
	}
	if jobID == "" {
		return false, nil
	}
	p.processJob(ctx, jobID)
	return true, nil
}

// processJob walks a leased job through its remaining stages. A job
// re-enqueued after a lease expiry resumes at the stage it was in when the
// lease lapsed, loading prior stage outputs from the artifact store.
func (p *Processor) processJob(ctx context.Context, jobID string) {
	job, err := p.registry.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("job %s: load failed, dropping lease: %v", jobID, err)
		_ = p.queue.Ack(ctx, jobID)
		return
	}
	if job.Status.Terminal() {
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	stage, ok := firstStage(job.Status)
	if !ok {
		log.Printf("job %s: no runnable stage from status %s", jobID, job.Status)
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	current := job.Status
	for {
		if cancelled, _ := p.queue.CancelRequested(ctx, jobID); cancelled {
			p.failJob(ctx, jobID, string(stage), errors.New("canceled by operator"))
			return
		}

		// A reclaimed job resumes inside the stage it already entered; the
		// status row is only advanced when the stage actually changes.
		if current != stage {
			if err := p.registry.UpdateStatus(ctx, jobID, stage, nil); err != nil {
				log.Printf("job %s: transition to %s rejected: %v", jobID, stage, err)
				_ = p.queue.Ack(ctx, jobID)
				return
			}
			current = stage
		}

		if err := p.runStage(ctx, jobID, stage); err != nil {
			p.failJob(ctx, jobID, string(stage), err)
			return
		}
		telemetry.StageCompleted.WithLabelValues(string(stage)).Inc()
		_ = p.queue.ExtendLease(ctx, jobID, p.cfg.VisibilityTimeout)

		next, ok := stage.NextStage()
		if !ok {
			break
		}
		stage = next
	}

	if err := p.finalize(ctx, jobID); err != nil {
		p.failJob(ctx, jobID, string(models.StatusNLUProcessing), err)
		return
	}
	telemetry.JobsCompleted.Inc()
	_ = p.queue.Ack(ctx, jobID)
	log.Printf("job %s: completed", jobID)
}

// firstStage maps the persisted status to the stage the run should execute
// next. A queued job starts from the beginning; a job caught mid-stage by a
// lease expiry redoes that stage.
func firstStage(s models.Status) (models.Status, bool) {
	if s == models.StatusQueued {
		return models.PipelineStages[0], true
	}
	for _, st := range models.PipelineStages {
		if st == s {
			return st, true
		}
	}
	return "", false
}

func (p *Processor) runStage(ctx context.Context, jobID string, stage models.Status) error {
	switch stage {
	case models.StatusExtracting:
		return p.stageExtract(ctx, jobID)
	case models.StatusEmbedding:
		return p.stageEmbed(ctx, jobID)
	case models.StatusRetrieving:
		return p.stageRetrieve(ctx, jobID)
	case models.StatusAIAnalysis:
		return p.stageAnalyze(ctx, jobID)
	case models.StatusNLUProcessing:
		return p.stageNLU(ctx, jobID)
	default:
		return fmt.Errorf("unknown stage %s", stage)
	}
}

func (p *Processor) failJob(ctx context.Context, jobID, stage string, err error) {
	stageErr := apperrors.NewStageError(stage, err)
	msg := stageErr.Error()
	if uerr := p.registry.UpdateStatus(ctx, jobID, models.StatusFailed, &msg); uerr != nil {
		log.Printf("job %s: could not mark failed: %v", jobID, uerr)
	}
	telemetry.StageFailures.WithLabelValues(stage).Inc()
	telemetry.JobsFailed.Inc()
	_ = p.queue.Ack(ctx, jobID)
	log.Printf("job %s: failed in %s: %v", jobID, stage, err)
}

// withRetry runs fn up to cfg.RetryAttempts times with jittered exponential
// backoff, bounding each attempt by cfg.ModelTimeout so a hung collaborator
// cannot hold a worker past its lease and let a second worker pick up the
// same job. Validation and malformed-output errors are permanent and returned
// immediately; retrying cannot change a bad archive or an out-of-range
// confidence.
func (p *Processor) withRetry(ctx context.Context, jobID string, fn func(context.Context) error) error {
	attempts := p.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.runAttempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrMalformedModelOutput) {
			return err
		}
		if attempt == attempts {
			break
		}
		wait := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, attempt)
		_ = p.queue.ExtendLease(ctx, jobID, p.cfg.VisibilityTimeout+wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

func (p *Processor) runAttempt(ctx context.Context, fn func(context.Context) error) error {
	if p.cfg.ModelTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.ModelTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if max > 0 && wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}

func (p *Processor) stageExtract(ctx context.Context, jobID string) error {
	job, err := p.registry.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	var data []byte
	err = p.withRetry(ctx, jobID, func(ctx context.Context) error {
		var gerr error
		data, gerr = p.files.Get(ctx, job.FilePath)
		return gerr
	})
	if err != nil {
		return err
	}

	summary, err := extract.Archive(data)
	if err != nil {
		return fmt.Errorf("%v: %w", err, apperrors.ErrValidation)
	}
	return p.queue.PutArtifact(ctx, jobID, string(models.StatusExtracting), summary, p.cfg.ArtifactTTL)
}

func (p *Processor) stageEmbed(ctx context.Context, jobID string) error {
	var summary extract.Summary
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusExtracting), &summary); err != nil {
		return err
	}

	var vector []float32
	err := p.withRetry(ctx, jobID, func(ctx context.Context) error {
		var eerr error
		vector, eerr = p.embedder.Embed(ctx, summary.EmbeddingText())
		return eerr
	})
	if err != nil {
		return err
	}
	return p.queue.PutArtifact(ctx, jobID, string(models.StatusEmbedding), vector, p.cfg.ArtifactTTL)
}

func (p *Processor) stageRetrieve(ctx context.Context, jobID string) error {
	var vector []float32
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusEmbedding), &vector); err != nil {
		return err
	}

	var matches []models.CaseMatch
	err := p.withRetry(ctx, jobID, func(ctx context.Context) error {
		var rerr error
		matches, rerr = p.retriever.FindSimilar(ctx, vector)
		return rerr
	})
	if err != nil {
		return err
	}
	// An empty match set is a normal outcome: the job proceeds on model
	// analysis alone.
	return p.queue.PutArtifact(ctx, jobID, string(models.StatusRetrieving), matches, p.cfg.ArtifactTTL)
}

func (p *Processor) stageAnalyze(ctx context.Context, jobID string) error {
	var summary extract.Summary
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusExtracting), &summary); err != nil {
		return err
	}
	var matches []models.CaseMatch
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusRetrieving), &matches); err != nil {
		return err
	}

	var analysis models.ModelAnalysis
	err := p.withRetry(ctx, jobID, func(ctx context.Context) error {
		var aerr error
		analysis, aerr = p.analyzer.Analyze(ctx, summary, matches)
		return aerr
	})
	if err != nil {
		return err
	}
	return p.queue.PutArtifact(ctx, jobID, string(models.StatusAIAnalysis), analysis, p.cfg.ArtifactTTL)
}

// nluArtifact is the persisted output of the entity-extraction stage.
type nluArtifact struct {
	Entities map[string][]string `json:"entities"`
	Keywords []string            `json:"keywords"`
	Patterns []models.LogPattern `json:"log_patterns"`
}

func (p *Processor) stageNLU(ctx context.Context, jobID string) error {
	var summary extract.Summary
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusExtracting), &summary); err != nil {
		return err
	}

	text := summary.EmbeddingText()
	art := nluArtifact{
		Entities: nlu.Extract(text),
		Keywords: nlu.Keywords(text),
		Patterns: nlu.Patterns(text),
	}
	return p.queue.PutArtifact(ctx, jobID, string(models.StatusNLUProcessing), art, p.cfg.ArtifactTTL)
}

// finalize folds the stage artifacts into the analysis result and persists it
// together with the completed transition.
func (p *Processor) finalize(ctx context.Context, jobID string) error {
	var summary extract.Summary
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusExtracting), &summary); err != nil {
		return err
	}
	var matches []models.CaseMatch
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusRetrieving), &matches); err != nil {
		return err
	}
	var analysis models.ModelAnalysis
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusAIAnalysis), &analysis); err != nil {
		return err
	}
	var art nluArtifact
	if err := p.queue.GetArtifact(ctx, jobID, string(models.StatusNLUProcessing), &art); err != nil {
		return err
	}

	result, err := aggregate.Aggregate(aggregate.Input{
		JobID:    jobID,
		Summary:  summary,
		Matches:  matches,
		Analysis: analysis,
		Entities: art.Entities,
		Keywords: art.Keywords,
		Patterns: art.Patterns,
	})
	if err != nil {
		return err
	}
	result.ProcessedAt = time.Now().UTC()

	if err := p.registry.SaveResult(ctx, result); err != nil {
		return err
	}

	if len(matches) > 0 {
		similar := make([]models.SimilarCase, 0, len(matches))
		for _, m := range matches {
			similar = append(similar, models.SimilarCase{
				JobID:           jobID,
				CaseID:          m.Case.CaseID,
				SimilarityScore: m.Similarity,
				MatchedAt:       result.ProcessedAt,
			})
		}
		if err := p.registry.InsertSimilarCases(ctx, jobID, similar); err != nil {
			// The result is already durable; match history is best effort.
			log.Printf("job %s: persist similar cases: %v", jobID, err)
		}
	}
	return nil
}
