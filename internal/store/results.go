package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

// SaveResult writes the AnalysisResult row and the transition to completed in
// one transaction, so a job is never observable as completed without a result
// or the other way round.
func (s *Store) SaveResult(ctx context.Context, res models.AnalysisResult) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockJobStatus(ctx, tx, res.JobID)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(models.StatusCompleted) {
		return fmt.Errorf("%s -> %s: %w", current, models.StatusCompleted, apperrors.ErrInvalidTransition)
	}

	findingsJSON, err := json.Marshal(res.KeyFindings)
	if err != nil {
		return fmt.Errorf("marshal key findings: %w", err)
	}
	distJSON, err := json.Marshal(res.SeverityDistribution)
	if err != nil {
		return fmt.Errorf("marshal severity distribution: %w", err)
	}
	analysisJSON, err := json.Marshal(res.AIAnalysis)
	if err != nil {
		return fmt.Errorf("marshal ai analysis: %w", err)
	}

	processedAt := res.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO analysis_results (job_id, files_processed, issues_found, confidence, key_findings, severity_distribution, ai_analysis, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.JobID, res.FilesProcessed, res.IssuesFound, res.Confidence,
		findingsJSON, distJSON, analysisJSON, processedAt); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	progress, _ := models.StatusCompleted.Progress()
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = $3, error_message = NULL, updated_at = NOW()
		WHERE job_id = $1
	`, res.JobID, models.StatusCompleted, progress); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	return tx.Commit(ctx)
}

// GetResult fetches the analysis result for a completed job.
func (s *Store) GetResult(ctx context.Context, jobID string) (models.AnalysisResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, files_processed, issues_found, confidence, key_findings, severity_distribution, ai_analysis, processed_at
		FROM analysis_results WHERE job_id = $1
	`, jobID)

	var res models.AnalysisResult
	var findingsJSON, distJSON, analysisJSON []byte
	err := row.Scan(&res.JobID, &res.FilesProcessed, &res.IssuesFound, &res.Confidence,
		&findingsJSON, &distJSON, &analysisJSON, &res.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AnalysisResult{}, fmt.Errorf("result for job %s: %w", jobID, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("scan result: %w", err)
	}

	if err := json.Unmarshal(findingsJSON, &res.KeyFindings); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("unmarshal key findings: %w", err)
	}
	if err := json.Unmarshal(distJSON, &res.SeverityDistribution); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("unmarshal severity distribution: %w", err)
	}
	if err := json.Unmarshal(analysisJSON, &res.AIAnalysis); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("unmarshal ai analysis: %w", err)
	}
	return res, nil
}

// InsertSimilarCases persists the ranked matches of one job run for audit.
func (s *Store) InsertSimilarCases(ctx context.Context, jobID string, matches []models.SimilarCase) error {
	if len(matches) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range matches {
		matchedAt := m.MatchedAt
		if matchedAt.IsZero() {
			matchedAt = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO similar_cases (job_id, case_id, similarity_score, matched_at)
			VALUES ($1, $2, $3, $4)
		`, jobID, m.CaseID, m.SimilarityScore, matchedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range matches {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert similar case: %w", err)
		}
	}
	return nil
}

// ListSimilarCases returns the persisted match history for a job, highest
// similarity first.
func (s *Store) ListSimilarCases(ctx context.Context, jobID string) ([]models.SimilarCase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, case_id, similarity_score, matched_at
		FROM similar_cases WHERE job_id = $1
		ORDER BY similarity_score DESC, case_id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list similar cases: %w", err)
	}
	defer rows.Close()

	var out []models.SimilarCase
	for rows.Next() {
		var m models.SimilarCase
		if err := rows.Scan(&m.JobID, &m.CaseID, &m.SimilarityScore, &m.MatchedAt); err != nil {
			return nil, fmt.Errorf("scan similar case: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
