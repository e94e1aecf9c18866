package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

const kbColumns = `case_id, title, description, solution, category, severity, success_rate, is_active, created_at, updated_at`

func scanKBEntry(row pgx.Row) (models.KnowledgeBaseEntry, error) {
	var e models.KnowledgeBaseEntry
	if err := row.Scan(&e.CaseID, &e.Title, &e.Description, &e.Solution, &e.Category,
		&e.Severity, &e.SuccessRate, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.KnowledgeBaseEntry{}, fmt.Errorf("knowledge base entry: %w", apperrors.ErrNotFound)
		}
		return models.KnowledgeBaseEntry{}, fmt.Errorf("scan knowledge base entry: %w", err)
	}
	return e, nil
}

// GetActiveCases returns the active knowledge-base entries for the given case
// IDs. Inactive and unknown IDs are silently skipped: retrieval only ranks
// what is currently active.
func (s *Store) GetActiveCases(ctx context.Context, caseIDs []string) ([]models.KnowledgeBaseEntry, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+kbColumns+` FROM knowledge_base
		WHERE case_id = ANY($1) AND is_active
	`, caseIDs)
	if err != nil {
		return nil, fmt.Errorf("query active cases: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeBaseEntry
	for rows.Next() {
		e, err := scanKBEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FetchSolutions is a read-only lookup over active entries, optionally
// restricted by category, keeping only entries at or above minSuccessRate.
func (s *Store) FetchSolutions(ctx context.Context, category string, minSuccessRate float64) ([]models.KnowledgeBaseEntry, error) {
	var rows pgx.Rows
	var err error
	if category != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT `+kbColumns+` FROM knowledge_base
			WHERE is_active AND category = $1 AND success_rate >= $2
			ORDER BY success_rate DESC, case_id
		`, category, minSuccessRate)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+kbColumns+` FROM knowledge_base
			WHERE is_active AND success_rate >= $1
			ORDER BY success_rate DESC, case_id
		`, minSuccessRate)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch solutions: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeBaseEntry
	for rows.Next() {
		e, err := scanKBEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertCase inserts or refreshes a curated knowledge-base entry. Used by the
// seeding tool; the pipeline itself never writes the knowledge base.
func (s *Store) UpsertCase(ctx context.Context, e models.KnowledgeBaseEntry) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_base (case_id, title, description, solution, category, severity, success_rate, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (case_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			solution = EXCLUDED.solution,
			category = EXCLUDED.category,
			severity = EXCLUDED.severity,
			success_rate = EXCLUDED.success_rate,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`, e.CaseID, e.Title, e.Description, e.Solution, e.Category, e.Severity, e.SuccessRate, e.IsActive, now)
	if err != nil {
		return fmt.Errorf("upsert case %s: %w", e.CaseID, err)
	}
	return nil
}
