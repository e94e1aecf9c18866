package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

// Store wraps pgxpool for Postgres persistence. It is the single source of
// truth for job existence and status; every stage transition goes through it.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Filename string
	FilePath string
	FileSize int64
}

// CreateJob inserts the initial job record (queued, progress 0).
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (job_id, filename, file_path, status, progress, file_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
	`, id, p.Filename, p.FilePath, models.StatusQueued, p.FileSize, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:        id,
		Filename:  p.Filename,
		FilePath:  p.FilePath,
		Status:    models.StatusQueued,
		Progress:  0,
		FileSize:  p.FileSize,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const jobColumns = `job_id, filename, file_path, status, progress, file_size, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var status string
	var errMsg pgtype.Text

	if err := row.Scan(&job.ID, &job.Filename, &job.FilePath, &status, &job.Progress,
		&job.FileSize, &errMsg, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("job: %w", apperrors.ErrNotFound)
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}

	parsed, err := models.ParseStatus(status)
	if err != nil {
		return models.Job{}, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Status = parsed
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	return job, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, id)
	return scanJob(row)
}

// ListJobs returns jobs ordered by creation time descending, optionally
// filtered by status. Pagination is stable for a fixed creation order.
func (s *Store) ListJobs(ctx context.Context, filterStatus *models.Status, limit, offset int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows pgx.Rows
	var err error
	if filterStatus != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs WHERE status = $1
			ORDER BY created_at DESC, job_id LIMIT $2 OFFSET $3
		`, *filterStatus, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			ORDER BY created_at DESC, job_id LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus applies one transition of the state graph under a row lock so
// concurrent updates to the same job are serialized. Illegal transitions are
// rejected with ErrInvalidTransition and leave the row untouched. Progress is
// derived from the fixed per-stage weights; a failing job keeps the progress
// of its last completed stage.
func (s *Store) UpdateStatus(ctx context.Context, id string, next models.Status, errorMessage *string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	current, err := lockJobStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", current, next, apperrors.ErrInvalidTransition)
	}

	if progress, ok := next.Progress(); ok {
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET status = $2, progress = $3, error_message = $4, updated_at = NOW()
			WHERE job_id = $1
		`, id, next, progress, errorMessage)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET status = $2, error_message = $3, updated_at = NOW()
			WHERE job_id = $1
		`, id, next, errorMessage)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return tx.Commit(ctx)
}

// ReprocessJob resets a terminal job to queued for a fresh progress cycle,
// superseding any prior result and match history. A job with an active run
// cannot be restarted.
func (s *Store) ReprocessJob(ctx context.Context, id string) (models.Job, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockJobStatus(ctx, tx, id)
	if err != nil {
		return models.Job{}, err
	}
	if !current.Terminal() {
		return models.Job{}, fmt.Errorf("job %s is %s: %w", id, current, apperrors.ErrJobBusy)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM analysis_results WHERE job_id = $1`, id); err != nil {
		return models.Job{}, fmt.Errorf("delete prior result: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM similar_cases WHERE job_id = $1`, id); err != nil {
		return models.Job{}, fmt.Errorf("delete prior matches: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = 0, error_message = NULL, updated_at = NOW()
		WHERE job_id = $1
	`, id, models.StatusQueued); err != nil {
		return models.Job{}, fmt.Errorf("requeue job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, fmt.Errorf("commit: %w", err)
	}
	return s.GetJob(ctx, id)
}

func lockJobStatus(ctx context.Context, tx pgx.Tx, id string) (models.Status, error) {
	var raw string
	err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE job_id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("job %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lock job: %w", err)
	}
	return models.ParseStatus(raw)
}
