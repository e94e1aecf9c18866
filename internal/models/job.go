package models

import (
	"time"
)

// Job represents one uploaded log archive's processing unit persisted in Postgres.
type Job struct {
	ID           string    `json:"job_id"`
	Filename     string    `json:"filename"`
	FilePath     string    `json:"file_path"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	FileSize     int64     `json:"file_size"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SimilarCase is one persisted match between a job and a knowledge-base entry,
// kept for audit and history.
type SimilarCase struct {
	JobID           string    `json:"job_id"`
	CaseID          string    `json:"case_id"`
	SimilarityScore float64   `json:"similarity_score"`
	MatchedAt       time.Time `json:"matched_at"`
}
