package models

import "time"

// KnowledgeBaseEntry is a curated historical incident/solution pair. Only
// active entries participate in retrieval.
type KnowledgeBaseEntry struct {
	CaseID      string    `json:"case_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Solution    string    `json:"solution"`
	Category    string    `json:"category"`
	Severity    string    `json:"severity"`
	SuccessRate float64   `json:"success_rate"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CaseMatch pairs a knowledge-base entry with its similarity to a job's
// embedding. Slices of CaseMatch are always ordered by similarity descending.
type CaseMatch struct {
	Case       KnowledgeBaseEntry `json:"case"`
	Similarity float64            `json:"similarity"`
}
