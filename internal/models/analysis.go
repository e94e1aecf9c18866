package models

import "time"

// Severity buckets used across model output and knowledge-base entries.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// ModelIssue is one problem the generative model reported in the logs.
type ModelIssue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// ModelAnalysis is the structured payload returned by the generative-model
// backend. Confidence is a [0,1] fraction; the backend client normalizes
// percentage-style hints before this struct is built.
type ModelAnalysis struct {
	RootCause       string       `json:"root_cause"`
	Severity        string       `json:"severity"`
	Confidence      float64      `json:"confidence"`
	Recommendations []string     `json:"recommendations"`
	KeyFindings     []string     `json:"key_findings"`
	Issues          []ModelIssue `json:"issues,omitempty"`
	ModelUsed       string       `json:"model_used,omitempty"`
}

// LogPattern is a coarse issue class the entity extractor recognized.
type LogPattern struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// AIPayload is the opaque structured blob stored in analysis_results.ai_analysis.
// It bundles the model output with the entity-extraction results.
type AIPayload struct {
	ModelAnalysis
	Entities map[string][]string `json:"entities,omitempty"`
	Keywords []string            `json:"keywords,omitempty"`
	Patterns []LogPattern        `json:"log_patterns,omitempty"`
}

// AnalysisResult is the immutable output of one completed job.
type AnalysisResult struct {
	JobID                string         `json:"job_id"`
	FilesProcessed       int            `json:"files_processed"`
	IssuesFound          int            `json:"issues_found"`
	Confidence           float64        `json:"confidence"`
	KeyFindings          []string       `json:"key_findings"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	AIAnalysis           AIPayload      `json:"ai_analysis"`
	ProcessedAt          time.Time      `json:"processed_at"`
}
