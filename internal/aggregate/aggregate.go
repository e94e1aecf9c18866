// Package aggregate combines model output, retrieval matches, and entity
// extraction into the final analysis result for a job. Everything here is
// pure: the same input always produces the same result, apart from the
// processed-at timestamp supplied by the caller.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/extract"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

// retrievalWeight and modelWeight split the final confidence between the
// historical evidence and the model's own self-assessment.
const (
	retrievalWeight = 0.6
	modelWeight     = 0.4
	topKMatches     = 5
)

// Input carries the per-stage outputs the aggregator folds together.
type Input struct {
	JobID    string
	Summary  extract.Summary
	Matches  []models.CaseMatch
	Analysis models.ModelAnalysis
	Entities map[string][]string
	Keywords []string
	Patterns []models.LogPattern
}

// Aggregate validates the model payload and folds all stage outputs into one
// AnalysisResult. The model output is checked here, at the last gate before
// persistence, so even a payload that parsed cleanly cannot complete a job
// with an empty diagnosis or an out-of-range confidence.
func Aggregate(in Input) (models.AnalysisResult, error) {
	if strings.TrimSpace(in.Analysis.RootCause) == "" {
		return models.AnalysisResult{}, fmt.Errorf("empty root cause: %w", apperrors.ErrMalformedModelOutput)
	}
	if in.Analysis.Confidence < 0 || in.Analysis.Confidence > 1 {
		return models.AnalysisResult{}, fmt.Errorf("confidence %f out of range: %w", in.Analysis.Confidence, apperrors.ErrMalformedModelOutput)
	}

	issuesFound := in.Summary.TotalErrors()
	for _, issue := range in.Analysis.Issues {
		if issue.Count > 0 {
			issuesFound += issue.Count
		}
	}

	return models.AnalysisResult{
		JobID:                in.JobID,
		FilesProcessed:       len(in.Summary.Files),
		IssuesFound:          issuesFound,
		Confidence:           combinedConfidence(in.Analysis.Confidence, in.Matches),
		KeyFindings:          in.Analysis.KeyFindings,
		SeverityDistribution: severityDistribution(in.Analysis, in.Matches),
		AIAnalysis: models.AIPayload{
			ModelAnalysis: in.Analysis,
			Entities:      in.Entities,
			Keywords:      in.Keywords,
			Patterns:      in.Patterns,
		},
	}, nil
}

// combinedConfidence blends the success-rate-weighted mean similarity of the
// strongest matches with the model's own confidence. With no matches the
// model score stands alone rather than being dragged down by a zero
// retrieval term.
func combinedConfidence(modelConfidence float64, matches []models.CaseMatch) float64 {
	if len(matches) == 0 {
		return clamp01(modelConfidence)
	}

	top := matches
	if len(top) > topKMatches {
		top = top[:topKMatches]
	}
	var weighted, weights float64
	for _, m := range top {
		weighted += m.Similarity * m.Case.SuccessRate
		weights += m.Case.SuccessRate
	}
	if weights == 0 {
		return clamp01(modelConfidence)
	}
	return clamp01(retrievalWeight*(weighted/weights) + modelWeight*modelConfidence)
}

// severityDistribution counts issue occurrences per severity bucket, folding
// in the severities of matched historical cases. Buckets are always present
// so consumers can chart the distribution without nil checks.
func severityDistribution(analysis models.ModelAnalysis, matches []models.CaseMatch) map[string]int {
	dist := map[string]int{
		models.SeverityHigh:   0,
		models.SeverityMedium: 0,
		models.SeverityLow:    0,
	}
	counted := false
	for _, issue := range analysis.Issues {
		if _, ok := dist[issue.Severity]; ok {
			n := issue.Count
			if n <= 0 {
				n = 1
			}
			dist[issue.Severity] += n
			counted = true
		}
	}
	if !counted {
		if _, ok := dist[analysis.Severity]; ok {
			dist[analysis.Severity]++
		}
	}
	for _, m := range matches {
		if _, ok := dist[m.Case.Severity]; ok {
			dist[m.Case.Severity]++
		}
	}
	return dist
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
