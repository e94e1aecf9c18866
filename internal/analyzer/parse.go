package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

// parseResponse extracts the JSON object from the model reply. Models wrap
// the object in prose or code fences often enough that taking the span
// between the first '{' and the last '}' is the pragmatic choice.
func parseResponse(content string) (models.ModelAnalysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return models.ModelAnalysis{}, fmt.Errorf("no JSON object in model reply: %w", apperrors.ErrModelUnavailable)
	}

	var analysis models.ModelAnalysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &analysis); err != nil {
		return models.ModelAnalysis{}, fmt.Errorf("decode model reply: %v: %w", err, apperrors.ErrModelUnavailable)
	}

	// The prompt asks for a 0-100 confidence; storage standardizes on a
	// [0,1] fraction. Accept either form from the model.
	if analysis.Confidence > 1 {
		analysis.Confidence = analysis.Confidence / 100
	}
	analysis.Severity = normalizeSeverity(analysis.Severity)
	for i := range analysis.Issues {
		analysis.Issues[i].Severity = normalizeSeverity(analysis.Issues[i].Severity)
	}
	return analysis, nil
}

func normalizeSeverity(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case models.SeverityHigh, "CRITICAL":
		return models.SeverityHigh
	case models.SeverityMedium, "MODERATE":
		return models.SeverityMedium
	case models.SeverityLow, "INFO":
		return models.SeverityLow
	default:
		return s
	}
}
