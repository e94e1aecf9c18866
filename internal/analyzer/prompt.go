package analyzer

import (
	"fmt"
	"strings"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/extract"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

const (
	maxPromptCases    = 3
	maxPromptFindings = 5
)

func buildPrompt(summary extract.Summary, matches []models.CaseMatch) string {
	var b strings.Builder

	b.WriteString("Analyze the following log data and provide insights.\n\n")
	fmt.Fprintf(&b, "EXTRACTED LOG DATA:\n- Files processed: %d\n- Total lines: %d\n- Error findings: %d\n- Warning findings: %d\n",
		len(summary.Files), summary.TotalLines, summary.TotalErrors(), summary.TotalWarnings())

	for _, f := range summary.Files {
		for i, e := range f.Errors {
			if i >= maxPromptFindings {
				break
			}
			fmt.Fprintf(&b, "- %s:%d %s\n", f.Filename, e.LineNumber, e.Content)
		}
	}

	b.WriteString("\nSIMILAR HISTORICAL CASES:\n")
	if len(matches) == 0 {
		b.WriteString("- none found\n")
	}
	for i, m := range matches {
		if i >= maxPromptCases {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s (similarity %.2f, success rate %.2f): %s\n",
			m.Case.CaseID, m.Case.Title, m.Similarity, m.Case.SuccessRate, m.Case.Solution)
	}

	b.WriteString(`
Provide:
1. Root cause analysis
2. Severity assessment (HIGH/MEDIUM/LOW)
3. Recommended actions
4. Confidence level (0-100)

Respond with JSON only, in this structure:
{
  "root_cause": "detailed analysis",
  "severity": "HIGH",
  "confidence": 85,
  "recommendations": ["action 1", "action 2"],
  "key_findings": ["finding 1", "finding 2"],
  "issues": [{"type": "Database Connection", "severity": "HIGH", "description": "...", "count": 3}]
}
`)
	return b.String()
}
