package models

import "fmt"

// Status is the closed set of job lifecycle states persisted in Postgres.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusExtracting    Status = "extracting"
	StatusEmbedding     Status = "embedding"
	StatusRetrieving    Status = "retrieving"
	StatusAIAnalysis    Status = "ai_analysis"
	StatusNLUProcessing Status = "nlu_processing"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// PipelineStages lists the processing states in execution order, excluding
// queued and the terminal states.
var PipelineStages = []Status{
	StatusExtracting,
	StatusEmbedding,
	StatusRetrieving,
	StatusAIAnalysis,
	StatusNLUProcessing,
}

// transitions is the legal state graph. failed is reachable from every
// non-terminal state; queued is re-enterable only via operator reprocessing.
var transitions = map[Status][]Status{
	StatusQueued:        {StatusExtracting, StatusFailed},
	StatusExtracting:    {StatusEmbedding, StatusFailed},
	StatusEmbedding:     {StatusRetrieving, StatusFailed},
	StatusRetrieving:    {StatusAIAnalysis, StatusFailed},
	StatusAIAnalysis:    {StatusNLUProcessing, StatusFailed},
	StatusNLUProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:     {StatusQueued},
	StatusFailed:        {StatusQueued},
}

// progressWeights maps each state to the cumulative progress reached when the
// job enters it. failed carries no weight: a failing job keeps the progress
// of its last completed stage.
var progressWeights = map[Status]int{
	StatusQueued:        0,
	StatusExtracting:    17,
	StatusEmbedding:     33,
	StatusRetrieving:    50,
	StatusAIAnalysis:    67,
	StatusNLUProcessing: 83,
	StatusCompleted:     100,
}

// ParseStatus validates a raw status string against the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusQueued, StatusExtracting, StatusEmbedding, StatusRetrieving,
		StatusAIAnalysis, StatusNLUProcessing, StatusCompleted, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a processing run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress returns the cumulative progress for entering state s and whether
// the state carries a fixed weight. failed returns (0, false): the prior
// progress value is kept.
func (s Status) Progress() (int, bool) {
	p, ok := progressWeights[s]
	return p, ok
}

// NextStage returns the processing stage that follows s, or ok=false when s
// has no successor stage (nlu_processing completes via result aggregation,
// terminal states have none).
func (s Status) NextStage() (Status, bool) {
	if s == StatusQueued {
		return PipelineStages[0], true
	}
	for i, st := range PipelineStages {
		if st == s && i+1 < len(PipelineStages) {
			return PipelineStages[i+1], true
		}
	}
	return "", false
}
