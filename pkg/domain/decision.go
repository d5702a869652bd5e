package domain

import (
	"fmt"
	"maps"
	"time"
)

const (
	// EscalationThreshold is the score below which a request is escalated.
	EscalationThreshold = 90
	MinScore            = 1
	MaxScore            = 100
)

// Outcome is the result of the escalation decision.
type Outcome string

const (
	OutcomeAutoResolve Outcome = "AUTO_RESOLVE"
	OutcomeEscalate    Outcome = "ESCALATE"
)

// OutcomeFor returns ESCALATE if score is strictly below the threshold.
func OutcomeFor(score int) Outcome {
	if score < EscalationThreshold {
		return OutcomeEscalate
	}
	return OutcomeAutoResolve
}

// DecisionRecord captures the single escalation decision taken at DECIDE.
type DecisionRecord struct {
	Score     int                `json:"score"`
	Threshold int                `json:"threshold"`
	Outcome   Outcome            `json:"outcome"`
	Rationale string             `json:"rationale"`
	Factors   map[string]float64 `json:"factors,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewDecisionRecord validates the score and derives the outcome.
// Scores outside [MinScore, MaxScore] are rejected, never clamped.
func NewDecisionRecord(score int, factors map[string]float64, rationale string, ts time.Time) (DecisionRecord, error) {
	if score < MinScore || score > MaxScore {
		return DecisionRecord{}, &WorkflowError{
			Kind:    KindScoringUnavailable,
			Stage:   StageDecide,
			Message: fmt.Sprintf("score %d outside [%d,%d]", score, MinScore, MaxScore),
		}
	}
	return DecisionRecord{
		Score:     score,
		Threshold: EscalationThreshold,
		Outcome:   OutcomeFor(score),
		Rationale: rationale,
		Factors:   maps.Clone(factors),
		Timestamp: ts,
	}, nil
}

// Escalated reports whether the outcome is ESCALATE.
func (d DecisionRecord) Escalated() bool {
	return d.Outcome == OutcomeEscalate
}

// Map renders the record as a plain mapping for payloads and audit details.
func (d DecisionRecord) Map() map[string]any {
	m := map[string]any{
		"score":     d.Score,
		"threshold": d.Threshold,
		"outcome":   string(d.Outcome),
		"rationale": d.Rationale,
		"timestamp": d.Timestamp.Format(time.RFC3339Nano),
	}
	if len(d.Factors) > 0 {
		f := make(map[string]any, len(d.Factors))
		for k, v := range d.Factors {
			f[k] = v
		}
		m["factors"] = f
	}
	return m
}
