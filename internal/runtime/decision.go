package runtime

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ScoringReport is the output of the COMMON scoring ability.
// Either Score is set, or the score is taken from SolutionScores.
type ScoringReport struct {
	Score               *float64                  `mapstructure:"score"`
	Factors             map[string]float64        `mapstructure:"factors"`
	Rationale           string                    `mapstructure:"rationale"`
	RecommendedSolution string                    `mapstructure:"recommended_solution"`
	SolutionScores      map[string]map[string]any `mapstructure:"solution_scores"`
	Confidence          float64                   `mapstructure:"confidence"`
}

// DecisionEngine makes the single escalation decision of a workflow.
type DecisionEngine struct {
	invoker *Invoker
	scoring domain.AbilityRef
	now     func() time.Time
	hooks   domain.LifecycleHooks
}

// NewDecisionEngine creates a decision engine calling the given scoring ability.
func NewDecisionEngine(invoker *Invoker, scoring domain.AbilityRef) *DecisionEngine {
	return &DecisionEngine{invoker: invoker, scoring: scoring, now: defaultClock}
}

// Decide scores the candidate solutions and records the outcome on state.
// Any scoring problem is a ScoringUnavailable error; the score is never clamped.
// On ESCALATE the workflow status becomes ESCALATED.
func (d *DecisionEngine) Decide(ctx context.Context, state *domain.WorkflowState) (domain.DecisionRecord, error) {
	res := d.invoker.Invoke(ctx, domain.StageDecide, d.scoring, state)
	if !res.Success {
		return domain.DecisionRecord{}, &domain.WorkflowError{
			Kind:    domain.KindScoringUnavailable,
			Stage:   domain.StageDecide,
			Ability: d.scoring.String(),
			Message: fmt.Sprintf("%s: %s", res.Kind, res.Message),
		}
	}

	report, err := DecodeScoringReport(res.Output)
	if err != nil {
		return domain.DecisionRecord{}, scoringError(d.scoring, "%v", err)
	}
	raw, solution, ok := report.resolveScore()
	if !ok {
		return domain.DecisionRecord{}, scoringError(d.scoring, "no score reported")
	}
	if raw != math.Trunc(raw) {
		return domain.DecisionRecord{}, scoringError(d.scoring, "score %v is not an integer", raw)
	}
	// Range check before the int conversion so huge values cannot wrap.
	if raw < domain.MinScore || raw > domain.MaxScore {
		return domain.DecisionRecord{}, scoringError(d.scoring, "score %v outside [%d,%d]", raw, domain.MinScore, domain.MaxScore)
	}
	score := int(raw)

	factors := report.Factors
	if len(factors) == 0 {
		factors = numericFactors(report.SolutionScores[solution])
	}

	rec, err := domain.NewDecisionRecord(score, factors, rationale(score, report.Rationale, factors), d.now())
	if err != nil {
		return domain.DecisionRecord{}, err
	}

	updates := make(map[string]any, len(res.Output)+4)
	for k, v := range res.Output {
		updates[k] = v
	}
	updates["solution_score"] = score
	updates[domain.FieldEscalated] = rec.Escalated()
	updates["decision_reasoning"] = rec.Rationale
	if solution != "" {
		updates["recommended_solution"] = solution
		updates["selected_solution"] = selectSolution(state.Fields["retrieved_solutions"], solution)
	}
	if err := state.Merge(updates); err != nil {
		return domain.DecisionRecord{}, err
	}

	state.Audit.Append(domain.AuditEntry{
		StageID:   domain.StageDecide,
		EventType: domain.EventDecision,
		Timestamp: rec.Timestamp,
		Detail:    rec.Map(),
	})
	state.Decision = &rec
	if rec.Escalated() {
		state.Status = domain.StatusEscalated
	}

	if d.hooks.OnDecision != nil {
		d.hooks.OnDecision(ctx, &domain.DecisionEvent{
			EventBase: domain.EventBase{Timestamp: rec.Timestamp, RequestID: state.RequestID},
			Record:    rec,
		})
	}
	return rec, nil
}

// DecodeScoringReport reads a scoring ability output. Numbers must be numeric
// kinds or json.Number; strings and booleans are rejected, never converted.
func DecodeScoringReport(output map[string]any) (ScoringReport, error) {
	var report ScoringReport
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &report,
	})
	if err != nil {
		return report, err
	}
	if err := dec.Decode(output); err != nil {
		return report, fmt.Errorf("decode scoring report: %w", err)
	}
	return report, nil
}

// resolveScore picks the score: the explicit score, else the recommended
// solution's overall_score, else the best overall_score.
func (r ScoringReport) resolveScore() (float64, string, bool) {
	if r.Score != nil {
		return *r.Score, r.RecommendedSolution, true
	}
	if s, ok := overallScore(r.SolutionScores[r.RecommendedSolution]); ok && r.RecommendedSolution != "" {
		return s, r.RecommendedSolution, true
	}

	ids := make([]string, 0, len(r.SolutionScores))
	for id := range r.SolutionScores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best, bestID, found := 0.0, "", false
	for _, id := range ids {
		if s, ok := overallScore(r.SolutionScores[id]); ok && (!found || s > best) {
			best, bestID, found = s, id, true
		}
	}
	return best, bestID, found
}

func overallScore(m map[string]any) (float64, bool) {
	if m == nil {
		return 0, false
	}
	return toFloat(m["overall_score"])
}

func numericFactors(m map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range m {
		if k == "overall_score" {
			continue
		}
		if f, ok := toFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func rationale(score int, reported string, factors map[string]float64) string {
	var b strings.Builder
	if reported != "" {
		b.WriteString(reported)
		b.WriteString("; ")
	}
	if score < domain.EscalationThreshold {
		fmt.Fprintf(&b, "score %d below threshold %d: escalate", score, domain.EscalationThreshold)
	} else {
		fmt.Fprintf(&b, "score %d meets threshold %d: auto-resolve", score, domain.EscalationThreshold)
	}

	if len(factors) > 0 {
		keys := make([]string, 0, len(factors))
		for k := range factors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%g", k, factors[k])
		}
		b.WriteString("; factors: ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}

func selectSolution(retrieved any, id string) map[string]any {
	var list []any
	switch v := retrieved.(type) {
	case []any:
		list = v
	case []map[string]any:
		for _, m := range v {
			list = append(list, m)
		}
	}
	for _, item := range list {
		if m, ok := item.(map[string]any); ok && m["id"] == id {
			return m
		}
	}
	return map[string]any{"id": id}
}

func scoringError(ref domain.AbilityRef, format string, args ...any) error {
	return &domain.WorkflowError{
		Kind:    domain.KindScoringUnavailable,
		Stage:   domain.StageDecide,
		Ability: ref.String(),
		Message: fmt.Sprintf(format, args...),
	}
}
