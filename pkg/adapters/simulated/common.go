package simulated

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/clara/pkg/domain"
)

// DefaultScore is the overall score given to the recommended solution.
const DefaultScore = 92

// NewCommon creates a simulated COMMON provider (parsing, scoring, generation).
func NewCommon(opts ...Option) *Provider {
	handlers := map[string]Handler{
		"parse_request_text":     parseRequestText,
		"normalize_fields":       normalizeFields,
		"add_flags_calculations": addFlagsCalculations,
		"solution_ranking":       solutionRanking,
		"solution_evaluation": func(input map[string]any) map[string]any {
			return solutionEvaluation(input, DefaultScore)
		},
		"response_generation": responseGeneration,
		"plan_abilities":      planAbilities,
	}
	return newProvider(domain.ProviderCommon, handlers, opts)
}

func parseRequestText(input map[string]any) map[string]any {
	query, _ := input["query"].(string)
	urgency := "Normal"
	lower := strings.ToLower(query)
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "immediately") {
		urgency = "High"
	}
	return map[string]any{
		"structured_request": map[string]any{
			"category":           "Billing",
			"sub_category":       "Payment Issue",
			"urgency":            urgency,
			"customer_sentiment": "Frustrated",
			"key_phrases":        []any{"payment failed", "card declined", "need help"},
			"intent":             "resolve_billing_issue",
		},
		"parsing_confidence": 0.91,
	}
}

func normalizeFields(input map[string]any) map[string]any {
	name, _ := input["customer_name"].(string)
	email, _ := input["email"].(string)
	priority, _ := input["priority"].(string)

	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}

	normalized := map[string]any{
		"customer_name": strings.Join(words, " "),
		"email":         strings.ToLower(email),
		"priority":      strings.ToUpper(priority),
	}
	if t, ok := input["ticket_id"].(string); ok {
		normalized["ticket_id"] = t
	}
	return map[string]any{
		"normalized_data":             normalized,
		"normalization_rules_applied": []any{"name_proper_case", "email_lowercase", "priority_uppercase"},
	}
}

func addFlagsCalculations(input map[string]any) map[string]any {
	tier := "standard"
	if profile, ok := input["customer_profile"].(map[string]any); ok {
		if t, ok := profile["customer_tier"].(string); ok {
			tier = t
		}
	}
	original, _ := input["priority"].(string)
	adjusted := original
	if tier == "premium" && original != "urgent" {
		adjusted = "high"
	}
	return map[string]any{
		"calculated_flags": map[string]any{
			"sla_risk_score":             75,
			"customer_value_tier":        tier,
			"escalation_probability":     0.25,
			"resolution_complexity":      "medium",
			"customer_satisfaction_risk": "low",
		},
		"priority_adjustments": map[string]any{
			"original_priority": original,
			"adjusted_priority": adjusted,
		},
		"sla_targets": map[string]any{
			"first_response": "4 hours",
			"resolution":     "24 hours",
		},
	}
}

func solutionRanking(input map[string]any) map[string]any {
	list, _ := input["retrieved_solutions"].([]any)
	type ranked struct {
		id    string
		score float64
	}
	var rs []ranked
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		score, _ := toFloat(m["relevance_score"])
		rs = append(rs, ranked{id: id, score: score})
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	ids := make([]any, len(rs))
	for i, r := range rs {
		ids[i] = r.id
	}
	return map[string]any{"ranked_solutions": ids}
}

// solutionEvaluation scores SOL-001 with score and SOL-002 lower, recommending SOL-001.
func solutionEvaluation(_ map[string]any, score int) map[string]any {
	return map[string]any{
		"solution_scores": map[string]any{
			"SOL-001": map[string]any{
				"overall_score":                   score,
				"relevance":                       95,
				"complexity":                      20,
				"success_rate":                    88,
				"customer_satisfaction_predicted": 4.2,
			},
			"SOL-002": map[string]any{
				"overall_score":                   min(score, 78),
				"relevance":                       85,
				"complexity":                      40,
				"success_rate":                    72,
				"customer_satisfaction_predicted": 3.8,
			},
		},
		"recommended_solution": "SOL-001",
		"confidence":           float64(score) / 100,
		"evaluation_criteria": []any{
			"relevance_to_issue",
			"historical_success_rate",
			"implementation_complexity",
			"customer_satisfaction_impact",
		},
	}
}

func responseGeneration(input map[string]any) map[string]any {
	name, _ := input["customer_name"].(string)
	if name == "" {
		name = "Valued Customer"
	}
	ticket, _ := input["ticket_id"].(string)
	if ticket == "" {
		ticket = "N/A"
	}

	var body string
	if esc, _ := input["escalated"].(bool); esc {
		body = "Thank you for contacting us. Your request needs a closer look, so it has been assigned to a senior specialist who will contact you shortly."
	} else {
		title := "the recommended resolution"
		if sol, ok := input["selected_solution"].(map[string]any); ok {
			if t, ok := sol["title"].(string); ok {
				title = t
			}
		}
		body = fmt.Sprintf("Thank you for contacting us regarding your billing issue. We applied **%s** and your account is now current.", title)
	}

	text := fmt.Sprintf("Dear %s,\n\n%s\n\nBest regards,\nCustomer Support Team\n\n_Ticket ID: %s_", name, body, ticket)
	return map[string]any{
		"generated_response": text,
		"response_metadata": map[string]any{
			"tone":                  "professional_friendly",
			"personalization_score": 0.85,
			"clarity_score":         0.92,
			"completeness_score":    0.88,
		},
	}
}

func planAbilities(input map[string]any) map[string]any {
	return map[string]any{"plan": input["abilities"]}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
