package simulated

import (
	"time"

	"github.com/aretw0/clara/pkg/domain"
)

// NewAtlas creates a simulated ATLAS provider (external systems: CRM, ticketing, notifications).
func NewAtlas(opts ...Option) *Provider {
	handlers := map[string]Handler{
		"extract_entities":      extractEntities,
		"enrich_records":        enrichRecords,
		"clarify_question":      clarifyQuestion,
		"extract_answer":        extractAnswer,
		"knowledge_base_search": knowledgeBaseSearch,
		"past_ticket_search":    pastTicketSearch,
		"escalation_decision":   escalationDecision,
		"update_ticket":         updateTicket,
		"close_ticket":          closeTicket,
		"record_escalation":     recordEscalation,
		"execute_api_calls":     executeAPICalls,
		"handoff_to_human":      handoffToHuman,
		"trigger_notifications": triggerNotifications,
	}
	return newProvider(domain.ProviderAtlas, handlers, opts)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func extractEntities(map[string]any) map[string]any {
	return map[string]any{
		"entities": map[string]any{
			"product":          "Premium Subscription",
			"account_id":       "ACC-12345",
			"issue_type":       "Billing",
			"dates_mentioned":  []any{"2024-01-15"},
			"urgency_keywords": []any{"urgent", "immediately"},
		},
		"entity_confidence": map[string]any{
			"product":    0.95,
			"account_id": 0.88,
			"issue_type": 0.92,
		},
	}
}

func enrichRecords(map[string]any) map[string]any {
	return map[string]any{
		"customer_profile": map[string]any{
			"customer_tier":      "premium",
			"sla_response_time":  "4 hours",
			"previous_tickets":   3,
			"satisfaction_score": 4.2,
			"account_value":      "$2,400/year",
			"risk_flags":         []any{"high_value_customer"},
		},
	}
}

func clarifyQuestion(map[string]any) map[string]any {
	return map[string]any{
		"clarification_needed": true,
		"clarification_questions": []any{
			"Could you please provide your account ID?",
			"When did this billing issue first occur?",
			"What specific error message are you seeing?",
		},
	}
}

func extractAnswer(input map[string]any) map[string]any {
	info := map[string]any{
		"account_id":    "ACC-12345",
		"error_date":    "2024-01-15",
		"error_message": "Payment failed - card declined",
	}
	completeness := 0.85
	if answer, _ := input["customer_answer"].(string); answer == "" {
		completeness = 0.0
	}
	return map[string]any{
		"extracted_info":      info,
		"answer_completeness": completeness,
	}
}

func knowledgeBaseSearch(map[string]any) map[string]any {
	return map[string]any{
		"retrieved_solutions": []any{
			map[string]any{
				"id":              "SOL-001",
				"title":           "Billing Payment Failure Resolution",
				"relevance_score": 0.92,
				"steps": []any{
					"Verify payment method is valid",
					"Check account balance",
					"Update billing information",
					"Process manual payment if needed",
				},
				"estimated_resolution_time": "15 minutes",
			},
			map[string]any{
				"id":              "SOL-002",
				"title":           "Card Decline Troubleshooting",
				"relevance_score": 0.87,
				"steps": []any{
					"Contact bank to verify card status",
					"Try alternative payment method",
					"Update card information",
				},
				"estimated_resolution_time": "10 minutes",
			},
		},
		"total_results": 2,
	}
}

func pastTicketSearch(map[string]any) map[string]any {
	return map[string]any{
		"past_tickets": []any{
			map[string]any{
				"ticket_id":   "TKT-20231201-7F3A9C21",
				"summary":     "Card declined on renewal",
				"solution_id": "SOL-001",
				"resolved":    true,
			},
		},
	}
}

func escalationDecision(input map[string]any) map[string]any {
	score, _ := toFloat(input["solution_score"])
	escalate := score < domain.EscalationThreshold
	out := map[string]any{
		"should_escalate":     escalate,
		"escalation_priority": "medium",
	}
	if score < 70 {
		out["escalation_priority"] = "high"
	}
	if escalate {
		out["escalation_reason"] = "Solution confidence below threshold"
		out["assigned_agent"] = "senior_agent_001"
	}
	return out
}

func updateTicket(input map[string]any) map[string]any {
	status := "in_progress"
	if esc, _ := input["escalated"].(bool); esc {
		status = "pending_escalation"
	}
	return map[string]any{
		"ticket_updated": true,
		"ticket_status":  status,
		"fields_updated": []any{"status", "priority", "assigned_agent", "sla_target"},
		"updated_at":     now(),
	}
}

func closeTicket(map[string]any) map[string]any {
	return map[string]any{
		"ticket_closed":                     true,
		"ticket_status":                     "closed",
		"resolution_code":                   "resolved_payment_issue",
		"customer_satisfaction_survey_sent": true,
		"closed_at":                         now(),
	}
}

func recordEscalation(map[string]any) map[string]any {
	return map[string]any{
		"escalation_recorded": true,
		"ticket_status":       "escalated",
		"escalation_queue":    "tier2_billing",
		"escalated_at":        now(),
	}
}

func executeAPICalls(map[string]any) map[string]any {
	return map[string]any{
		"api_calls_executed": []any{
			map[string]any{"system": "billing_system", "action": "update_payment_method", "success": true, "response_code": 200},
			map[string]any{"system": "crm_system", "action": "update_customer_record", "success": true, "response_code": 200},
		},
		"api_failures": 0,
	}
}

func handoffToHuman(input map[string]any) map[string]any {
	agent, _ := input["assigned_agent"].(string)
	if agent == "" {
		agent = "support_queue"
	}
	return map[string]any{
		"handoff_completed": true,
		"assigned_agent":    agent,
		"handoff_channel":   "agent_console",
		"handoff_at":        now(),
	}
}

func triggerNotifications(input map[string]any) map[string]any {
	recipient, _ := input["email"].(string)
	if recipient == "" {
		recipient = "customer@example.com"
	}
	subject := "Your support ticket has been resolved"
	if esc, _ := input["escalated"].(bool); esc {
		subject = "Your support ticket has been assigned to a specialist"
	}
	return map[string]any{
		"notifications_sent": []any{
			map[string]any{"type": "email", "recipient": recipient, "subject": subject, "sent": true, "timestamp": now()},
		},
		"delivery_status": "all_sent",
	}
}
