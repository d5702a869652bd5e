package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

var transforms = map[string]domain.TransformFunc{
	"intake":   Intake,
	"complete": Complete,
}

// Priorities accepted at INTAKE.
var Priorities = []string{"low", "medium", "high", "urgent"}

// DefaultPriority is applied when the request carries none.
const DefaultPriority = "medium"

// CustomerRequest is the validated INTAKE payload.
type CustomerRequest struct {
	CustomerName string `mapstructure:"customer_name"`
	Email        string `mapstructure:"email"`
	Query        string `mapstructure:"query"`
	Priority     string `mapstructure:"priority"`
	TicketID     string `mapstructure:"ticket_id"`
	Phone        string `mapstructure:"phone"`
}

// DecodeRequest reads the customer request out of the workflow fields.
func DecodeRequest(fields map[string]any) (CustomerRequest, error) {
	var req CustomerRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &req,
	})
	if err != nil {
		return req, err
	}
	if err := dec.Decode(fields); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Email = strings.TrimSpace(req.Email)
	req.Query = strings.TrimSpace(req.Query)
	req.Priority = strings.ToLower(strings.TrimSpace(req.Priority))
	return req, nil
}

// Validate returns every problem found in the request, joined.
func (r CustomerRequest) Validate() error {
	var errs []error
	if r.CustomerName == "" {
		errs = append(errs, errors.New("missing required field: customer_name"))
	}
	if r.Email == "" {
		errs = append(errs, errors.New("missing required field: email"))
	} else if !strings.Contains(r.Email, "@") {
		errs = append(errs, fmt.Errorf("invalid email format: %s", r.Email))
	}
	if r.Query == "" {
		errs = append(errs, errors.New("missing required field: query"))
	}
	if r.Priority != "" && !slices.Contains(Priorities, r.Priority) {
		errs = append(errs, fmt.Errorf("invalid priority %q: must be one of %s", r.Priority, strings.Join(Priorities, ", ")))
	}
	return errors.Join(errs...)
}

// TicketID builds the ticket identifier used when the request carries none:
// TKT-YYYYMMDD-<8 lowercase hex>. The hex part is the start of the request ID
// when that is hex (a uuid), otherwise a name-based uuid of the request ID, so
// the same request always gets the same ticket.
func TicketID(requestID string, at time.Time) string {
	suffix := strings.ToLower(strings.ReplaceAll(requestID, "-", ""))
	if len(suffix) < 8 || !isHex(suffix[:8]) {
		suffix = strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, []byte(requestID)).String(), "-", "")
	}
	return fmt.Sprintf("TKT-%s-%s", at.Format("20060102"), suffix[:8])
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

// Intake validates the customer request and fills the defaults.
func Intake(state *domain.WorkflowState) (map[string]any, error) {
	req, err := DecodeRequest(state.Fields)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Priority == "" {
		req.Priority = DefaultPriority
	}
	if req.TicketID == "" {
		at := state.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		req.TicketID = TicketID(state.RequestID, at)
	}

	return map[string]any{
		"customer_name": req.CustomerName,
		"email":         req.Email,
		"query":         req.Query,
		"priority":      req.Priority,
		"ticket_id":     req.TicketID,
		"ticket_status": "open",
	}, nil
}

// Complete assembles the final payload of the workflow.
func Complete(state *domain.WorkflowState) (map[string]any, error) {
	f := state.Fields
	escalated := state.Decision != nil && state.Decision.Escalated()

	path := "auto_resolved"
	if escalated {
		path = "escalated"
	}

	payload := map[string]any{
		"ticket_id": f["ticket_id"],
		"customer": map[string]any{
			"name":  f["customer_name"],
			"email": f["email"],
		},
		"priority":           f["priority"],
		"query":              f["query"],
		"resolution":         f["generated_response"],
		"resolution_status":  resolutionStatus(state, escalated),
		"resolution_summary": resolutionSummary(f, escalated),
		"escalated":          escalated,
		"resolution_path":    path,
		"selected_solution":  f["selected_solution"],
		"processing_summary": processingSummary(state),
	}
	if escalated {
		payload["assigned_agent"] = f["assigned_agent"]
	}

	return map[string]any{domain.FieldFinalPayload: payload}, nil
}

func resolutionStatus(state *domain.WorkflowState, escalated bool) string {
	switch {
	case escalated:
		return "escalated"
	case state.Degraded():
		return "completed_with_errors"
	case state.Fields["ticket_closed"] == true:
		return "resolved"
	default:
		return "completed"
	}
}

func resolutionSummary(f map[string]any, escalated bool) string {
	if escalated {
		return "Issue escalated to human agent for further assistance."
	}
	if sol, ok := f["selected_solution"].(map[string]any); ok {
		if title, ok := sol["title"].(string); ok && title != "" {
			return fmt.Sprintf("Issue resolved using: %s. Customer response generated and notifications sent.", title)
		}
	}
	return "Workflow completed successfully."
}

func processingSummary(state *domain.WorkflowState) map[string]any {
	entries := state.Audit.Entries()

	stages := make([]string, 0, len(domain.StageOrder()))
	seen := make(map[domain.StageID]bool)
	invoked := 0
	failed := []string{}
	for _, e := range entries {
		switch e.EventType {
		case domain.EventStageEnter:
			if !seen[e.StageID] {
				seen[e.StageID] = true
				stages = append(stages, string(e.StageID))
			}
		case domain.EventAbilityCall:
			invoked++
			if ok, _ := e.Detail["success"].(bool); !ok {
				name, _ := e.Detail["ability"].(string)
				failed = append(failed, name)
			}
		}
	}

	var durationMS int64
	if len(entries) > 0 {
		durationMS = entries[len(entries)-1].Timestamp.Sub(entries[0].Timestamp).Milliseconds()
	}

	degraded := []string{}
	for _, id := range state.DegradedStages() {
		degraded = append(degraded, string(id))
	}

	return map[string]any{
		"total_stages":      len(domain.StageOrder()),
		"stages_executed":   stages,
		"abilities_invoked": invoked,
		"failed_abilities":  failed,
		"degraded_stages":   degraded,
		"total_duration_ms": durationMS,
	}
}
