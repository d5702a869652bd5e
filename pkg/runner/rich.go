package runner

import (
	"fmt"
	"strings"

	"github.com/aretw0/clara/pkg/domain"
)

// Report is the presentation of a workflow for rich clients (terminal, MCP, etc).
type Report struct {
	RequestID string          `json:"request_id"`
	Status    domain.Status   `json:"status"`
	Stage     domain.StageID  `json:"stage"`
	Questions []string        `json:"questions,omitempty"`
	Payload   map[string]any  `json:"payload,omitempty"`
	Failure   *domain.Failure `json:"failure,omitempty"`
	Markdown  string          `json:"markdown"`
}

// NewReport builds the Report of a workflow state.
func NewReport(state *domain.WorkflowState) Report {
	rep := Report{
		RequestID: state.RequestID,
		Status:    state.Status,
		Stage:     state.CurrentStage,
		Failure:   state.Failure,
	}
	if state.Pending != nil {
		rep.Questions = append([]string(nil), state.Pending.Questions...)
	}
	if payload, ok := state.Payload(); ok {
		rep.Payload = payload
	}
	rep.Markdown = Markdown(state)
	return rep
}

// Markdown renders a workflow state for humans.
func Markdown(state *domain.WorkflowState) string {
	switch {
	case state.Status == domain.StatusWaitingForHuman && state.Pending != nil:
		return QuestionsMarkdown(state.RequestID, *state.Pending)
	case state.Status == domain.StatusFailed:
		return failureMarkdown(state)
	case state.Status == domain.StatusCompleted:
		return resultMarkdown(state)
	}
	return fmt.Sprintf("## Workflow `%s`\n\n%s at **%s**\n", state.RequestID, state.Status, state.CurrentStage)
}

// QuestionsMarkdown renders the clarification questions of a suspended workflow.
func QuestionsMarkdown(requestID string, req domain.HumanRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## We need a few more details\n\n_Request `%s`_\n\n", requestID)
	for i, q := range req.Questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	return sb.String()
}

func failureMarkdown(state *domain.WorkflowState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Workflow `%s` failed\n\n", state.RequestID)
	if f := state.Failure; f != nil {
		fmt.Fprintf(&sb, "- **Error:** %s\n- **Stage:** %s\n", f.Kind, f.Stage)
		if f.Ability != "" {
			fmt.Fprintf(&sb, "- **Ability:** %s\n", f.Ability)
		}
		fmt.Fprintf(&sb, "\n> %s\n", f.Message)
	}
	return sb.String()
}

func resultMarkdown(state *domain.WorkflowState) string {
	payload, _ := state.Payload()
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Ticket %v\n\n", payload["ticket_id"])
	if resolution, ok := payload["resolution"].(string); ok && resolution != "" {
		sb.WriteString(resolution)
		sb.WriteString("\n\n---\n\n")
	}

	if d := state.Decision; d != nil {
		fmt.Fprintf(&sb, "- **Decision:** %s (score %d, threshold %d)\n", d.Outcome, d.Score, d.Threshold)
		fmt.Fprintf(&sb, "- **Rationale:** %s\n", d.Rationale)
	}
	if status, ok := payload["resolution_status"].(string); ok {
		fmt.Fprintf(&sb, "- **Status:** %s\n", status)
	}
	if agent, ok := payload["assigned_agent"]; ok && agent != nil {
		fmt.Fprintf(&sb, "- **Assigned agent:** %v\n", agent)
	}
	if summary, ok := payload["processing_summary"].(map[string]any); ok {
		fmt.Fprintf(&sb, "- **Abilities invoked:** %v\n", summary["abilities_invoked"])
		if degraded := strings.Join(stringList(summary["degraded_stages"]), ", "); degraded != "" {
			fmt.Fprintf(&sb, "- **Degraded stages:** %s\n", degraded)
		}
	}
	return sb.String()
}

// stringList accepts both the in-memory and the decoded JSON form of a string list.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
