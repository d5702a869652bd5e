package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/clara/internal/presentation/graph"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/pipeline"
)

func TestGenerateMermaid(t *testing.T) {
	output := graph.GenerateMermaid(pipeline.Default().Stages(), nil)

	contains := []string{
		"graph TD\n",
		`INTAKE(("INTAKE"))`,
		`COMPLETE(("COMPLETE"))`,
		`ASK[/"ASK"/]`,
		`RETRIEVE{{"RETRIEVE<br/><small>knowledge_base_search`,
		`UNDERSTAND["UNDERSTAND<br/><small>parse_request_text<br/>extract_entities</small>"]`,
		"INTAKE --> UNDERSTAND",
		`DECIDE -- "score >= 90" --> UPDATE`,
		`DECIDE -. "escalate" .-> UPDATE`,
		"DO --> COMPLETE",
		"%% UPDATE escalated: update_ticket, record_escalation",
	}
	for _, c := range contains {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q, but it didn't.\nOutput:\n%s", c, output)
		}
	}
	if strings.Contains(output, "classDef") {
		t.Error("no overlay styles without an overlay")
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	state := domain.NewState("req-1", nil)
	for _, id := range []domain.StageID{domain.StageIntake, domain.StageUnderstand, domain.StagePrepare, domain.StageAsk} {
		state.Audit.Append(domain.AuditEntry{StageID: id, EventType: domain.EventStageEnter})
		state.Audit.Append(domain.AuditEntry{StageID: id, EventType: domain.EventStageExit})
	}
	state.CurrentStage = domain.StageAsk

	output := graph.GenerateMermaid(pipeline.Default().Stages(), graph.OverlayFromState(state))
	for _, c := range []string{
		"class INTAKE visited;",
		"class PREPARE visited;",
		"class ASK current;",
	} {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q.\nOutput:\n%s", c, output)
		}
	}
	if strings.Contains(output, "class ASK visited;") {
		t.Error("current stage must not also be styled as visited")
	}

	state.Status = domain.StatusFailed
	output = graph.GenerateMermaid(pipeline.Default().Stages(), graph.OverlayFromState(state))
	if !strings.Contains(output, "class ASK failed;") {
		t.Errorf("failed workflow should style its stage as failed.\nOutput:\n%s", output)
	}
}
