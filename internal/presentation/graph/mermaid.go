package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/clara/pkg/domain"
)

// Overlay contains workflow data to visualize on the pipeline.
type Overlay struct {
	Visited []domain.StageID
	Current domain.StageID
	Failed  bool
}

// OverlayFromState marks the stages a workflow entered and where it stands.
func OverlayFromState(state *domain.WorkflowState) *Overlay {
	o := &Overlay{
		Current: state.CurrentStage,
		Failed:  state.Status == domain.StatusFailed,
	}
	for _, e := range state.Audit.Entries() {
		if e.EventType == domain.EventStageEnter {
			o.Visited = append(o.Visited, e.StageID)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of the pipeline.
// Shapes follow the stage type:
// - PAYLOAD_ONLY: ((Circle))
// - HUMAN_INTERACTION: [/Parallelogram/]
// - NON_DETERMINISTIC: {{Hexagon}}
// - DETERMINISTIC: [Rectangle]
func GenerateMermaid(stages []domain.Stage, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, stage := range stages {
		opener, closer := "[", "]"
		switch stage.Type {
		case domain.StagePayloadOnly:
			opener, closer = "((", "))"
		case domain.StageHumanInteraction:
			opener, closer = "[/", "/]"
		case domain.StageNonDeterministic:
			opener, closer = "{{", "}}"
		}

		label := string(stage.ID)
		if names := abilityNames(stage.Abilities); names != "" {
			label += "<br/><small>" + names + "</small>"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", stage.ID, opener, label, closer)
	}

	for i := 0; i+1 < len(stages); i++ {
		from, to := stages[i], stages[i+1]
		if from.ID == domain.StageDecide {
			fmt.Fprintf(&sb, "    %s -- \"score >= %d\" --> %s\n", from.ID, domain.EscalationThreshold, to.ID)
			fmt.Fprintf(&sb, "    %s -. \"escalate\" .-> %s\n", from.ID, to.ID)
			continue
		}
		fmt.Fprintf(&sb, "    %s --> %s\n", from.ID, to.ID)
	}

	for _, stage := range stages {
		if names := abilityNames(stage.EscalationAbilities); names != "" {
			fmt.Fprintf(&sb, "    %%%% %s escalated: %s\n", stage.ID, strings.ReplaceAll(names, "<br/>", ", "))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on both light and dark themes
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

		seen := make(map[domain.StageID]bool)
		for _, id := range overlay.Visited {
			if id == "" || seen[id] || id == overlay.Current {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", id)
		}

		if overlay.Current != "" {
			class := "current"
			if overlay.Failed {
				class = "failed"
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", overlay.Current, class)
		}
	}

	return sb.String()
}

func abilityNames(refs []domain.AbilityRef) string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return strings.Join(names, "<br/>")
}
