package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	running := StatusRunning
	waiting := StatusWaitingForHuman

	trail := NewAuditLog()
	trail.Append(AuditEntry{StageID: StageIntake, EventType: EventStageEnter})
	grown := trail.Clone()
	grown.Append(AuditEntry{StageID: StageIntake, EventType: EventStageExit})

	tests := []struct {
		name     string
		old      *WorkflowState
		new      *WorkflowState
		wantDiff *StateDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &WorkflowState{
				RequestID:    "req-1",
				CurrentStage: StageIntake,
				Status:       StatusRunning,
				Fields:       map[string]any{"a": 1},
			},
			wantDiff: &StateDiff{
				RequestID:    "req-1",
				CurrentStage: &[]StageID{StageIntake}[0],
				Status:       &running,
				Fields:       map[string]any{"a": 1},
			},
		},
		{
			name: "No Changes",
			old: &WorkflowState{
				RequestID:    "req-1",
				CurrentStage: StageAsk,
				Status:       StatusRunning,
				Fields:       map[string]any{"a": 1},
			},
			new: &WorkflowState{
				RequestID:    "req-1",
				CurrentStage: StageAsk,
				Status:       StatusRunning,
				Fields:       map[string]any{"a": 1},
			},
			wantDiff: nil,
		},
		{
			name: "Status Change",
			old: &WorkflowState{
				RequestID:    "req-1",
				CurrentStage: StageAsk,
				Status:       StatusRunning,
			},
			new: &WorkflowState{
				RequestID:    "req-1",
				CurrentStage: StageAsk,
				Status:       StatusWaitingForHuman,
			},
			wantDiff: &StateDiff{
				RequestID: "req-1",
				Status:    &waiting,
			},
		},
		{
			name: "Fields Added & Modified",
			old: &WorkflowState{
				RequestID: "req-1",
				Fields:    map[string]any{"a": 1, "b": "old"},
			},
			new: &WorkflowState{
				RequestID: "req-1",
				Fields:    map[string]any{"a": 1, "b": "new", "c": true},
			},
			wantDiff: &StateDiff{
				RequestID: "req-1",
				Fields:    map[string]any{"b": "new", "c": true},
			},
		},
		{
			name: "Audit Append",
			old: &WorkflowState{
				RequestID: "req-1",
				Audit:     trail,
			},
			new: &WorkflowState{
				RequestID: "req-1",
				Audit:     grown,
			},
			wantDiff: &StateDiff{
				RequestID: "req-1",
				Audit:     grown.Since(1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %v", tt.wantDiff)
			}

			if got.RequestID != tt.wantDiff.RequestID {
				t.Errorf("Diff().RequestID = %v, want %v", got.RequestID, tt.wantDiff.RequestID)
			}
			if !reflect.DeepEqual(got.Fields, tt.wantDiff.Fields) {
				t.Errorf("Diff().Fields = %v, want %v", got.Fields, tt.wantDiff.Fields)
			}
			if !reflect.DeepEqual(got.Audit, tt.wantDiff.Audit) {
				t.Errorf("Diff().Audit = %v, want %v", got.Audit, tt.wantDiff.Audit)
			}
			if !equalPtr(got.CurrentStage, tt.wantDiff.CurrentStage) {
				t.Errorf("Diff().CurrentStage = %v, want %v", got.CurrentStage, tt.wantDiff.CurrentStage)
			}
			if !equalPtr(got.Status, tt.wantDiff.Status) {
				t.Errorf("Diff().Status = %v, want %v", got.Status, tt.wantDiff.Status)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	s1 := &WorkflowState{RequestID: "req-1", Fields: map[string]any{"a": 1}, Status: StatusRunning}
	s2 := &WorkflowState{RequestID: "req-1", Fields: map[string]any{"a": 1}, Status: StatusCompleted}
	diff := Diff(s1, s2)
	if diff == nil {
		t.Fatal("Expected diff, got nil")
	}

	bytes, _ := json.Marshal(diff)
	if strings.Contains(string(bytes), `"fields"`) {
		t.Errorf("JSON should not contain 'fields' when unchanged, got: %s", string(bytes))
	}
	if !strings.Contains(string(bytes), `"status":"COMPLETED"`) {
		t.Errorf("JSON should contain the new status, got: %s", string(bytes))
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
