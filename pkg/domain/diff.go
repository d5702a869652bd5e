package domain

import (
	"reflect"
)

// StateDiff represents the changes between two snapshots of a workflow.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// RequestID is always present to identify the target.
	RequestID string `json:"request_id"`

	CurrentStage *StageID `json:"current_stage,omitempty"`
	Status       *Status  `json:"status,omitempty"`

	// Fields contains only added or changed keys.
	// Fields never shrink, so there are no deletions to report.
	Fields map[string]any `json:"fields,omitempty"`

	// Audit contains the entries appended since the old snapshot.
	Audit []AuditEntry `json:"audit,omitempty"`

	Decision *DecisionRecord `json:"decision,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *WorkflowState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		RequestID: newState.RequestID,
	}

	if oldState == nil || oldState.CurrentStage != newState.CurrentStage {
		stage := newState.CurrentStage
		diff.CurrentStage = &stage
	}
	if oldState == nil || oldState.Status != newState.Status {
		status := newState.Status
		diff.Status = &status
	}
	if newState.Decision != nil && (oldState == nil || oldState.Decision == nil) {
		d := *newState.Decision
		diff.Decision = &d
	}

	diff.Fields = diffFields(oldState, newState)
	diff.Audit = diffAudit(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffFields(old, new *WorkflowState) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Fields {
			delta[k] = v
		}
	} else {
		for k, newVal := range new.Fields {
			oldVal, exists := old.Fields[k]
			if !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffAudit relies on the trail being append-only.
func diffAudit(old, new *WorkflowState) []AuditEntry {
	seq := 0
	if old != nil {
		if last, ok := old.Audit.Last(); ok {
			seq = last.Sequence
		}
	}
	entries := new.Audit.Since(seq)
	if len(entries) == 0 {
		return nil
	}
	return entries
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentStage == nil &&
		d.Status == nil &&
		d.Decision == nil &&
		len(d.Fields) == 0 &&
		len(d.Audit) == 0
}
