package domain

import (
	"maps"
	"time"
)

// Status defines the lifecycle position of a workflow.
type Status string

const (
	StatusRunning         Status = "RUNNING"           // Stages are executing
	StatusWaitingForHuman Status = "WAITING_FOR_HUMAN" // Suspended at ASK until Resume
	StatusEscalated       Status = "ESCALATED"         // Running the escalation variants after DECIDE
	StatusCompleted       Status = "COMPLETED"         // COMPLETE finished; payload available
	StatusFailed          Status = "FAILED"            // Halted by a fatal error or cancellation
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Runnable reports whether the executor may run stages under this status.
func (s Status) Runnable() bool {
	return s == StatusRunning || s == StatusEscalated
}

// Failure describes why a workflow ended in FAILED.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Stage   StageID   `json:"stage"`
	Ability string    `json:"ability,omitempty"`
	Message string    `json:"message"`
}

// Progress tracks the abilities already completed within the in-flight stage.
// It lets an interrupted workflow continue without re-invoking them.
type Progress struct {
	Stage   StageID  `json:"stage,omitempty"`
	Invoked []string `json:"invoked,omitempty"`
}

// Done reports whether the ability was already completed in stage.
func (p Progress) Done(stage StageID, ref AbilityRef) bool {
	if p.Stage != stage {
		return false
	}
	key := ref.String()
	for _, k := range p.Invoked {
		if k == key {
			return true
		}
	}
	return false
}

// WorkflowState is the mutable record of one customer request as it moves through the pipeline.
type WorkflowState struct {
	// RequestID is unique and never changes.
	RequestID string `json:"request_id"`

	// Fields holds the accumulated request data. Keys are only ever added or overwritten.
	Fields map[string]any `json:"fields"`

	// CurrentStage is the stage being executed, or the next one to execute.
	CurrentStage StageID `json:"current_stage"`

	Status   Status          `json:"status"`
	Decision *DecisionRecord `json:"decision,omitempty"`
	Failure  *Failure        `json:"failure,omitempty"`
	Progress Progress        `json:"progress"`

	// Pending holds the questions awaiting a human answer (Status == WAITING_FOR_HUMAN).
	Pending *HumanRequest `json:"pending,omitempty"`

	// ResumeDigest is the fingerprint of the last accepted human input.
	ResumeDigest string `json:"resume_digest,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Audit *AuditLog `json:"audit"`
}

// NewState creates a workflow positioned at INTAKE with the given initial fields.
func NewState(requestID string, fields map[string]any) *WorkflowState {
	f := make(map[string]any, len(fields))
	for k, v := range fields {
		f[k] = copyValue(v)
	}
	return &WorkflowState{
		RequestID:    requestID,
		Fields:       f,
		CurrentStage: StageIntake,
		Status:       StatusRunning,
		Audit:        NewAuditLog(),
	}
}

// Merge adds or overwrites fields. It never removes a key.
func (s *WorkflowState) Merge(updates map[string]any) error {
	if s.Status.Terminal() {
		return ErrTerminalState
	}
	if s.Fields == nil {
		s.Fields = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		s.Fields[k] = copyValue(v)
	}
	return nil
}

// Slice returns a copy of the requested fields. A nil key list returns every field.
// Missing keys are omitted.
func (s *WorkflowState) Slice(keys []string) map[string]any {
	if keys == nil {
		return s.FieldsSnapshot()
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.Fields[k]; ok {
			out[k] = copyValue(v)
		}
	}
	return out
}

// FieldsSnapshot returns a deep copy of Fields.
func (s *WorkflowState) FieldsSnapshot() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out[k] = copyValue(v)
	}
	return out
}

// Snapshot returns a deep copy detached from the live workflow.
func (s *WorkflowState) Snapshot() *WorkflowState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Fields = s.FieldsSnapshot()
	if s.Decision != nil {
		d := *s.Decision
		d.Factors = maps.Clone(s.Decision.Factors)
		cp.Decision = &d
	}
	if s.Failure != nil {
		f := *s.Failure
		cp.Failure = &f
	}
	if s.Pending != nil {
		p := *s.Pending
		p.Questions = append([]string(nil), s.Pending.Questions...)
		cp.Pending = &p
	}
	cp.Progress.Invoked = append([]string(nil), s.Progress.Invoked...)
	cp.Audit = s.Audit.Clone()
	return &cp
}

// Degraded reports whether any non-deterministic stage completed with failures.
func (s *WorkflowState) Degraded() bool {
	v, _ := s.Fields[FieldDegraded].(bool)
	return v
}

// DegradedStages lists the stages that completed degraded, in execution order.
func (s *WorkflowState) DegradedStages() []StageID {
	var out []StageID
	switch v := s.Fields[FieldDegradedStages].(type) {
	case []string:
		for _, id := range v {
			out = append(out, StageID(id))
		}
	case []any:
		for _, id := range v {
			if str, ok := id.(string); ok {
				out = append(out, StageID(str))
			}
		}
	}
	return out
}

// Payload returns the final result of a completed workflow.
// It carries request_id, status, decision_record (when present) and the
// resolution fields shaped by COMPLETE.
func (s *WorkflowState) Payload() (map[string]any, bool) {
	if s.Status != StatusCompleted {
		return nil, false
	}
	out := make(map[string]any)
	if fp, ok := s.Fields[FieldFinalPayload].(map[string]any); ok {
		for k, v := range fp {
			out[k] = copyValue(v)
		}
	}
	out["request_id"] = s.RequestID
	out["status"] = string(s.Status)
	if s.Decision != nil {
		out["decision_record"] = s.Decision.Map()
	}
	return out, true
}

// Well-known field keys written by the engine.
const (
	FieldDegraded       = "degraded"
	FieldDegradedStages = "degraded_stages"
	FieldFinalPayload   = "final_payload"
	FieldEscalated      = "escalated"
)

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = copyValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = copyValue(vv)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, vv := range t {
			out[i] = copyValue(vv).(map[string]any)
		}
		return out
	default:
		return v
	}
}
