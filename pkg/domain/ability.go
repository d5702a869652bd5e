package domain

import "time"

// ProviderResponse is what a capability provider returns for a single call.
type ProviderResponse struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Message string         `json:"message,omitempty"`
}

// AbilityResult is the outcome of one invocation as seen by the executor.
type AbilityResult struct {
	Ability  AbilityRef
	Success  bool
	Output   map[string]any
	Kind     ErrorKind
	Message  string
	Duration time.Duration
}

// Err converts a failed result into a WorkflowError. It returns nil on success.
func (r AbilityResult) Err(stage StageID) error {
	if r.Success {
		return nil
	}
	return &WorkflowError{
		Kind:    r.Kind,
		Stage:   stage,
		Ability: r.Ability.String(),
		Message: r.Message,
	}
}

// HumanRequest describes what a suspended workflow is waiting for.
type HumanRequest struct {
	Stage       StageID   `json:"stage"`
	Questions   []string  `json:"questions"`
	RequestedAt time.Time `json:"requested_at"`
}
