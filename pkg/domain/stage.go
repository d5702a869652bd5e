package domain

// StageID identifies one of the eleven fixed pipeline positions.
type StageID string

const (
	StageIntake     StageID = "INTAKE"
	StageUnderstand StageID = "UNDERSTAND"
	StagePrepare    StageID = "PREPARE"
	StageAsk        StageID = "ASK"
	StageWait       StageID = "WAIT"
	StageRetrieve   StageID = "RETRIEVE"
	StageDecide     StageID = "DECIDE"
	StageUpdate     StageID = "UPDATE"
	StageCreate     StageID = "CREATE"
	StageDo         StageID = "DO"
	StageComplete   StageID = "COMPLETE"
)

var stageOrder = [...]StageID{
	StageIntake,
	StageUnderstand,
	StagePrepare,
	StageAsk,
	StageWait,
	StageRetrieve,
	StageDecide,
	StageUpdate,
	StageCreate,
	StageDo,
	StageComplete,
}

// StageOrder returns the fixed execution order of the pipeline.
func StageOrder() []StageID {
	out := make([]StageID, len(stageOrder))
	copy(out, stageOrder[:])
	return out
}

// Index returns the zero-based position of the stage, or -1 if unknown.
func (id StageID) Index() int {
	for i, s := range stageOrder {
		if s == id {
			return i
		}
	}
	return -1
}

// Valid reports whether id is one of the eleven stages.
func (id StageID) Valid() bool {
	return id.Index() >= 0
}

// Next returns the stage that follows id. The second value is false for COMPLETE
// and for unknown stages.
func (id StageID) Next() (StageID, bool) {
	i := id.Index()
	if i < 0 || i == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[i+1], true
}

// StageType defines the execution semantics of a stage.
type StageType string

const (
	// StageDeterministic invokes its abilities strictly in the declared order.
	// The first failure aborts the workflow.
	StageDeterministic StageType = "DETERMINISTIC"
	// StageNonDeterministic asks the Planner for an ordering of its ability set.
	// Failures degrade the stage instead of aborting it.
	StageNonDeterministic StageType = "NON_DETERMINISTIC"
	// StageHumanInteraction suspends the workflow until human input is supplied.
	StageHumanInteraction StageType = "HUMAN_INTERACTION"
	// StagePayloadOnly performs a pure transformation of the state fields.
	StagePayloadOnly StageType = "PAYLOAD_ONLY"
)

// Valid reports whether t is a known stage type.
func (t StageType) Valid() bool {
	switch t {
	case StageDeterministic, StageNonDeterministic, StageHumanInteraction, StagePayloadOnly:
		return true
	}
	return false
}

// Provider identifies a capability provider.
type Provider string

const (
	// ProviderAtlas performs external-system side effects (database, API, notifications).
	// Calls may be non-idempotent.
	ProviderAtlas Provider = "ATLAS"
	// ProviderCommon performs pure internal computation (parsing, scoring, calculation).
	ProviderCommon Provider = "COMMON"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderAtlas || p == ProviderCommon
}

// AbilityRef names a single unit of work and the provider that performs it.
type AbilityRef struct {
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider"`
}

func (r AbilityRef) String() string {
	return string(r.Provider) + "/" + r.Name
}

// TransformFunc is the pure transformation of a PAYLOAD_ONLY stage.
// It returns the field updates to merge into the state.
type TransformFunc func(state *WorkflowState) (map[string]any, error)

// Stage is the static configuration of one pipeline position.
type Stage struct {
	ID   StageID   `json:"id"`
	Type StageType `json:"type"`

	// Abilities is the ordered list (DETERMINISTIC) or the candidate set
	// (NON_DETERMINISTIC) of abilities. Empty for the other types.
	Abilities []AbilityRef `json:"abilities,omitempty"`

	// EscalationAbilities replaces Abilities once the workflow is ESCALATED.
	// Nil means the stage has no escalation variant.
	EscalationAbilities []AbilityRef `json:"escalation_abilities,omitempty"`

	// PromptField names the field holding the questions shown to a human (HUMAN_INTERACTION).
	PromptField string `json:"prompt_field,omitempty"`

	// Transform is the payload transformation (PAYLOAD_ONLY).
	Transform TransformFunc `json:"-"`

	Description string `json:"description,omitempty"`
}

// AbilitiesFor returns a copy of the ability list that applies under the given status.
func (s Stage) AbilitiesFor(status Status) []AbilityRef {
	src := s.Abilities
	if status == StatusEscalated && s.EscalationAbilities != nil {
		src = s.EscalationAbilities
	}
	out := make([]AbilityRef, len(src))
	copy(out, src)
	return out
}
