package pipeline

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/clara/pkg/domain"
	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog violates the pipeline rules.
var ErrInvalidCatalog = errors.New("invalid stage catalog")

// AbilityConfig binds an ability to a provider and declares its input slice.
type AbilityConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Provider string   `yaml:"provider" json:"provider"`
	Inputs   []string `yaml:"inputs" json:"inputs"`
}

// StageConfig is the file representation of a stage.
type StageConfig struct {
	ID                  string          `yaml:"id" json:"id"`
	Type                string          `yaml:"type" json:"type"`
	Description         string          `yaml:"description" json:"description"`
	Abilities           []AbilityConfig `yaml:"abilities" json:"abilities"`
	EscalationAbilities []AbilityConfig `yaml:"escalation_abilities" json:"escalation_abilities"`
	PromptField         string          `yaml:"prompt_field" json:"prompt_field"`
	Transform           string          `yaml:"transform" json:"transform"`
}

// ConfigFile represents the structure of stages.yaml.
type ConfigFile struct {
	Version    int           `yaml:"version" json:"version"`
	Scoring    string        `yaml:"scoring" json:"scoring"`
	Escalation string        `yaml:"escalation" json:"escalation"`
	Stages     []StageConfig `yaml:"stages" json:"stages"`
}

// Catalog is the validated, immutable stage configuration used by the executor.
type Catalog struct {
	stages []domain.Stage
	inputs map[string][]string

	// Scoring is the COMMON ability the Decision Engine calls at DECIDE.
	Scoring domain.AbilityRef
	// Escalation is the ability invoked at DECIDE when the outcome is ESCALATE.
	// Its Name is empty when the catalog declares none.
	Escalation domain.AbilityRef
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, ".yaml")
	if err != nil {
		// The embedded file is covered by tests.
		panic(fmt.Sprintf("pipeline: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file (YAML or JSON) and validates it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage catalog: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a catalog. ext selects JSON when it is ".json"; anything else is YAML.
func Parse(data []byte, ext string) (*Catalog, error) {
	var cfg ConfigFile
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse stage catalog: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse stage catalog: %w", err)
		}
	}
	return Build(cfg)
}

// Build converts and validates a decoded configuration.
func Build(cfg ConfigFile) (*Catalog, error) {
	c := &Catalog{inputs: make(map[string][]string)}

	for _, sc := range cfg.Stages {
		st := domain.Stage{
			ID:          domain.StageID(strings.ToUpper(sc.ID)),
			Type:        domain.StageType(strings.ToUpper(sc.Type)),
			Description: sc.Description,
			PromptField: sc.PromptField,
		}
		var err error
		if st.Abilities, err = c.refs(st.ID, sc.Abilities); err != nil {
			return nil, err
		}
		if sc.EscalationAbilities != nil {
			if st.EscalationAbilities, err = c.refs(st.ID, sc.EscalationAbilities); err != nil {
				return nil, err
			}
		}
		if sc.Transform != "" {
			fn, ok := transforms[sc.Transform]
			if !ok {
				return nil, fmt.Errorf("%w: stage %s: unknown transform %q", ErrInvalidCatalog, st.ID, sc.Transform)
			}
			st.Transform = fn
		}
		c.stages = append(c.stages, st)
	}

	if cfg.Scoring != "" {
		if ref, ok := c.find(domain.StageDecide, cfg.Scoring); ok {
			c.Scoring = ref
		}
	}
	if cfg.Escalation != "" {
		if ref, ok := c.find(domain.StageDecide, cfg.Escalation); ok {
			c.Escalation = ref
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) refs(stage domain.StageID, list []AbilityConfig) ([]domain.AbilityRef, error) {
	out := make([]domain.AbilityRef, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, a := range list {
		ref := domain.AbilityRef{Name: a.Name, Provider: domain.Provider(strings.ToUpper(a.Provider))}
		if a.Name == "" {
			return nil, fmt.Errorf("%w: stage %s: ability without name", ErrInvalidCatalog, stage)
		}
		if !ref.Provider.Valid() {
			return nil, fmt.Errorf("%w: stage %s: ability %s: unknown provider %q", ErrInvalidCatalog, stage, a.Name, a.Provider)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: stage %s: duplicate ability %s", ErrInvalidCatalog, stage, a.Name)
		}
		seen[a.Name] = true
		if a.Inputs != nil {
			c.inputs[ref.String()] = append([]string(nil), a.Inputs...)
		}
		out = append(out, ref)
	}
	return out, nil
}

func (c *Catalog) find(stage domain.StageID, name string) (domain.AbilityRef, bool) {
	st, ok := c.Stage(stage)
	if !ok {
		return domain.AbilityRef{}, false
	}
	for _, ref := range st.Abilities {
		if ref.Name == name {
			return ref, true
		}
	}
	return domain.AbilityRef{}, false
}

// Validate enforces the pipeline rules: the eleven stages in their fixed order,
// abilities only where the stage type allows them, and a COMMON scoring ability at DECIDE.
func (c *Catalog) Validate() error {
	order := domain.StageOrder()
	if len(c.stages) != len(order) {
		return fmt.Errorf("%w: expected %d stages, got %d", ErrInvalidCatalog, len(order), len(c.stages))
	}

	for i, st := range c.stages {
		if st.ID != order[i] {
			return fmt.Errorf("%w: position %d must be %s, got %s", ErrInvalidCatalog, i+1, order[i], st.ID)
		}
		if !st.Type.Valid() {
			return fmt.Errorf("%w: stage %s: unknown type %q", ErrInvalidCatalog, st.ID, st.Type)
		}

		switch st.Type {
		case domain.StageDeterministic, domain.StageNonDeterministic:
			if len(st.Abilities) == 0 {
				return fmt.Errorf("%w: stage %s: %s stage needs abilities", ErrInvalidCatalog, st.ID, st.Type)
			}
			if st.Transform != nil || st.PromptField != "" {
				return fmt.Errorf("%w: stage %s: transform and prompt_field not allowed on %s", ErrInvalidCatalog, st.ID, st.Type)
			}
		case domain.StageHumanInteraction:
			if len(st.Abilities) > 0 || st.Transform != nil {
				return fmt.Errorf("%w: stage %s: HUMAN_INTERACTION takes no abilities or transform", ErrInvalidCatalog, st.ID)
			}
			if st.PromptField == "" {
				return fmt.Errorf("%w: stage %s: prompt_field is required", ErrInvalidCatalog, st.ID)
			}
		case domain.StagePayloadOnly:
			if len(st.Abilities) > 0 || st.PromptField != "" {
				return fmt.Errorf("%w: stage %s: PAYLOAD_ONLY takes no abilities", ErrInvalidCatalog, st.ID)
			}
			if st.Transform == nil {
				return fmt.Errorf("%w: stage %s: transform is required", ErrInvalidCatalog, st.ID)
			}
		}

		if st.EscalationAbilities != nil {
			if st.Type != domain.StageDeterministic {
				return fmt.Errorf("%w: stage %s: escalation variants are only allowed on DETERMINISTIC stages", ErrInvalidCatalog, st.ID)
			}
			if st.ID.Index() <= domain.StageDecide.Index() {
				return fmt.Errorf("%w: stage %s: escalation variants are only allowed after DECIDE", ErrInvalidCatalog, st.ID)
			}
			if len(st.EscalationAbilities) == 0 {
				return fmt.Errorf("%w: stage %s: empty escalation variant", ErrInvalidCatalog, st.ID)
			}
		}
	}

	decide := c.stages[domain.StageDecide.Index()]
	if decide.Type != domain.StageNonDeterministic {
		return fmt.Errorf("%w: DECIDE must be NON_DETERMINISTIC", ErrInvalidCatalog)
	}
	if c.Scoring.Name == "" {
		return fmt.Errorf("%w: DECIDE needs a scoring ability", ErrInvalidCatalog)
	}
	if c.Scoring.Provider != domain.ProviderCommon {
		return fmt.Errorf("%w: scoring ability %s must be provided by COMMON", ErrInvalidCatalog, c.Scoring.Name)
	}
	if c.Escalation.Name != "" && c.Escalation == c.Scoring {
		return fmt.Errorf("%w: escalation ability must differ from the scoring ability", ErrInvalidCatalog)
	}
	return nil
}

// Stages returns the stages in execution order.
func (c *Catalog) Stages() []domain.Stage {
	out := make([]domain.Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Stage returns the configuration of a single stage.
func (c *Catalog) Stage(id domain.StageID) (domain.Stage, bool) {
	i := id.Index()
	if i < 0 || i >= len(c.stages) {
		return domain.Stage{}, false
	}
	return c.stages[i], true
}

// Inputs returns the declared input slice of an ability. Nil means every field.
func (c *Catalog) Inputs(ref domain.AbilityRef) []string {
	in, ok := c.inputs[ref.String()]
	if !ok {
		return nil
	}
	return append([]string(nil), in...)
}

// Abilities returns every distinct ability referenced by the catalog.
func (c *Catalog) Abilities() []domain.AbilityRef {
	var out []domain.AbilityRef
	seen := make(map[domain.AbilityRef]bool)
	for _, st := range c.stages {
		for _, list := range [][]domain.AbilityRef{st.Abilities, st.EscalationAbilities} {
			for _, ref := range list {
				if !seen[ref] {
					seen[ref] = true
					out = append(out, ref)
				}
			}
		}
	}
	return out
}
