// Package planner provides ports.Planner implementations for NON_DETERMINISTIC stages.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
)

// Declared runs every available ability in declared order.
type Declared struct{}

func (Declared) Plan(_ context.Context, _ domain.Stage, available []domain.AbilityRef, _ *domain.WorkflowState) ([]domain.AbilityRef, error) {
	return append([]domain.AbilityRef(nil), available...), nil
}

// Func adapts a plain function to ports.Planner.
type Func func(ctx context.Context, stage domain.Stage, available []domain.AbilityRef, snapshot *domain.WorkflowState) ([]domain.AbilityRef, error)

func (f Func) Plan(ctx context.Context, stage domain.Stage, available []domain.AbilityRef, snapshot *domain.WorkflowState) ([]domain.AbilityRef, error) {
	return f(ctx, stage, available, snapshot)
}

// Predicate decides whether an ability should run given the current state.
type Predicate func(snapshot *domain.WorkflowState) bool

// Rules keeps the declared order but drops abilities whose predicate is false.
// Abilities without a rule always run.
type Rules map[string]Predicate

func (r Rules) Plan(_ context.Context, _ domain.Stage, available []domain.AbilityRef, snapshot *domain.WorkflowState) ([]domain.AbilityRef, error) {
	out := make([]domain.AbilityRef, 0, len(available))
	for _, ref := range available {
		if pred, ok := r[ref.Name]; ok && !pred(snapshot) {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}

// HasField is a Predicate that holds when the field is present and non-empty.
func HasField(key string) Predicate {
	return func(s *domain.WorkflowState) bool {
		v, ok := s.Fields[key]
		if !ok || v == nil {
			return false
		}
		switch t := v.(type) {
		case string:
			return t != ""
		case []any:
			return len(t) > 0
		case map[string]any:
			return len(t) > 0
		}
		return true
	}
}

// DefaultPlanAbility is the COMMON ability consulted by Provider.
const DefaultPlanAbility = "plan_abilities"

// Provider delegates the ordering to a COMMON ability. The ability receives
// the stage, the candidate names and the current fields, and answers with
// {"plan": [names...]}. Any failure falls back to the declared order.
type Provider struct {
	provider ports.CapabilityProvider
	ability  string
	logger   *slog.Logger
}

// ProviderOption configures a Provider planner.
type ProviderOption func(*Provider)

// WithAbility overrides the planning ability name.
func WithAbility(name string) ProviderOption {
	return func(p *Provider) {
		p.ability = name
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a planner backed by the COMMON provider.
func NewProvider(common ports.CapabilityProvider, opts ...ProviderOption) *Provider {
	p := &Provider{
		provider: common,
		ability:  DefaultPlanAbility,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Plan(ctx context.Context, stage domain.Stage, available []domain.AbilityRef, snapshot *domain.WorkflowState) ([]domain.AbilityRef, error) {
	names := make([]string, len(available))
	byName := make(map[string]domain.AbilityRef, len(available))
	for i, ref := range available {
		names[i] = ref.Name
		byName[ref.Name] = ref
	}

	resp, err := p.provider.Call(ctx, p.ability, map[string]any{
		"stage":     string(stage.ID),
		"abilities": names,
		"fields":    snapshot.FieldsSnapshot(),
	})
	if err != nil || !resp.Success {
		p.logger.WarnContext(ctx, "planner ability unavailable, using declared order", "stage", stage.ID, "err", errOrMessage(err, resp))
		return Declared{}.Plan(ctx, stage, available, snapshot)
	}

	planned, ok := toStrings(resp.Output["plan"])
	if !ok {
		p.logger.WarnContext(ctx, "planner returned no plan, using declared order", "stage", stage.ID)
		return Declared{}.Plan(ctx, stage, available, snapshot)
	}

	out := make([]domain.AbilityRef, 0, len(planned))
	for _, name := range planned {
		ref, known := byName[name]
		if !known {
			// Unknown names are passed through so the executor can report them as rejected.
			ref = domain.AbilityRef{Name: name, Provider: domain.ProviderCommon}
		}
		out = append(out, ref)
	}
	return out, nil
}

func errOrMessage(err error, resp domain.ProviderResponse) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("provider reported failure: %s", resp.Message)
}

func toStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
