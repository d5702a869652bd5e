package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/clara/internal/runtime"
	"github.com/aretw0/clara/pkg/adapters/simulated"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errProvider struct{ err error }

func (p errProvider) Call(context.Context, string, map[string]any) (domain.ProviderResponse, error) {
	return domain.ProviderResponse{}, p.err
}

func TestInvoker_Outcomes(t *testing.T) {
	parse := domain.AbilityRef{Name: "parse_request_text", Provider: domain.ProviderCommon}

	tests := []struct {
		name     string
		provider ports.CapabilityProvider
		success  bool
		kind     domain.ErrorKind
	}{
		{name: "success", provider: simulated.NewCommon(), success: true},
		{name: "reported failure", provider: simulated.NewCommon(simulated.WithFailure("parse_request_text", "bad input")), kind: domain.KindAbilityFailure},
		{name: "transport error", provider: errProvider{err: errors.New("connection refused")}, kind: domain.KindProviderUnavailable},
		{name: "wrapped ability failure", provider: errProvider{err: fmt.Errorf("tool: %w", domain.ErrAbilityFailure)}, kind: domain.KindAbilityFailure},
		{name: "deadline", provider: errProvider{err: context.DeadlineExceeded}, kind: domain.KindAbilityFailure},
		{name: "panic", provider: simulated.NewCommon(simulated.WithPanic("parse_request_text")), kind: domain.KindAbilityFailure},
		{name: "missing provider", provider: nil, kind: domain.KindProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := runtime.NewInvoker(map[domain.Provider]ports.CapabilityProvider{domain.ProviderCommon: tt.provider}, nil)
			state := domain.NewState("req-1", map[string]any{"query": "card declined"})

			res := inv.Invoke(context.Background(), domain.StageUnderstand, parse, state)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, parse, res.Ability)

			require.Equal(t, 1, state.Audit.Len(), "exactly one ABILITY_CALL per invocation")
			entry, _ := state.Audit.Last()
			assert.Equal(t, domain.EventAbilityCall, entry.EventType)
			assert.Equal(t, domain.StageUnderstand, entry.StageID)
			assert.Equal(t, "parse_request_text", entry.Detail["ability"])
			assert.Equal(t, tt.success, entry.Detail["success"])
			if !tt.success {
				assert.Equal(t, string(tt.kind), entry.Detail["kind"])
				assert.NotEmpty(t, res.Message)
				assert.Error(t, res.Err(domain.StageUnderstand))
			}
			assert.NotContains(t, state.Fields, "structured_request", "Invoke never merges")
		})
	}
}

func TestInvoker_InputSchema(t *testing.T) {
	common := simulated.NewCommon()
	schema := func(ref domain.AbilityRef) []string {
		if ref.Name == "parse_request_text" {
			return []string{"query", "missing"}
		}
		return nil
	}
	inv := runtime.NewInvoker(map[domain.Provider]ports.CapabilityProvider{domain.ProviderCommon: common}, schema)
	state := domain.NewState("req-1", map[string]any{"query": "q", "email": "a@b.c"})

	inv.Invoke(context.Background(), domain.StageUnderstand, domain.AbilityRef{Name: "parse_request_text", Provider: domain.ProviderCommon}, state)
	inv.Invoke(context.Background(), domain.StagePrepare, domain.AbilityRef{Name: "normalize_fields", Provider: domain.ProviderCommon}, state)

	calls := common.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"query": "q"}, calls[0].Input)
	assert.Equal(t, map[string]any{"query": "q", "email": "a@b.c"}, calls[1].Input)
}
