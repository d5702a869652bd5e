package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviders_CoverCatalog(t *testing.T) {
	atlas, common := NewAtlas(), NewCommon()
	known := map[domain.Provider]map[string]bool{
		domain.ProviderAtlas:  {},
		domain.ProviderCommon: {},
	}
	for _, name := range atlas.Abilities() {
		known[domain.ProviderAtlas][name] = true
	}
	for _, name := range common.Abilities() {
		known[domain.ProviderCommon][name] = true
	}

	for _, ref := range pipeline.Default().Abilities() {
		assert.True(t, known[ref.Provider][ref.Name], "no simulated handler for %s", ref)
	}
}

func TestProvider_Scripting(t *testing.T) {
	ctx := context.Background()

	t.Run("failure", func(t *testing.T) {
		p := NewAtlas(WithFailure("update_ticket", "ticketing down"))
		resp, err := p.Call(ctx, "update_ticket", nil)
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, "ticketing down", resp.Message)
		assert.Equal(t, 1, p.CallCount("update_ticket"))
	})

	t.Run("unavailable", func(t *testing.T) {
		p := NewCommon(Unavailable())
		_, err := p.Call(ctx, "parse_request_text", nil)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, p.Health(ctx), ErrUnavailable)

		p.SetUnavailable(false)
		assert.NoError(t, p.Health(ctx))
	})

	t.Run("latency honours deadline", func(t *testing.T) {
		p := NewCommon(WithLatency(time.Second))
		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := p.Call(tctx, "parse_request_text", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unknown ability", func(t *testing.T) {
		resp, err := NewCommon().Call(ctx, "teleport", nil)
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})

	t.Run("score", func(t *testing.T) {
		resp, err := NewCommon(WithScore(45)).Call(ctx, "solution_evaluation", nil)
		require.NoError(t, err)
		scores := resp.Output["solution_scores"].(map[string]any)
		assert.Equal(t, 45, scores["SOL-001"].(map[string]any)["overall_score"])
		assert.Equal(t, 45, scores["SOL-002"].(map[string]any)["overall_score"])
	})
}

func TestEscalationDecision(t *testing.T) {
	out := escalationDecision(map[string]any{"solution_score": 60})
	assert.Equal(t, true, out["should_escalate"])
	assert.Equal(t, "high", out["escalation_priority"])
	assert.Equal(t, "senior_agent_001", out["assigned_agent"])

	out = escalationDecision(map[string]any{"solution_score": 95.0})
	assert.Equal(t, false, out["should_escalate"])
	assert.NotContains(t, out, "assigned_agent")
}

func TestSolutionRanking(t *testing.T) {
	out := solutionRanking(knowledgeBaseSearch(nil))
	assert.Equal(t, []any{"SOL-001", "SOL-002"}, out["ranked_solutions"])
}
