package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/pkg/adapters/simulated"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, kind domain.Provider, sim *simulated.Provider) *Provider {
	t.Helper()
	ctx := context.Background()
	c, err := client.NewInProcessClient(NewAbilityServer(kind, sim, sim.Abilities()))
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	p, err := Connect(ctx, kind, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_Call(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		p := connect(t, domain.ProviderCommon, simulated.NewCommon())
		resp, err := p.Call(ctx, "parse_request_text", map[string]any{"query": "urgent: card declined"})
		require.NoError(t, err)
		require.True(t, resp.Success)
		structured, ok := resp.Output["structured_request"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "High", structured["urgency"])
		assert.Equal(t, domain.ProviderCommon, p.Kind())
	})

	t.Run("reported failure", func(t *testing.T) {
		p := connect(t, domain.ProviderAtlas, simulated.NewAtlas(simulated.WithFailure("update_ticket", "ticketing down")))
		resp, err := p.Call(ctx, "update_ticket", nil)
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, "ticketing down", resp.Message)
	})

	t.Run("provider outage", func(t *testing.T) {
		sim := simulated.NewCommon()
		p := connect(t, domain.ProviderCommon, sim)
		sim.SetUnavailable(true)
		_, err := p.Call(ctx, "parse_request_text", nil)
		assert.Error(t, err)
	})

	t.Run("unknown tool", func(t *testing.T) {
		p := connect(t, domain.ProviderCommon, simulated.NewCommon())
		_, err := p.Call(ctx, "teleport", nil)
		assert.Error(t, err)
	})

	t.Run("health", func(t *testing.T) {
		p := connect(t, domain.ProviderCommon, simulated.NewCommon())
		assert.NoError(t, p.Health(ctx))
	})
}

func TestToolOutput(t *testing.T) {
	tests := []struct {
		name       string
		structured any
		text       string
		want       map[string]any
	}{
		{name: "structured map", structured: map[string]any{"a": 1.0}, want: map[string]any{"a": 1.0}},
		{name: "structured struct", structured: struct {
			A string `json:"a"`
		}{A: "x"}, want: map[string]any{"a": "x"}},
		{name: "json text", text: `{"score": 91}`, want: map[string]any{"score": 91.0}},
		{name: "plain text", text: "done", want: map[string]any{"text": "done"}},
		{name: "empty", want: map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toolOutput(tt.structured, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := toolOutput([]any{1}, "")
	assert.Error(t, err)
}

func TestFirstText(t *testing.T) {
	assert.Equal(t, "hi", firstText([]mcp.Content{mcp.NewTextContent("hi")}))
	assert.Empty(t, firstText(nil))
}

func TestProvider_DrivesEngine(t *testing.T) {
	atlas := connect(t, domain.ProviderAtlas, simulated.NewAtlas())
	common := connect(t, domain.ProviderCommon, simulated.NewCommon())

	eng, err := clara.New(
		clara.WithProvider(domain.ProviderAtlas, atlas),
		clara.WithProvider(domain.ProviderCommon, common),
	)
	require.NoError(t, err)

	ctx := context.Background()
	state, err := eng.Run(ctx, "req-remote", map[string]any{
		"customer_name": "ada lovelace",
		"email":         "ADA@example.com",
		"query":         "My payment failed twice",
		"priority":      "high",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaitingForHuman, state.Status)

	state, err = eng.Resume(ctx, "req-remote", map[string]any{"customer_answer": "Visa ending 4242"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	require.NotNil(t, state.Decision)
	assert.Equal(t, 92, state.Decision.Score)

	for kind, err := range eng.Health(ctx) {
		assert.NoError(t, err, kind)
	}
}
