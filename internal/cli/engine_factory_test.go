package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/clara/internal/config"
	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/adapters/simulated"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Backend = config.BackendMemory
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...AppOption) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, logging.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func request() map[string]any {
	return map[string]any{
		"customer_name": "Ada Lovelace",
		"email":         "ada@example.com",
		"query":         "My card was declined",
		"priority":      "high",
	}
}

func runToCompletion(t *testing.T, app *App, id string) *domain.WorkflowState {
	t.Helper()
	ctx := context.Background()
	_, err := app.Engine.Run(ctx, id, request())
	require.NoError(t, err)
	state, err := app.Engine.Resume(ctx, id, map[string]any{"customer_answer": "Visa ending 4242"})
	require.NoError(t, err)
	return state
}

func TestNewApp_Backends(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		app := newTestApp(t, testConfig(t))
		state := runToCompletion(t, app, "req-mem")
		assert.Equal(t, domain.StatusCompleted, state.Status)
	})

	t.Run("file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendFile
		cfg.Store.Dir = t.TempDir()

		runToCompletion(t, newTestApp(t, cfg), "req-file")
		assert.FileExists(t, filepath.Join(cfg.Store.Dir, "req-file.json"))

		again := newTestApp(t, cfg)
		state, err := again.Engine.Get(context.Background(), "req-file")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, state.Status)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendRedis
		cfg.Store.Redis.Addr = mr.Addr()
		cfg.Store.Redis.TTL = time.Hour

		runToCompletion(t, newTestApp(t, cfg), "req-redis")
		assert.True(t, mr.Exists("clara:workflow:req-redis"))
		assert.Greater(t, mr.TTL("clara:workflow:req-redis"), time.Duration(0))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendRedis
		cfg.Store.Redis.Addr = "127.0.0.1:1"
		app, err := NewApp(context.Background(), cfg, logging.NewNop())
		assert.Error(t, err)
		assert.Nil(t, app)
	})

	t.Run("later failure releases the store", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendRedis
		cfg.Store.Redis.Addr = mr.Addr()
		cfg.Security.EncryptionKey = "not-a-key"

		app, err := NewApp(context.Background(), cfg, logging.NewNop())
		require.Error(t, err)
		assert.Nil(t, app)
		assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
			time.Second, 10*time.Millisecond, "redis connection left open")
	})
}

func TestNewApp_Security(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendFile
	cfg.Store.Dir = t.TempDir()
	cfg.Security.PII = true
	cfg.Security.EncryptionKey = strings.Repeat("0f", 32)

	app := newTestApp(t, cfg)
	state, err := app.Engine.Run(context.Background(), "req-sec", request())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", state.Fields["customer_name"], "the engine keeps clear values")

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Dir, "req-sec.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Ada")
	assert.NotContains(t, string(raw), "declined")

	stored, err := app.Engine.Get(context.Background(), "req-sec")
	require.NoError(t, err)
	assert.Equal(t, "***", stored.Fields["customer_name"], "persisted copy is masked")
	assert.Equal(t, "My card was declined", stored.Fields["query"])
}

func TestNewApp_Options(t *testing.T) {
	t.Run("provider override", func(t *testing.T) {
		atlas := simulated.NewAtlas(simulated.WithFailure("update_ticket", "ticketing down"))
		app := newTestApp(t, testConfig(t), WithProviderOverride(domain.ProviderAtlas, atlas))
		state := runToCompletion(t, app, "req-fail")
		assert.Equal(t, domain.StatusFailed, state.Status)
		assert.Equal(t, 1, atlas.CallCount("update_ticket"))
	})

	t.Run("simulated score escalates", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Score = 60
		state := runToCompletion(t, newTestApp(t, cfg), "req-esc")
		require.NotNil(t, state.Decision)
		assert.Equal(t, domain.OutcomeEscalate, state.Decision.Outcome)
	})

	t.Run("provider planner", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Engine.Planner = "provider"
		common := simulated.NewCommon()
		app := newTestApp(t, cfg, WithProviderOverride(domain.ProviderCommon, common))
		runToCompletion(t, app, "req-plan")
		assert.Positive(t, common.CallCount("plan_abilities"))
	})

	t.Run("missing catalog", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Engine.Catalog = filepath.Join(t.TempDir(), "absent.yaml")
		app, err := NewApp(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "stage catalog")
		assert.Nil(t, app)
	})

	t.Run("unreachable MCP provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Atlas = "http://127.0.0.1:1/mcp"
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := NewApp(ctx, cfg, logging.NewNop())
		assert.Error(t, err)
	})
}

func TestRun_TextConversation(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	var out bytes.Buffer

	state, err := Run(context.Background(), app, RunOptions{
		RequestID: "req-run",
		Fields:    request(),
		In:        strings.NewReader("Visa ending 4242\n"),
		Out:       &out,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Contains(t, out.String(), "Decision")
}

func TestRun_StopLeavesWorkflowWaiting(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	var out bytes.Buffer

	state, err := Run(context.Background(), app, RunOptions{
		RequestID: "req-wait",
		Fields:    request(),
		In:        strings.NewReader("exit\n"),
		Out:       &out,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForHuman, state.Status)

	state, err = Run(context.Background(), app, RunOptions{
		RequestID: "req-wait",
		JSON:      true,
		In:        strings.NewReader(`{"answer":"Visa ending 4242"}` + "\n"),
		Out:       &out,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
}

func TestRun_Failure(t *testing.T) {
	atlas := simulated.NewAtlas(simulated.WithFailure("update_ticket", "ticketing down"))
	app := newTestApp(t, testConfig(t), WithProviderOverride(domain.ProviderAtlas, atlas))

	_, err := Run(context.Background(), app, RunOptions{
		Fields: request(),
		JSON:   true,
		In:     strings.NewReader(`"Visa ending 4242"` + "\n"),
		Out:    &bytes.Buffer{},
	})
	assert.ErrorIs(t, err, ErrWorkflowFailed)
}

func TestRun_InputTimeout(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pw.Close(); _ = pr.Close() })
	var out bytes.Buffer

	state, err := Run(context.Background(), app, RunOptions{
		RequestID:    "req-slow",
		Fields:       request(),
		InputTimeout: 50 * time.Millisecond,
		In:           pr,
		Out:          &out,
	})
	require.NoError(t, err, "a timeout leaves the workflow suspended")
	assert.Equal(t, domain.StatusWaitingForHuman, state.Status)
	assert.Contains(t, out.String(), "clara run --id req-slow")
}

func TestParseFields(t *testing.T) {
	fields, err := ParseFields(`{"query":"refund"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "refund"}, fields)

	fields, err = ParseFields("")
	require.NoError(t, err)
	assert.Nil(t, fields)

	_, err = ParseFields("{")
	assert.Error(t, err)
}
