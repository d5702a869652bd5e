package clara_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/internal/adapters/file"
	"github.com/aretw0/clara/internal/runtime"
	"github.com/aretw0/clara/pkg/adapters/memory"
	"github.com/aretw0/clara/pkg/adapters/simulated"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() map[string]any {
	return map[string]any{
		"customer_name": "Ada Lovelace",
		"email":         "ada@example.com",
		"query":         "My card was declined and I need help",
		"priority":      "high",
	}
}

var answer = map[string]any{"customer_answer": "Account ACC-12345, declined since Monday"}

func newEngine(t *testing.T, opts ...clara.Option) (*clara.Engine, *simulated.Provider, *simulated.Provider) {
	t.Helper()
	atlas, common := simulated.NewAtlas(), simulated.NewCommon()
	opts = append([]clara.Option{
		clara.WithProvider(domain.ProviderAtlas, atlas),
		clara.WithProvider(domain.ProviderCommon, common),
	}, opts...)
	eng, err := clara.New(opts...)
	require.NoError(t, err)
	return eng, atlas, common
}

func TestEngine_RunAndResume(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	state, err := eng.Run(ctx, "", request())
	require.NoError(t, err)
	require.NotEmpty(t, state.RequestID, "an ID is generated")
	assert.Equal(t, domain.StatusWaitingForHuman, state.Status)
	require.NotNil(t, state.Pending)

	stored, err := eng.Get(ctx, state.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForHuman, stored.Status)
	assert.Equal(t, state.Audit.Len(), stored.Audit.Len())

	done, err := eng.Resume(ctx, state.RequestID, answer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	payload, ok := done.Payload()
	require.True(t, ok)
	assert.Equal(t, state.RequestID, payload["request_id"])

	trail, err := eng.Audit(ctx, state.RequestID)
	require.NoError(t, err)
	assert.Equal(t, done.Audit.Len(), len(trail))

	ids, err := eng.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{state.RequestID}, ids)
}

func TestEngine_FileStore(t *testing.T) {
	dir := t.TempDir()
	eng, _, _ := newEngine(t, clara.WithStore(file.New(dir)))
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)

	// A second engine over the same directory picks the workflow up.
	other, _, _ := newEngine(t, clara.WithStore(file.New(dir)))
	done, err := other.Resume(ctx, "req-1", answer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	require.NotNil(t, done.Decision)
	assert.Equal(t, domain.OutcomeAutoResolve, done.Decision.Outcome)
}

func TestEngine_Errors(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)

	_, err = eng.Run(ctx, "req-1", request())
	assert.ErrorIs(t, err, session.ErrSessionExists)

	_, err = eng.Resume(ctx, "missing", answer)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = eng.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	done, err := eng.Resume(ctx, "req-1", answer)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, done.Status)

	_, err = eng.Resume(ctx, "req-1", answer)
	assert.ErrorIs(t, err, domain.ErrInvalidResumeState)

	_, err = eng.Recover(ctx, "req-1")
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestEngine_ResumeReplayRecovers(t *testing.T) {
	store := memory.NewStore()
	eng, atlas, _ := newEngine(t, clara.WithStore(store))
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)

	// Rewrite the stored workflow as if the process died inside RETRIEVE after
	// the answer had been accepted.
	crashed, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	crashed.Status = domain.StatusRunning
	crashed.Pending = nil
	crashed.CurrentStage = domain.StageRetrieve
	crashed.ResumeDigest = runtime.InputDigest(answer)
	require.NoError(t, crashed.Merge(answer))
	crashed.Progress = domain.Progress{Stage: domain.StageRetrieve, Invoked: []string{"ATLAS/knowledge_base_search"}}
	require.NoError(t, crashed.Merge(map[string]any{"retrieved_solutions": []any{
		map[string]any{"id": "SOL-001", "title": "Billing Payment Failure Resolution"},
	}}))
	require.NoError(t, store.Save(ctx, "req-1", crashed))

	_, err = eng.Resume(ctx, "req-1", map[string]any{"customer_answer": "something else"})
	assert.ErrorIs(t, err, domain.ErrInvalidResumeState, "a different answer is not a replay")

	done, err := eng.Resume(ctx, "req-1", answer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 0, atlas.CallCount("knowledge_base_search"))
	assert.Equal(t, 1, atlas.CallCount("past_ticket_search"))
}

func TestEngine_Recover(t *testing.T) {
	store := memory.NewStore()
	eng, _, _ := newEngine(t, clara.WithStore(store))
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)

	_, err = eng.Recover(ctx, "req-1")
	assert.ErrorIs(t, err, runtime.ErrNotRunnable, "a suspended workflow needs Resume")

	crashed, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	crashed.Status = domain.StatusRunning
	crashed.Pending = nil
	crashed.CurrentStage = domain.StageWait
	require.NoError(t, crashed.Merge(answer))
	require.NoError(t, store.Save(ctx, "req-1", crashed))

	done, err := eng.Recover(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
}

func TestEngine_CancelInFlight(t *testing.T) {
	var (
		eng       *clara.Engine
		liveAudit int
		busyErr   error
	)
	hooks := domain.LifecycleHooks{
		OnStageExit: func(ctx context.Context, e *domain.StageEvent) {
			if e.Stage != domain.StageUnderstand {
				return
			}
			trail, err := eng.Audit(ctx, e.RequestID)
			if err == nil {
				liveAudit = len(trail)
			}
			_, busyErr = eng.Resume(ctx, e.RequestID, answer)
			_ = eng.Cancel(ctx, e.RequestID)
		},
	}
	eng, _, common := newEngine(t, clara.WithLifecycleHooks(hooks))
	ctx := context.Background()

	state, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, state.Status)
	assert.Equal(t, domain.KindCancelled, state.Failure.Kind)
	assert.Equal(t, 0, common.CallCount("normalize_fields"))

	assert.Greater(t, liveAudit, 3, "the trail of a running workflow is readable")
	assert.ErrorIs(t, busyErr, clara.ErrBusy)

	stored, err := eng.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestEngine_CancelSuspended(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)
	require.NoError(t, eng.Cancel(ctx, "req-1"))

	stored, err := eng.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, domain.KindCancelled, stored.Failure.Kind)

	last, ok := stored.Audit.Last()
	require.True(t, ok)
	assert.Equal(t, domain.EventError, last.EventType)

	assert.ErrorIs(t, eng.Cancel(ctx, "req-1"), domain.ErrTerminalState)
	assert.ErrorIs(t, eng.Cancel(ctx, "missing"), domain.ErrSessionNotFound)
}

func TestEngine_Delete(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)
	require.NoError(t, eng.Delete(ctx, "req-1"))

	_, err = eng.Get(ctx, "req-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_ConcurrentRequests(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)
			if _, err := eng.Run(ctx, id, request()); err != nil {
				errs <- err
				return
			}
			state, err := eng.Resume(ctx, id, answer)
			if err != nil {
				errs <- err
				return
			}
			if state.Status != domain.StatusCompleted {
				errs <- fmt.Errorf("%s ended %s", id, state.Status)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	ids, err := eng.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}

func TestEngine_Health(t *testing.T) {
	common := simulated.NewCommon(simulated.Unavailable())
	eng, err := clara.New(clara.WithProvider(domain.ProviderCommon, common))
	require.NoError(t, err)

	health := eng.Health(context.Background())
	require.Len(t, health, 2)
	assert.ErrorIs(t, health[domain.ProviderAtlas], domain.ErrProviderUnavailable)
	assert.ErrorIs(t, health[domain.ProviderCommon], domain.ErrProviderUnavailable)

	common.SetUnavailable(false)
	assert.NoError(t, eng.Health(context.Background())[domain.ProviderCommon])
}

func TestEngine_DegradedPolicy(t *testing.T) {
	atlas := simulated.NewAtlas(simulated.WithFailure("knowledge_base_search", "index offline"))
	eng, err := clara.New(
		clara.WithProvider(domain.ProviderAtlas, atlas),
		clara.WithProvider(domain.ProviderCommon, simulated.NewCommon()),
		clara.WithDegradedPolicy(clara.HaltDegraded),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Run(ctx, "req-1", request())
	require.NoError(t, err)
	state, err := eng.Resume(ctx, "req-1", answer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, state.Status)
	require.NotNil(t, state.Failure)
	assert.Equal(t, domain.KindDegradedHalt, state.Failure.Kind)
	assert.Equal(t, domain.StageDecide, state.Failure.Stage)
}

func TestEngine_Stages(t *testing.T) {
	eng, _, _ := newEngine(t)
	stages := eng.Stages()
	require.Len(t, stages, 11)
	assert.Equal(t, domain.StageIntake, stages[0].ID)
	assert.Equal(t, domain.StageComplete, stages[10].ID)
}
