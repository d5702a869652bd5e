package clara

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/internal/runtime"
	"github.com/aretw0/clara/pkg/adapters/memory"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/pipeline"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/aretw0/clara/pkg/session"
	"github.com/google/uuid"
)

// ErrBusy is returned when a workflow is already being driven by this Engine.
var ErrBusy = errors.New("workflow run in progress")

// Engine is the entry point of the library. It owns the runtime executor,
// persists every workflow through a session manager and tracks the runs in
// flight so they can be observed and cancelled.
type Engine struct {
	runtime   *runtime.Engine
	sessions  *session.Manager
	providers map[domain.Provider]ports.CapabilityProvider
	logger    *slog.Logger

	// settings collected by options before the runtime is built
	catalog     *pipeline.Catalog
	store       ports.StateStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	runtimeOpts []runtime.EngineOption

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	cancel context.CancelFunc
	audit  *domain.AuditLog
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithProvider registers the capability provider serving ATLAS or COMMON abilities.
func WithProvider(kind domain.Provider, p ports.CapabilityProvider) Option {
	return func(e *Engine) {
		e.providers[kind] = p
	}
}

// WithCatalog replaces the embedded stage catalog.
func WithCatalog(c *pipeline.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithStore sets where workflows are persisted (default: in memory).
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker serializes access to a workflow across processes sharing the store.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL sets how long a distributed workflow lock is held before it expires.
func WithLockTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = d
	}
}

// WithPlanner sets the planner of NON_DETERMINISTIC stages.
func WithPlanner(p ports.Planner) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithPlanner(p))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCallTimeout bounds every ability call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithCallTimeout(d))
	}
}

// DegradedPolicy decides whether a workflow with degraded stages may continue past DECIDE.
type DegradedPolicy func(state *domain.WorkflowState) bool

// HaltDegraded fails every workflow that reaches DECIDE degraded.
func HaltDegraded(*domain.WorkflowState) bool { return false }

// WithDegradedPolicy sets the degraded policy. By default degraded workflows continue.
func WithDegradedPolicy(p DegradedPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.runtimeOpts = append(e.runtimeOpts, runtime.WithDegradedPolicy(runtime.DegradedPolicy(p)))
		}
	}
}

// WithClock replaces the time source of audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(now))
	}
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		providers: make(map[domain.Provider]ports.CapabilityProvider),
		logger:    logging.NewNop(),
		active:    make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.catalog == nil {
		e.catalog = pipeline.Default()
	} else if err := e.catalog.Validate(); err != nil {
		return nil, err
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	if e.lockTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithLockTTL(e.lockTTL))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)

	for _, kind := range []domain.Provider{domain.ProviderAtlas, domain.ProviderCommon} {
		if e.providers[kind] == nil {
			e.logger.Warn("no provider registered, its abilities will fail", "provider", kind)
		}
	}

	rtOpts := append([]runtime.EngineOption{
		runtime.WithLogger(e.logger),
		runtime.WithCheckpoint(e.sessions.Checkpoint),
	}, e.runtimeOpts...)
	e.runtime = runtime.NewEngine(e.catalog, e.providers, rtOpts...)
	return e, nil
}

var _ ports.WorkflowService = (*Engine)(nil)

// Run starts a workflow from a customer request and drives it until it
// suspends at ASK, completes or fails. An empty requestID generates one.
// Workflow failures are reported on the returned state, not as errors.
func (e *Engine) Run(ctx context.Context, requestID string, fields map[string]any) (*domain.WorkflowState, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	state := e.runtime.NewState(requestID, fields)
	if err := e.sessions.Create(ctx, state); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "workflow started", "request_id", requestID)

	return e.drive(ctx, requestID, func(ctx context.Context, stored *domain.WorkflowState) (*domain.WorkflowState, error) {
		return e.runtime.Run(ctx, stored)
	})
}

// Resume supplies the human answer to a workflow waiting at ASK.
//
// Replaying the answer of a workflow whose resume was interrupted by a crash
// (same input, still RUNNING, no run in flight) continues it from its last
// checkpoint. Any other call on a workflow that is not waiting is an
// InvalidResumeState error and changes nothing.
func (e *Engine) Resume(ctx context.Context, requestID string, input map[string]any) (*domain.WorkflowState, error) {
	return e.drive(ctx, requestID, func(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
		if state.Status != domain.StatusWaitingForHuman &&
			state.Status.Runnable() &&
			state.ResumeDigest != "" &&
			state.ResumeDigest == runtime.InputDigest(input) {
			e.logger.InfoContext(ctx, "replayed resume, recovering workflow", "request_id", requestID, "stage", state.CurrentStage)
			return e.runtime.Run(ctx, state)
		}
		return e.runtime.Resume(ctx, state, input)
	})
}

// Recover continues a workflow left RUNNING or ESCALATED by a crashed process.
// Abilities already completed in the interrupted stage are not invoked again.
func (e *Engine) Recover(ctx context.Context, requestID string) (*domain.WorkflowState, error) {
	return e.drive(ctx, requestID, func(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
		return e.runtime.Run(ctx, state)
	})
}

// drive loads the workflow under its lock, registers the run as active and applies fn.
func (e *Engine) drive(ctx context.Context, requestID string, fn func(context.Context, *domain.WorkflowState) (*domain.WorkflowState, error)) (*domain.WorkflowState, error) {
	if e.isActive(requestID) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, requestID)
	}

	var out *domain.WorkflowState
	err := e.sessions.WithLock(ctx, requestID, func(ctx context.Context) error {
		state, err := e.sessions.Store().Load(ctx, requestID)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if !e.register(requestID, &activeRun{cancel: cancel, audit: state.Audit}) {
			return fmt.Errorf("%w: %s", ErrBusy, requestID)
		}
		defer e.unregister(requestID)

		result, err := fn(runCtx, state)
		if result != nil {
			out = result.Snapshot()
		}
		return err
	})
	return out, err
}

func (e *Engine) isActive(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[requestID]
	return ok
}

func (e *Engine) register(requestID string, run *activeRun) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[requestID]; ok {
		return false
	}
	e.active[requestID] = run
	return true
}

func (e *Engine) unregister(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, requestID)
}

// Get returns the last persisted state of the workflow. While a run is in
// flight this is its latest checkpoint.
func (e *Engine) Get(ctx context.Context, requestID string) (*domain.WorkflowState, error) {
	return e.sessions.Store().Load(ctx, requestID)
}

// Audit returns the audit trail. For a run in flight it is read live.
func (e *Engine) Audit(ctx context.Context, requestID string) ([]domain.AuditEntry, error) {
	e.mu.Lock()
	run, ok := e.active[requestID]
	e.mu.Unlock()
	if ok {
		return run.audit.Entries(), nil
	}

	state, err := e.sessions.Store().Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return state.Audit.Entries(), nil
}

// Cancel stops a run in flight at the next stage boundary. A workflow that is
// not running here, such as one waiting at ASK, is failed immediately.
func (e *Engine) Cancel(ctx context.Context, requestID string) error {
	e.mu.Lock()
	run, ok := e.active[requestID]
	e.mu.Unlock()
	if ok {
		e.logger.InfoContext(ctx, "cancelling workflow run", "request_id", requestID)
		run.cancel()
		return nil
	}

	return e.sessions.WithLock(ctx, requestID, func(ctx context.Context) error {
		state, err := e.sessions.Store().Load(ctx, requestID)
		if err != nil {
			return err
		}
		_, err = e.runtime.Cancel(ctx, state, "")
		return err
	})
}

// List returns the IDs of the stored workflows.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Delete removes a stored workflow. Running workflows cannot be deleted.
func (e *Engine) Delete(ctx context.Context, requestID string) error {
	if e.isActive(requestID) {
		return fmt.Errorf("%w: %s", ErrBusy, requestID)
	}
	return e.sessions.Delete(ctx, requestID)
}

// Stages returns the stage catalog the engine runs.
func (e *Engine) Stages() []domain.Stage {
	return e.catalog.Stages()
}

// Catalog returns the stage catalog.
func (e *Engine) Catalog() *pipeline.Catalog {
	return e.catalog
}

// Health reports the availability of ATLAS and COMMON. Providers that do not
// implement ports.HealthChecker are assumed healthy once registered.
func (e *Engine) Health(ctx context.Context) map[domain.Provider]error {
	out := make(map[domain.Provider]error, 2)
	for _, kind := range []domain.Provider{domain.ProviderAtlas, domain.ProviderCommon} {
		p, ok := e.providers[kind]
		switch {
		case !ok || p == nil:
			out[kind] = fmt.Errorf("%w: %s not registered", domain.ErrProviderUnavailable, kind)
		default:
			if hc, ok := p.(ports.HealthChecker); ok {
				if err := hc.Health(ctx); err != nil {
					out[kind] = fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
					continue
				}
			}
			out[kind] = nil
		}
	}
	return out
}
