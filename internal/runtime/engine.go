package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/pipeline"
	"github.com/aretw0/clara/pkg/planner"
	"github.com/aretw0/clara/pkg/ports"
)

// ErrNotRunnable is returned when Run is called on a workflow that is waiting for a human.
var ErrNotRunnable = errors.New("workflow is not runnable")

// CheckpointFunc persists an intermediate state. Errors are logged, not fatal.
type CheckpointFunc func(ctx context.Context, state *domain.WorkflowState) error

// DegradedPolicy decides whether a degraded workflow may continue past DECIDE.
type DegradedPolicy func(state *domain.WorkflowState) bool

// AllowDegraded is the default policy: degraded workflows continue.
func AllowDegraded(*domain.WorkflowState) bool { return true }

// HaltDegraded stops any workflow that reached DECIDE degraded.
func HaltDegraded(*domain.WorkflowState) bool { return false }

// Engine is the workflow executor. It drives a WorkflowState through the
// eleven stages of the catalog. A single Engine serves many workflows
// concurrently; each workflow must be driven by one goroutine at a time.
type Engine struct {
	catalog    *pipeline.Catalog
	invoker    *Invoker
	decider    *DecisionEngine
	planner    ports.Planner
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time
	checkpoint CheckpointFunc
	policy     DegradedPolicy
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithPlanner sets the planner used by NON_DETERMINISTIC stages (default: declared order).
func WithPlanner(p ports.Planner) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.planner = p
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces the time source used for audit timestamps and durations.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCheckpoint registers a function called after every stage and every completed ability.
func WithCheckpoint(fn CheckpointFunc) EngineOption {
	return func(e *Engine) {
		e.checkpoint = fn
	}
}

// WithDegradedPolicy sets the predicate consulted after DECIDE when a stage completed degraded.
func WithDegradedPolicy(p DegradedPolicy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithCallTimeout bounds every ability call. Zero keeps only the caller's deadline.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.invoker.timeout = d
	}
}

// NewEngine creates an executor over the catalog and providers.
func NewEngine(catalog *pipeline.Catalog, providers map[domain.Provider]ports.CapabilityProvider, opts ...EngineOption) *Engine {
	if catalog == nil {
		catalog = pipeline.Default()
	}
	e := &Engine{
		catalog: catalog,
		invoker: NewInvoker(providers, catalog.Inputs),
		planner: planner.Declared{},
		logger:  logging.NewNop(),
		now:     defaultClock,
		policy:  AllowDegraded,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.invoker.now = e.now
	e.invoker.hooks = e.hooks
	e.invoker.logger = e.logger
	e.decider = NewDecisionEngine(e.invoker, catalog.Scoring)
	e.decider.now = e.now
	e.decider.hooks = e.hooks
	return e
}

// Catalog returns the stage configuration the engine runs.
func (e *Engine) Catalog() *pipeline.Catalog {
	return e.catalog
}

// Invoker exposes the ability invoker, e.g. for ad-hoc calls by hosts.
func (e *Engine) Invoker() *Invoker {
	return e.invoker
}

// NewState creates a workflow ready to run.
func (e *Engine) NewState(requestID string, fields map[string]any) *domain.WorkflowState {
	s := domain.NewState(requestID, fields)
	s.CreatedAt = e.now()
	s.UpdatedAt = s.CreatedAt
	return s
}

// Run advances state in place until it suspends at ASK, completes or fails.
// Workflow failures are recorded on the state (Status FAILED, Failure, final
// ERROR entry) and are not returned as errors. The error return is reserved
// for misuse: running a terminal or suspended workflow.
func (e *Engine) Run(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	if state == nil {
		return nil, errors.New("nil workflow state")
	}
	if state.Status.Terminal() {
		return state, domain.ErrTerminalState
	}
	if !state.Status.Runnable() {
		return state, fmt.Errorf("%w: status %s", ErrNotRunnable, state.Status)
	}
	if !state.CurrentStage.Valid() {
		return state, fmt.Errorf("%w: unknown stage %q", ErrNotRunnable, state.CurrentStage)
	}
	if state.Audit == nil {
		state.Audit = domain.NewAuditLog()
	}
	if state.Fields == nil {
		state.Fields = make(map[string]any)
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = e.now()
	}

	logger := e.logger.With("request_id", state.RequestID)

	for {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, state, domain.NewError(domain.KindCancelled, state.CurrentStage, "%v", err))
			return state, nil
		}

		stage, ok := e.catalog.Stage(state.CurrentStage)
		if !ok {
			e.fail(ctx, state, domain.NewError(domain.KindInternalTransform, state.CurrentStage, "stage not in catalog"))
			return state, nil
		}

		suspended, err := e.runStage(ctx, state, stage)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				err = &domain.WorkflowError{Kind: domain.KindCancelled, Stage: stage.ID, Message: "cancelled during stage", Err: err}
			}
			e.fail(ctx, state, err)
			return state, nil
		}
		if suspended {
			logger.InfoContext(ctx, "workflow waiting for human input", "stage", stage.ID)
			e.save(ctx, state)
			return state, nil
		}

		if stage.ID == domain.StageDecide && state.Degraded() && !e.policy(state) {
			e.fail(ctx, state, domain.NewError(domain.KindDegradedHalt, stage.ID,
				"degraded stages %v refused by policy", state.DegradedStages()))
			return state, nil
		}

		next, ok := stage.ID.Next()
		if !ok {
			state.Status = domain.StatusCompleted
			state.Progress = domain.Progress{}
			e.save(ctx, state)
			logger.InfoContext(ctx, "workflow completed", "escalated", state.Decision != nil && state.Decision.Escalated())
			return state, nil
		}
		state.CurrentStage = next
		state.Progress = domain.Progress{}
		e.save(ctx, state)
	}
}

// Resume merges the human answer into a workflow suspended at ASK and continues it.
// Any other status is an InvalidResumeState error and the state is left untouched.
func (e *Engine) Resume(ctx context.Context, state *domain.WorkflowState, input map[string]any) (*domain.WorkflowState, error) {
	if state == nil || state.Status != domain.StatusWaitingForHuman {
		status := domain.Status("")
		stage := domain.StageID("")
		if state != nil {
			status, stage = state.Status, state.CurrentStage
		}
		return state, domain.NewError(domain.KindInvalidResumeState, stage, "workflow is %s, not %s", status, domain.StatusWaitingForHuman)
	}

	if err := state.Merge(input); err != nil {
		return state, err
	}
	state.ResumeDigest = InputDigest(input)
	state.Pending = nil
	state.Status = domain.StatusRunning
	if next, ok := state.CurrentStage.Next(); ok {
		state.CurrentStage = next
	}
	state.Progress = domain.Progress{}
	e.save(ctx, state)

	e.logger.InfoContext(ctx, "workflow resumed", "request_id", state.RequestID, "stage", state.CurrentStage)
	return e.Run(ctx, state)
}

// Cancel fails a workflow that is not running in this process, typically one
// waiting at ASK, with a Cancelled error. In-flight runs are cancelled
// through their context instead.
func (e *Engine) Cancel(ctx context.Context, state *domain.WorkflowState, reason string) (*domain.WorkflowState, error) {
	if state == nil {
		return nil, errors.New("nil workflow state")
	}
	if state.Status.Terminal() {
		return state, domain.ErrTerminalState
	}
	if state.Audit == nil {
		state.Audit = domain.NewAuditLog()
	}
	if reason == "" {
		reason = "cancelled by operator"
	}
	e.fail(ctx, state, domain.NewError(domain.KindCancelled, state.CurrentStage, "%s while %s", reason, state.Status))
	return state, nil
}

// InputDigest fingerprints a human answer. Map keys are encoded in sorted order,
// so equal inputs give equal digests.
func InputDigest(input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", input))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fail moves the workflow to FAILED and appends the final ERROR entry.
func (e *Engine) fail(ctx context.Context, state *domain.WorkflowState, err error) {
	var we *domain.WorkflowError
	if !errors.As(err, &we) {
		we = &domain.WorkflowError{Kind: domain.KindInternalTransform, Stage: state.CurrentStage, Message: err.Error()}
	}
	stage := we.Stage
	if stage == "" {
		stage = state.CurrentStage
	}

	msg := we.Message
	if msg == "" && we.Err != nil {
		msg = we.Err.Error()
	}

	state.Status = domain.StatusFailed
	state.Pending = nil
	state.Failure = &domain.Failure{Kind: we.Kind, Stage: stage, Ability: we.Ability, Message: msg}

	ts := e.now()
	detail := map[string]any{"kind": string(we.Kind), "message": msg}
	if we.Ability != "" {
		detail["ability"] = we.Ability
	}
	state.Audit.Append(domain.AuditEntry{
		StageID:   stage,
		EventType: domain.EventError,
		Timestamp: ts,
		Detail:    detail,
	})

	e.logger.ErrorContext(ctx, "workflow failed", "request_id", state.RequestID, "stage", stage, "kind", we.Kind, "err", msg)
	e.emitError(ctx, state, stage, we.Kind, msg, ts)
	e.save(ctx, state)
}

// save runs the checkpoint, detached from the caller's cancellation so that
// a cancelled workflow still records its final state.
func (e *Engine) save(ctx context.Context, state *domain.WorkflowState) {
	state.UpdatedAt = e.now()
	if e.checkpoint == nil {
		return
	}
	if err := e.checkpoint(context.WithoutCancel(ctx), state); err != nil {
		e.logger.ErrorContext(ctx, "checkpoint failed", "request_id", state.RequestID, "stage", state.CurrentStage, "err", err)
	}
}
