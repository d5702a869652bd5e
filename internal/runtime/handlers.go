package runtime

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/clara/pkg/domain"
)

// stageRun carries what a handler reports back for the STAGE_EXIT entry.
type stageRun struct {
	suspended bool
	plan      []string
	rejected  []string
	notes     []string
}

// runStage executes one stage. Entering a stage whose Progress is already
// recorded continues it without a second STAGE_ENTER.
func (e *Engine) runStage(ctx context.Context, state *domain.WorkflowState, stage domain.Stage) (bool, error) {
	start := e.now()
	state.CurrentStage = stage.ID

	if state.Progress.Stage != stage.ID {
		state.Progress = domain.Progress{Stage: stage.ID}
		state.Audit.Append(domain.AuditEntry{
			StageID:   stage.ID,
			EventType: domain.EventStageEnter,
			Timestamp: start,
			Detail:    map[string]any{"type": string(stage.Type)},
		})
		e.emitStageEnter(ctx, state, stage, start)
		e.save(ctx, state)
	} else {
		e.logger.InfoContext(ctx, "continuing interrupted stage", "request_id", state.RequestID, "stage", stage.ID, "completed", state.Progress.Invoked)
	}

	var (
		run stageRun
		err error
	)
	switch stage.Type {
	case domain.StageDeterministic:
		err = e.runDeterministic(ctx, state, stage)
	case domain.StageNonDeterministic:
		if stage.ID == domain.StageDecide {
			run, err = e.runDecide(ctx, state, stage)
		} else {
			run = e.runNonDeterministic(ctx, state, stage)
		}
	case domain.StageHumanInteraction:
		run = e.runHuman(state, stage, start)
	case domain.StagePayloadOnly:
		err = e.runPayload(state, stage)
	default:
		err = domain.NewError(domain.KindInternalTransform, stage.ID, "unknown stage type %q", stage.Type)
	}
	if err != nil {
		return false, err
	}

	end := e.now()
	degraded := slices.Contains(state.DegradedStages(), stage.ID)
	detail := map[string]any{"type": string(stage.Type), "degraded": degraded}
	if run.suspended {
		detail["suspended"] = true
	}
	if run.plan != nil {
		detail["plan"] = run.plan
	}
	if len(run.rejected) > 0 {
		detail["rejected"] = run.rejected
	}
	if len(run.notes) > 0 {
		detail["notes"] = run.notes
	}
	state.Audit.Append(domain.AuditEntry{
		StageID:        stage.ID,
		EventType:      domain.EventStageExit,
		Timestamp:      end,
		DurationMicros: end.Sub(start).Microseconds(),
		Detail:         detail,
	})
	e.emitStageExit(ctx, state, stage, end, end.Sub(start), degraded, run.suspended)
	return run.suspended, nil
}

// runDeterministic invokes the abilities in declared order. The first failure is fatal.
func (e *Engine) runDeterministic(ctx context.Context, state *domain.WorkflowState, stage domain.Stage) error {
	for _, ref := range stage.AbilitiesFor(state.Status) {
		if state.Progress.Done(stage.ID, ref) {
			continue
		}
		res := e.invoker.Invoke(ctx, stage.ID, ref, state)
		if !res.Success {
			return res.Err(stage.ID)
		}
		if err := state.Merge(res.Output); err != nil {
			return err
		}
		e.markInvoked(ctx, state, ref)
	}
	return nil
}

// runNonDeterministic lets the planner pick the abilities. Planner errors,
// rejected plan entries and ability failures degrade the stage but never abort it.
func (e *Engine) runNonDeterministic(ctx context.Context, state *domain.WorkflowState, stage domain.Stage) stageRun {
	var run stageRun
	available := stage.AbilitiesFor(state.Status)

	plan, err := e.planner.Plan(ctx, stage, available, state.Snapshot())
	if err != nil {
		run.notes = append(run.notes, fmt.Sprintf("planner failed, using declared order: %v", err))
		e.degrade(state, stage.ID)
		plan = available
	}

	plan, rejected := sanitizePlan(plan, available)
	if len(rejected) > 0 {
		run.rejected = rejected
		e.degrade(state, stage.ID)
	}

	run.plan = make([]string, 0, len(plan))
	for _, ref := range plan {
		run.plan = append(run.plan, ref.Name)
		if state.Progress.Done(stage.ID, ref) {
			continue
		}
		res := e.invoker.Invoke(ctx, stage.ID, ref, state)
		if res.Success {
			if err := state.Merge(res.Output); err != nil {
				run.notes = append(run.notes, err.Error())
			}
		} else {
			e.degrade(state, stage.ID)
		}
		e.markInvoked(ctx, state, ref)
	}
	return run
}

// runDecide delegates to the Decision Engine, then informs ATLAS of an escalation.
// A failed escalation call only degrades the stage: the decision stands.
func (e *Engine) runDecide(ctx context.Context, state *domain.WorkflowState, stage domain.Stage) (stageRun, error) {
	var run stageRun

	if state.Decision == nil {
		if _, err := e.decider.Decide(ctx, state); err != nil {
			return run, err
		}
		e.markInvoked(ctx, state, e.catalog.Scoring)
	}

	esc := e.catalog.Escalation
	if esc.Name == "" || !state.Decision.Escalated() || state.Progress.Done(stage.ID, esc) {
		return run, nil
	}

	res := e.invoker.Invoke(ctx, stage.ID, esc, state)
	if res.Success {
		if err := state.Merge(res.Output); err != nil {
			run.notes = append(run.notes, err.Error())
		}
	} else {
		e.degrade(state, stage.ID)
	}
	e.markInvoked(ctx, state, esc)
	return run, nil
}

// runHuman suspends the workflow until Resume supplies the answer.
func (e *Engine) runHuman(state *domain.WorkflowState, stage domain.Stage, at time.Time) stageRun {
	state.Pending = &domain.HumanRequest{
		Stage:       stage.ID,
		Questions:   questions(state.Fields[stage.PromptField]),
		RequestedAt: at,
	}
	state.Status = domain.StatusWaitingForHuman
	return stageRun{suspended: true}
}

// runPayload applies the stage transform. Errors and panics are InternalTransformError.
func (e *Engine) runPayload(state *domain.WorkflowState, stage domain.Stage) (err error) {
	if stage.Transform == nil {
		return domain.NewError(domain.KindInternalTransform, stage.ID, "stage has no transform")
	}

	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.KindInternalTransform, stage.ID, "transform panic: %v", r)
		}
	}()

	updates, terr := stage.Transform(state.Snapshot())
	if terr != nil {
		return &domain.WorkflowError{Kind: domain.KindInternalTransform, Stage: stage.ID, Message: terr.Error(), Err: terr}
	}
	return state.Merge(updates)
}

// markInvoked records a completed ability of the in-flight stage and checkpoints.
func (e *Engine) markInvoked(ctx context.Context, state *domain.WorkflowState, ref domain.AbilityRef) {
	if state.Progress.Stage != state.CurrentStage {
		state.Progress = domain.Progress{Stage: state.CurrentStage}
	}
	if !state.Progress.Done(state.CurrentStage, ref) {
		state.Progress.Invoked = append(state.Progress.Invoked, ref.String())
	}
	e.save(ctx, state)
}

// degrade flags the stage as completed with failures.
func (e *Engine) degrade(state *domain.WorkflowState, stage domain.StageID) {
	stages := state.DegradedStages()
	names := make([]string, 0, len(stages)+1)
	for _, s := range stages {
		names = append(names, string(s))
	}
	if !slices.Contains(stages, stage) {
		names = append(names, string(stage))
	}
	_ = state.Merge(map[string]any{
		domain.FieldDegraded:       true,
		domain.FieldDegradedStages: names,
	})
}

// sanitizePlan keeps the planned abilities that belong to the stage, once each.
func sanitizePlan(plan, available []domain.AbilityRef) ([]domain.AbilityRef, []string) {
	out := make([]domain.AbilityRef, 0, len(plan))
	var rejected []string
	seen := make(map[domain.AbilityRef]bool, len(plan))
	for _, ref := range plan {
		if !slices.Contains(available, ref) || seen[ref] {
			rejected = append(rejected, ref.String())
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out, rejected
}

func questions(v any) []string {
	switch q := v.(type) {
	case []string:
		return append([]string(nil), q...)
	case []any:
		out := make([]string, 0, len(q))
		for _, item := range q {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if q == "" {
			return nil
		}
		return []string{q}
	}
	return nil
}
