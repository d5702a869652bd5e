package runtime

import (
	"context"
	"time"

	"github.com/aretw0/clara/pkg/domain"
)

func (e *Engine) emitStageEnter(ctx context.Context, state *domain.WorkflowState, stage domain.Stage, at time.Time) {
	if e.hooks.OnStageEnter == nil {
		return
	}
	e.hooks.OnStageEnter(ctx, &domain.StageEvent{
		EventBase: domain.EventBase{Timestamp: at, RequestID: state.RequestID},
		Stage:     stage.ID,
		Type:      stage.Type,
	})
}

func (e *Engine) emitStageExit(ctx context.Context, state *domain.WorkflowState, stage domain.Stage, at time.Time, d time.Duration, degraded, suspended bool) {
	if e.hooks.OnStageExit == nil {
		return
	}
	e.hooks.OnStageExit(ctx, &domain.StageEvent{
		EventBase: domain.EventBase{Timestamp: at, RequestID: state.RequestID},
		Stage:     stage.ID,
		Type:      stage.Type,
		Duration:  d,
		Degraded:  degraded,
		Suspended: suspended,
	})
}

func (e *Engine) emitError(ctx context.Context, state *domain.WorkflowState, stage domain.StageID, kind domain.ErrorKind, msg string, at time.Time) {
	if e.hooks.OnError == nil {
		return
	}
	e.hooks.OnError(ctx, &domain.ErrorEvent{
		EventBase: domain.EventBase{Timestamp: at, RequestID: state.RequestID},
		Stage:     stage,
		Kind:      kind,
		Message:   msg,
	})
}
