package domain

import (
	"context"
	"time"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// StageEvent represents entry into or exit from a stage.
type StageEvent struct {
	EventBase
	Stage     StageID       `json:"stage"`
	Type      StageType     `json:"type"`
	Duration  time.Duration `json:"duration,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"`
	Suspended bool          `json:"suspended,omitempty"`
}

// AbilityEvent represents a completed ability invocation.
type AbilityEvent struct {
	EventBase
	Stage    StageID       `json:"stage"`
	Ability  AbilityRef    `json:"ability"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Kind     ErrorKind     `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// DecisionEvent is emitted once the escalation decision is recorded.
type DecisionEvent struct {
	EventBase
	Record DecisionRecord `json:"record"`
}

// ErrorEvent is emitted when a workflow fails.
type ErrorEvent struct {
	EventBase
	Stage   StageID   `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnStageEnter  func(context.Context, *StageEvent)
	OnStageExit   func(context.Context, *StageEvent)
	OnAbilityCall func(context.Context, *AbilityEvent)
	OnDecision    func(context.Context, *DecisionEvent)
	OnError       func(context.Context, *ErrorEvent)
}

// CombineHooks fans every event out to each of the given hooks, in order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *StageEvent) {
			for _, h := range hooks {
				if h.OnStageEnter != nil {
					h.OnStageEnter(ctx, e)
				}
			}
		},
		OnStageExit: func(ctx context.Context, e *StageEvent) {
			for _, h := range hooks {
				if h.OnStageExit != nil {
					h.OnStageExit(ctx, e)
				}
			}
		},
		OnAbilityCall: func(ctx context.Context, e *AbilityEvent) {
			for _, h := range hooks {
				if h.OnAbilityCall != nil {
					h.OnAbilityCall(ctx, e)
				}
			}
		},
		OnDecision: func(ctx context.Context, e *DecisionEvent) {
			for _, h := range hooks {
				if h.OnDecision != nil {
					h.OnDecision(ctx, e)
				}
			}
		},
		OnError: func(ctx context.Context, e *ErrorEvent) {
			for _, h := range hooks {
				if h.OnError != nil {
					h.OnError(ctx, e)
				}
			}
		},
	}
}
