package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/clara/pkg/domain"
)

// LoggingHooks logs every lifecycle event. Stage and ability events are
// debug level, failures warn or error, decisions info.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			logger.DebugContext(ctx, "stage_enter",
				"request_id", e.RequestID,
				"stage", e.Stage,
				"type", e.Type,
			)
		},
		OnStageExit: func(ctx context.Context, e *domain.StageEvent) {
			level := slog.LevelDebug
			if e.Degraded {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "stage_exit",
				"request_id", e.RequestID,
				"stage", e.Stage,
				"duration", e.Duration,
				"degraded", e.Degraded,
				"suspended", e.Suspended,
			)
		},
		OnAbilityCall: func(ctx context.Context, e *domain.AbilityEvent) {
			if e.Success {
				logger.DebugContext(ctx, "ability_call",
					"request_id", e.RequestID,
					"stage", e.Stage,
					"ability", e.Ability.String(),
					"duration", e.Duration,
				)
				return
			}
			logger.WarnContext(ctx, "ability_call",
				"request_id", e.RequestID,
				"stage", e.Stage,
				"ability", e.Ability.String(),
				"kind", e.Kind,
				"message", e.Message,
			)
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.InfoContext(ctx, "decision",
				"request_id", e.RequestID,
				"score", e.Record.Score,
				"outcome", e.Record.Outcome,
			)
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.ErrorContext(ctx, "workflow_error",
				"request_id", e.RequestID,
				"stage", e.Stage,
				"kind", e.Kind,
				"message", e.Message,
			)
		},
	}
}
