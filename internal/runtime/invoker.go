package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
)

// InputSchema returns the field keys an ability receives. Nil means every field.
type InputSchema func(ref domain.AbilityRef) []string

// Invoker dispatches abilities to capability providers.
// It never panics and never returns a Go error: every outcome is an AbilityResult,
// and every call leaves exactly one ABILITY_CALL entry in the audit trail.
type Invoker struct {
	providers map[domain.Provider]ports.CapabilityProvider
	inputs    InputSchema
	timeout   time.Duration
	now       func() time.Time
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// NewInvoker creates an invoker over the given providers.
func NewInvoker(providers map[domain.Provider]ports.CapabilityProvider, inputs InputSchema) *Invoker {
	p := make(map[domain.Provider]ports.CapabilityProvider, len(providers))
	for k, v := range providers {
		if v != nil {
			p[k] = v
		}
	}
	if inputs == nil {
		inputs = func(domain.AbilityRef) []string { return nil }
	}
	return &Invoker{
		providers: p,
		inputs:    inputs,
		now:       defaultClock,
		logger:    logging.NewNop(),
	}
}

// Invoke runs one ability against the current fields of state.
// Output is not merged; the caller decides what to do with it.
func (i *Invoker) Invoke(ctx context.Context, stage domain.StageID, ref domain.AbilityRef, state *domain.WorkflowState) domain.AbilityResult {
	start := i.now()
	res := i.call(ctx, ref, state)
	end := i.now()
	res.Duration = end.Sub(start)

	detail := map[string]any{
		"ability":  ref.Name,
		"provider": string(ref.Provider),
		"success":  res.Success,
	}
	if !res.Success {
		detail["kind"] = string(res.Kind)
		detail["message"] = res.Message
	}
	state.Audit.Append(domain.AuditEntry{
		StageID:        stage,
		EventType:      domain.EventAbilityCall,
		Timestamp:      end,
		DurationMicros: res.Duration.Microseconds(),
		Detail:         detail,
	})

	if res.Success {
		i.logger.DebugContext(ctx, "ability invoked", "request_id", state.RequestID, "stage", stage, "ability", ref.String(), "duration", res.Duration)
	} else {
		i.logger.WarnContext(ctx, "ability failed", "request_id", state.RequestID, "stage", stage, "ability", ref.String(), "kind", res.Kind, "message", res.Message)
	}

	if i.hooks.OnAbilityCall != nil {
		i.hooks.OnAbilityCall(ctx, &domain.AbilityEvent{
			EventBase: domain.EventBase{Timestamp: end, RequestID: state.RequestID},
			Stage:     stage,
			Ability:   ref,
			Duration:  res.Duration,
			Success:   res.Success,
			Kind:      res.Kind,
			Message:   res.Message,
		})
	}
	return res
}

func (i *Invoker) call(ctx context.Context, ref domain.AbilityRef, state *domain.WorkflowState) (res domain.AbilityResult) {
	res.Ability = ref

	provider, ok := i.providers[ref.Provider]
	if !ok {
		res.Kind = domain.KindProviderUnavailable
		res.Message = fmt.Sprintf("no provider registered for %s", ref.Provider)
		return res
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	input := state.Slice(i.inputs(ref))

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Output = nil
			res.Kind = domain.KindAbilityFailure
			res.Message = fmt.Sprintf("provider panic: %v", r)
		}
	}()

	resp, err := provider.Call(ctx, ref.Name, input)
	if err != nil {
		res.Kind = classifyCallError(ctx, err)
		res.Message = err.Error()
		return res
	}
	if !resp.Success {
		res.Kind = domain.KindAbilityFailure
		res.Message = resp.Message
		if res.Message == "" {
			res.Message = "provider reported failure"
		}
		return res
	}

	res.Success = true
	res.Output = resp.Output
	return res
}

// classifyCallError maps a transport-level error. Deadlines and cancellation are
// ability failures; anything else means the provider could not be reached.
func classifyCallError(ctx context.Context, err error) domain.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return domain.KindAbilityFailure
	case errors.Is(err, domain.ErrAbilityFailure):
		return domain.KindAbilityFailure
	default:
		return domain.KindProviderUnavailable
	}
}

func defaultClock() time.Time {
	return time.Now().UTC()
}
