package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/clara/pkg/domain"
)

// AnswerInterceptor reviews an answer before it is submitted to the workflow.
// It returns true to submit it, or false to ask again.
type AnswerInterceptor func(ctx context.Context, state *domain.WorkflowState, answer string) (bool, error)

// MultiInterceptor chains interceptors. The first refusal wins.
func MultiInterceptor(interceptors ...AnswerInterceptor) AnswerInterceptor {
	return func(ctx context.Context, state *domain.WorkflowState, answer string) (bool, error) {
		for _, interceptor := range interceptors {
			ok, err := interceptor(ctx, state, answer)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// ConfirmationMiddleware asks the human to confirm the answer through the
// handler before it is submitted. Resuming is not reversible.
func ConfirmationMiddleware(handler IOHandler) AnswerInterceptor {
	return func(ctx context.Context, state *domain.WorkflowState, answer string) (bool, error) {
		msg := fmt.Sprintf("Submit this answer for %s?\n  %q\n[y/N]", state.RequestID, answer)
		if err := handler.SystemOutput(ctx, msg); err != nil {
			return false, err
		}

		input, err := handler.Input(ctx)
		if err != nil {
			return false, err
		}

		switch strings.TrimSpace(strings.ToLower(input)) {
		case "y", "yes":
			return true, nil
		}
		return false, handler.SystemOutput(ctx, "Answer discarded. Please answer again.")
	}
}

// MinLengthMiddleware refuses answers shorter than n characters, which are
// rarely enough for WAIT to extract anything from.
func MinLengthMiddleware(handler IOHandler, n int) AnswerInterceptor {
	return func(ctx context.Context, state *domain.WorkflowState, answer string) (bool, error) {
		if len([]rune(strings.TrimSpace(answer))) >= n {
			return true, nil
		}
		return false, handler.SystemOutput(ctx, fmt.Sprintf("Please give a little more detail (at least %d characters).", n))
	}
}
