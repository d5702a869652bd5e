package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
)

var (
	// ErrInterrupted is returned when a signal stops the runner while it waits
	// for an answer. The workflow stays suspended.
	ErrInterrupted = errors.New("interrupted")

	// ErrInputTimeout is returned when no answer arrived within the input timeout.
	// The workflow stays suspended.
	ErrInputTimeout = errors.New("timed out waiting for an answer")
)

// Runner handles the conversation loop of a workflow using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on stdin/stdout is used.
	Handler IOHandler

	// Interceptor reviews each answer before it is submitted.
	// If nil, every answer is accepted.
	Interceptor AnswerInterceptor

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	service      ports.WorkflowService
	requestID    string
	fields       map[string]any
	answerField  string
	inputTimeout time.Duration
	interrupts   <-chan struct{}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{answerField: DefaultAnswerField}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts or picks up the workflow and drives it until it completes, fails
// or the human stops answering. The returned state is the last one observed.
//
// Typing "exit" or "quit", or closing the input, stops the runner without an
// error and leaves the workflow waiting.
func (r *Runner) Run(ctx context.Context) (*domain.WorkflowState, error) {
	if r.service == nil {
		return nil, errors.New("runner: no workflow service configured")
	}
	handler := r.resolveHandler()
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	signals := NewSignalManager(ctx)
	defer signals.Stop()
	stopWatch := r.watchInterrupts(signals)
	defer stopWatch()

	state, err := r.resolveInitialState(signals.Context())
	if err != nil {
		return nil, err
	}
	logger = logger.With("request_id", state.RequestID)

	for state.Status == domain.StatusWaitingForHuman && state.Pending != nil {
		if err := handler.Questions(signals.Context(), state.RequestID, *state.Pending); err != nil {
			return state, fmt.Errorf("output error: %w", err)
		}

		answer, err := r.readAnswer(signals, handler, state)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("runner stopped, workflow left waiting")
				_ = handler.SystemOutput(ctx, fmt.Sprintf("Workflow %s is still waiting for an answer.", state.RequestID))
				return state, nil
			}
			return state, err
		}

		logger.Debug("submitting answer", "field", r.answerField)
		next, err := r.service.Resume(signals.Context(), state.RequestID, map[string]any{r.answerField: answer})
		if err != nil {
			return state, fmt.Errorf("resume: %w", err)
		}
		state = next
	}

	if err := handler.Result(ctx, state); err != nil {
		return state, fmt.Errorf("output error: %w", err)
	}
	return state, nil
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler == nil {
		// Memoize to prevent creating new pumps on subsequent Run() calls
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r.Handler
}

// resolveInitialState picks up an existing workflow by ID or starts a new one.
func (r *Runner) resolveInitialState(ctx context.Context) (*domain.WorkflowState, error) {
	if r.requestID != "" {
		state, err := r.service.Get(ctx, r.requestID)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to load workflow %s: %w", r.requestID, err)
		}
	}
	if r.fields == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, r.requestID)
	}

	state, err := r.service.Run(ctx, r.requestID, r.fields)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	return state, nil
}

// readAnswer reads until the interceptor accepts an answer.
func (r *Runner) readAnswer(signals *SignalManager, handler IOHandler, state *domain.WorkflowState) (string, error) {
	for {
		ctx, cancel := r.createInputContext(signals.Context())
		val, err := handler.Input(ctx)
		ctxErr := ctx.Err()
		cancel()

		if err != nil {
			signals.CheckRace()
			switch {
			case errors.Is(ctxErr, context.DeadlineExceeded):
				return "", fmt.Errorf("%w: %s", ErrInputTimeout, state.RequestID)
			case ctxErr != nil || signals.Context().Err() != nil:
				return "", fmt.Errorf("%w: workflow %s is still waiting", ErrInterrupted, state.RequestID)
			case errors.Is(err, io.EOF):
				return "", io.EOF
			}
			return "", fmt.Errorf("input error: %w", err)
		}

		switch strings.ToLower(val) {
		case "exit", "quit":
			return "", io.EOF
		}
		if strings.TrimSpace(val) == "" {
			_ = handler.SystemOutput(signals.Context(), "An answer is required.")
			continue
		}

		if r.Interceptor != nil {
			ok, err := r.Interceptor(signals.Context(), state, val)
			if err != nil {
				return "", fmt.Errorf("answer interceptor error: %w", err)
			}
			if !ok {
				continue
			}
		}
		return val, nil
	}
}

func (r *Runner) createInputContext(parent context.Context) (context.Context, context.CancelFunc) {
	if r.inputTimeout > 0 {
		return context.WithTimeout(parent, r.inputTimeout)
	}
	return context.WithCancel(parent)
}

// watchInterrupts forwards the interrupt source to the signal manager.
func (r *Runner) watchInterrupts(signals *SignalManager) func() {
	if r.interrupts == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-r.interrupts:
			signals.Interrupt()
		case <-done:
		}
	}()
	return func() { close(done) }
}
