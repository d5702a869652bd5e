package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/internal/presentation/tui"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/runner"
)

// ErrWorkflowFailed is returned by Run when the workflow ends FAILED.
var ErrWorkflowFailed = errors.New("workflow failed")

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	RequestID    string
	Fields       map[string]any
	JSON         bool
	Interactive  bool // Stdout is a terminal
	Confirm      bool
	MinAnswer    int
	InputTimeout time.Duration
	Debug        bool

	In  io.Reader
	Out io.Writer
}

// Run drives one workflow to completion through the runner, starting it from
// opts.Fields or picking it up by opts.RequestID.
func Run(ctx context.Context, app *App, opts RunOptions) (*domain.WorkflowState, error) {
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(opts.In, opts.Out)
	} else {
		if opts.Interactive {
			tui.PrintBanner(opts.Out, clara.Version)
		}
		handler = runner.NewTextHandler(opts.In, opts.Out,
			runner.WithTextHandlerRenderer(tui.NewRenderer(opts.Interactive)))
		reportHealth(sigCtx, app, opts.Out)
	}

	var interceptors []runner.AnswerInterceptor
	if opts.MinAnswer > 0 {
		interceptors = append(interceptors, runner.MinLengthMiddleware(handler, opts.MinAnswer))
	}
	if opts.Confirm {
		interceptors = append(interceptors, runner.ConfirmationMiddleware(handler))
	}

	runnerOpts := []runner.Option{
		runner.WithService(app.Engine),
		runner.WithRequestID(opts.RequestID),
		runner.WithLogger(app.Logger),
		runner.WithInputHandler(handler),
		runner.WithInputTimeout(opts.InputTimeout),
	}
	if opts.Fields != nil {
		runnerOpts = append(runnerOpts, runner.WithRequest(opts.Fields))
	}
	if len(interceptors) > 0 {
		runnerOpts = append(runnerOpts, runner.WithInterceptor(runner.MultiInterceptor(interceptors...)))
	}

	state, err := runner.NewRunner(runnerOpts...).Run(sigCtx)
	if err != nil {
		id := opts.RequestID
		if state != nil {
			id = state.RequestID
		}
		if !opts.JSON {
			return state, handleExecutionError(opts.Out, id, err, sigCtx.Signal())
		}
		if isInterrupted(err) {
			return state, nil
		}
		return state, err
	}

	if state.Status == domain.StatusFailed {
		return state, fmt.Errorf("%w: %s", ErrWorkflowFailed, state.RequestID)
	}
	return state, nil
}

// reportHealth warns about providers that cannot be reached.
func reportHealth(ctx context.Context, app *App, w io.Writer) {
	for kind, err := range app.Engine.Health(ctx) {
		if err != nil {
			printSystemMessage(w, "Provider %s is unavailable: %v", kind, err)
		}
	}
}
