package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/clara/pkg/ports"
)

// DefaultAnswerField is the field the human answer is merged under on Resume.
const DefaultAnswerField = "customer_answer"

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithService configures the workflow service the runner drives. Required.
func WithService(svc ports.WorkflowService) Option {
	return func(r *Runner) {
		r.service = svc
	}
}

// WithRequest sets the customer request used to start a new workflow.
func WithRequest(fields map[string]any) Option {
	return func(r *Runner) {
		r.fields = fields
	}
}

// WithRequestID sets the workflow ID. An existing workflow with this ID is
// picked up where it stopped; otherwise a new one is started under it.
func WithRequestID(id string) Option {
	return func(r *Runner) {
		r.requestID = id
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithInterceptor configures the answer review middleware.
func WithInterceptor(interceptor AnswerInterceptor) Option {
	return func(r *Runner) {
		r.Interceptor = interceptor
	}
}

// WithAnswerField changes the field the answer is submitted under.
func WithAnswerField(field string) Option {
	return func(r *Runner) {
		if field != "" {
			r.answerField = field
		}
	}
}

// WithInputTimeout bounds how long the runner waits for an answer. Zero waits forever.
func WithInputTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.inputTimeout = d
	}
}

// WithInterruptSource sets a channel that interrupts the runner like an OS signal.
func WithInterruptSource(ch <-chan struct{}) Option {
	return func(r *Runner) {
		r.interrupts = ch
	}
}
