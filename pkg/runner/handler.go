package runner

import (
	"context"

	"github.com/aretw0/clara/pkg/domain"
)

// IOHandler defines the strategy for interacting with the human.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Questions presents the clarification questions of a suspended workflow.
	Questions(ctx context.Context, requestID string, req domain.HumanRequest) error

	// Input reads the answer.
	Input(ctx context.Context) (string, error)

	// Result presents a workflow that left the conversation, completed or failed.
	Result(ctx context.Context, state *domain.WorkflowState) error

	// SystemOutput presents a meta-message to the user (e.g. status updates).
	// This is distinct from workflow content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms markdown before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
