package ports

import (
	"context"

	"github.com/aretw0/clara/pkg/domain"
)

// StateStore defines the interface for persisting workflow state.
// This allows for durable execution, enabling suspend at ASK and resume later,
// possibly in another process.
type StateStore interface {
	// Save persists the state for a given request ID.
	Save(ctx context.Context, requestID string, state *domain.WorkflowState) error

	// Load retrieves the state for a given request ID.
	// Returns domain.ErrSessionNotFound if the workflow does not exist.
	Load(ctx context.Context, requestID string) (*domain.WorkflowState, error)

	// Delete removes the state for a given request ID.
	Delete(ctx context.Context, requestID string) error

	// List returns the IDs of all stored workflows.
	List(ctx context.Context) ([]string, error)
}
