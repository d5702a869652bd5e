package ports

import (
	"context"

	"github.com/aretw0/clara/pkg/domain"
)

// WorkflowService is the driving port used by adapters (HTTP, MCP, CLI).
// Every call blocks until the workflow suspends, completes or fails.
type WorkflowService interface {
	// Run starts a new workflow. An empty requestID generates one.
	Run(ctx context.Context, requestID string, fields map[string]any) (*domain.WorkflowState, error)

	// Resume supplies the human answer to a workflow waiting at ASK.
	Resume(ctx context.Context, requestID string, input map[string]any) (*domain.WorkflowState, error)

	// Get returns a read-only snapshot of the workflow.
	Get(ctx context.Context, requestID string) (*domain.WorkflowState, error)

	// Audit returns the trail of the workflow, including entries of an in-flight run.
	Audit(ctx context.Context, requestID string) ([]domain.AuditEntry, error)

	// Cancel stops an in-flight run at the next stage boundary.
	Cancel(ctx context.Context, requestID string) error

	// List returns the IDs of the known workflows.
	List(ctx context.Context) ([]string, error)

	// Health reports the availability of each provider. A nil value means healthy.
	Health(ctx context.Context) map[domain.Provider]error
}
