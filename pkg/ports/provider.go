package ports

import (
	"context"

	"github.com/aretw0/clara/pkg/domain"
)

// CapabilityProvider executes abilities by name.
// Implementations are shared across workflows and must be safe for concurrent use.
type CapabilityProvider interface {
	// Call performs the named ability with the given input slice.
	// A returned error means the provider could not be reached; a reachable
	// provider reports ability-level failure through ProviderResponse.Success.
	Call(ctx context.Context, ability string, input map[string]any) (domain.ProviderResponse, error)
}

// HealthChecker is implemented by providers that can report their availability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Planner decides which abilities of a NON_DETERMINISTIC stage run, and in what order.
type Planner interface {
	// Plan returns an ordered subset of available. Unknown or duplicate
	// entries are discarded by the executor.
	Plan(ctx context.Context, stage domain.Stage, available []domain.AbilityRef, snapshot *domain.WorkflowState) ([]domain.AbilityRef, error)
}
