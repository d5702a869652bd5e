/*
Package ports defines the driven ports (interfaces) for the Clara engine.

These interfaces decouple the workflow core from external implementations, allowing
the engine to work with various capability providers, planners and storage backends.

# Key Interfaces

  - CapabilityProvider: Executes named abilities on behalf of ATLAS or COMMON (e.g., MCP, simulated).
  - Planner: Chooses the abilities and their order for NON_DETERMINISTIC stages.
  - StateStore: Responsible for persisting and loading WorkflowState.
  - DistributedLocker: Provides distributed locking for handling concurrent workflow access.
  - WorkflowService: The driving port used by transports (HTTP, MCP, CLI).
*/
package ports
