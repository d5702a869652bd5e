// Package runtime is the Clara workflow executor.
//
// It contains the Ability Invoker, the Decision Engine and the Engine that
// threads a domain.WorkflowState through the stage catalog, suspending at
// HUMAN_INTERACTION stages and checkpointing after every unit of progress.
package runtime
