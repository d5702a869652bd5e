/*
Package domain contains the core domain models of the Clara workflow engine.

It defines the fixed stage graph of a support request, the mutable state threaded
through it, the escalation decision and the append-only audit trail. This package
is kept pure and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Stage: one of the eleven fixed pipeline positions (INTAKE ... COMPLETE) and its execution type.
  - AbilityRef: a named unit of work delegated to a capability provider (ATLAS or COMMON).
  - WorkflowState: the runtime record of a single request (Fields, Status, Decision, Audit).
  - DecisionRecord: the score-based escalation decision taken at DECIDE.
  - AuditLog: the chronological record of stage, ability, decision and error events.
*/
package domain
