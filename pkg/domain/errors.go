package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures.
type ErrorKind string

const (
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindAbilityFailure      ErrorKind = "AbilityFailure"
	KindScoringUnavailable  ErrorKind = "ScoringUnavailable"
	KindInvalidResumeState  ErrorKind = "InvalidResumeState"
	KindInternalTransform   ErrorKind = "InternalTransformError"
	KindCancelled           ErrorKind = "Cancelled"
	KindDegradedHalt        ErrorKind = "DegradedHalt"
)

var (
	// ErrProviderUnavailable is returned when no provider can serve an ability.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrAbilityFailure is returned when a provider reports failure or times out.
	ErrAbilityFailure = errors.New("ability failure")
	// ErrScoringUnavailable is returned when the scoring ability fails or reports an invalid score.
	ErrScoringUnavailable = errors.New("scoring unavailable")
	// ErrInvalidResumeState is returned when Resume targets a workflow that is not waiting for a human.
	ErrInvalidResumeState = errors.New("invalid resume state")
	// ErrInternalTransform is returned when a payload transformation fails.
	ErrInternalTransform = errors.New("internal transform error")
	// ErrCancelled is returned when the workflow context is cancelled.
	ErrCancelled = errors.New("cancelled")
	// ErrDegradedHalt is returned when the degraded policy refuses to continue past DECIDE.
	ErrDegradedHalt = errors.New("degraded workflow halted")

	// ErrSessionNotFound is returned when a request ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTerminalState is returned when mutating a COMPLETED or FAILED workflow.
	ErrTerminalState = errors.New("workflow is in a terminal state")
)

var kindSentinels = map[ErrorKind]error{
	KindProviderUnavailable: ErrProviderUnavailable,
	KindAbilityFailure:      ErrAbilityFailure,
	KindScoringUnavailable:  ErrScoringUnavailable,
	KindInvalidResumeState:  ErrInvalidResumeState,
	KindInternalTransform:   ErrInternalTransform,
	KindCancelled:           ErrCancelled,
	KindDegradedHalt:        ErrDegradedHalt,
}

// Sentinel returns the package-level error matching the kind.
func (k ErrorKind) Sentinel() error {
	return kindSentinels[k]
}

// WorkflowError is a classified failure raised while executing a workflow.
type WorkflowError struct {
	Kind    ErrorKind
	Stage   StageID
	Ability string
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg += " at " + string(e.Stage)
	}
	if e.Ability != "" {
		msg += " (" + e.Ability + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *WorkflowError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && s == target
}

// NewError builds a WorkflowError.
func NewError(kind ErrorKind, stage StageID, format string, args ...any) *WorkflowError {
	return &WorkflowError{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification of err. It returns "" for unclassified errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	for k, s := range kindSentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return ""
}
