package flow

import (
	"errors"
	"fmt"
)

// Kind partitions flow errors by how callers must handle them.
type Kind string

const (
	// KindConfiguration covers cyclic dependencies and malformed
	// declarations. Fatal at graph construction, never recovered.
	KindConfiguration Kind = "configuration"
	// KindValidation covers payload and tool-argument mismatches.
	// Recovered locally as agent feedback; never reaches a flow result.
	KindValidation Kind = "validation"
	// KindTaskFailure covers explicit agent failures and exhausted turn
	// budgets. Terminal for the task, propagated to dependents as skips.
	KindTaskFailure Kind = "task_failure"
	// KindConvergence covers the global iteration ceiling. Fatal.
	KindConvergence Kind = "convergence"
	// KindTransport covers external collaborator failures. Retried up to
	// the turn budget, then becomes a task failure.
	KindTransport Kind = "transport"
	// KindCancellation covers explicit flow cancellation.
	KindCancellation Kind = "cancellation"
)

// Error is a flow-level error carrying its kind and, where applicable,
// the root-cause task.
type Error struct {
	Kind Kind
	// TaskID is the root-cause task, if the error originates from one.
	TaskID string
	Err    error
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s: task %s: %v", e.Kind, e.TaskID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a flow error of the given kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewTaskError builds a flow error rooted at a task.
func NewTaskError(kind Kind, taskID string, err error) *Error {
	return &Error{Kind: kind, TaskID: taskID, Err: err}
}

// Errorf builds a flow error from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) a flow error, or
// the empty string otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
