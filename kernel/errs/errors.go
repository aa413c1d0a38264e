// Package errs defines the kernel's structured error taxonomy.
//
// Two families are distinguished. Structural errors (CycleFound,
// ArgumentConflict, TaskEventNotExecutable, ModelViolation) are surfaced
// directly to the caller of the offending mutation and never propagate
// through the event graph. Localized errors (CommandFailed, EmissionFailed,
// UnreachableEvent, ChildFailedError, TaskEmergencyTermination) carry a
// Localization and are raised into the engine's error-handling relation.
package errs

import (
	"errors"
	"fmt"
)

type (
	// Localization identifies where a localized error originated: a failed
	// event, a failed generator, or a failed task. Every identity known at
	// the point of failure is set, so several fields may be filled at once;
	// callers use the most specific one available, falling back from event
	// to generator to task.
	Localization struct {
		// EventID is the propagation id of the event that failed, if any.
		EventID string
		// GeneratorID is the generator the error is attributed to, if any.
		GeneratorID string
		// TaskID is the owning task, if one exists.
		TaskID string
	}

	// CycleFound reports that adding an edge to a DAG-flagged relation would
	// close a cycle. The edge is rejected before any relation hook fires.
	CycleFound struct {
		Relation string
		From, To string
	}

	// ArgumentConflict reports that a requested argument assignment could
	// not be reconciled with the result of running the model's setters, or
	// that a concrete value failed its declared JSON-schema validation.
	ArgumentConflict struct {
		Task     string
		Argument string
		Wanted   any
		Got      any
		// SchemaCause holds a JSON-schema validation failure when the
		// conflict stems from §4.1/NEW rather than a setter disagreement.
		SchemaCause error
	}

	// TaskEventNotExecutable reports that call/emit was attempted on a
	// generator that is not in a legal state to execute (plan not
	// executable, task abstract, or arguments not fully instanciated).
	TaskEventNotExecutable struct {
		Task  string
		Event string
		Why   string
	}

	// ModelViolation reports a structural inconsistency in a task model or
	// plan mutation request that does not fit the other structural error
	// shapes: a stale proxy reference, a declared event with no command but
	// marked controllable, an unknown symbol, etc.
	ModelViolation struct {
		Detail string
		Cause  error
	}

	// CommandFailed reports that invoking a controllable event's command
	// returned an error. On a task's start event before its first emission
	// this causes failed_to_start; on any other task event, or after the
	// first emission, the owning task enters internal_error.
	CommandFailed struct {
		Localization
		Cause error
	}

	// EmissionFailed reports that emit() was attempted on a generator that
	// is not in a legal state (already unreachable, or the plan is not
	// executable).
	EmissionFailed struct {
		Localization
		Reason string
	}

	// UnreachableEvent reports that a generator became unreachable with an
	// optional cause (e.g. its achieve_with source became unreachable
	// first).
	UnreachableEvent struct {
		Localization
		Cause error
	}

	// ChildFailedError reports that a dependency's forbidden event set was
	// violated or its desired event set became unreachable.
	ChildFailedError struct {
		Localization
		Child string
	}

	// TaskEmergencyTermination reports that a task in forced termination had
	// its failed event emitted directly because it had no controllable stop
	// event or its stop command failed, leaving no controlled way to finish
	// it.
	TaskEmergencyTermination struct {
		Localization
		Cause error
	}

	// SynchronousEventProcessingMultipleErrors aggregates every localized
	// error raised during one propagation pass, in the order they were
	// raised.
	SynchronousEventProcessingMultipleErrors []LocalizedError

	// LocalizedError is implemented by every localized error type above.
	LocalizedError interface {
		error
		Locate() Localization
	}
)

// sentinels used for errors.Is classification of the localized family.
var (
	ErrCommandFailed              = errors.New("command failed")
	ErrEmissionFailed             = errors.New("emission failed")
	ErrUnreachableEvent           = errors.New("event unreachable")
	ErrChildFailed                = errors.New("child task failed")
	ErrTaskEmergencyTermination   = errors.New("task emergency termination")
)

func (e *CycleFound) Error() string {
	return fmt.Sprintf("relation %q: adding edge %s -> %s would close a cycle", e.Relation, e.From, e.To)
}

func (e *ArgumentConflict) Error() string {
	if e.SchemaCause != nil {
		return fmt.Sprintf("task %s: argument %q failed schema validation: %v", e.Task, e.Argument, e.SchemaCause)
	}
	return fmt.Sprintf("task %s: argument %q assignment conflict: wanted %v, got %v", e.Task, e.Argument, e.Wanted, e.Got)
}

func (e *ArgumentConflict) Unwrap() error { return e.SchemaCause }

func (e *TaskEventNotExecutable) Error() string {
	return fmt.Sprintf("task %s: event %q is not executable: %s", e.Task, e.Event, e.Why)
}

func (e *ModelViolation) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model violation: %s: %v", e.Detail, e.Cause)
	}
	return "model violation: " + e.Detail
}

func (e *ModelViolation) Unwrap() error { return e.Cause }

func (e *CommandFailed) Error() string {
	return fmt.Sprintf("command failed on %s: %v", e.describe(), e.Cause)
}
func (e *CommandFailed) Unwrap() error          { return e.Cause }
func (e *CommandFailed) Is(target error) bool   { return target == ErrCommandFailed }
func (e *CommandFailed) Locate() Localization    { return e.Localization }

func (e *EmissionFailed) Error() string {
	return fmt.Sprintf("emission failed on %s: %s", e.describe(), e.Reason)
}
func (e *EmissionFailed) Is(target error) bool { return target == ErrEmissionFailed }
func (e *EmissionFailed) Locate() Localization  { return e.Localization }

func (e *UnreachableEvent) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s is unreachable: %v", e.describe(), e.Cause)
	}
	return e.describe() + " is unreachable"
}
func (e *UnreachableEvent) Unwrap() error        { return e.Cause }
func (e *UnreachableEvent) Is(target error) bool { return target == ErrUnreachableEvent }
func (e *UnreachableEvent) Locate() Localization  { return e.Localization }

func (e *ChildFailedError) Error() string {
	return fmt.Sprintf("%s: child %s failed", e.describe(), e.Child)
}
func (e *ChildFailedError) Is(target error) bool { return target == ErrChildFailed }
func (e *ChildFailedError) Locate() Localization  { return e.Localization }

func (e *TaskEmergencyTermination) Error() string {
	return fmt.Sprintf("%s entered emergency termination: %v", e.describe(), e.Cause)
}
func (e *TaskEmergencyTermination) Unwrap() error { return e.Cause }
func (e *TaskEmergencyTermination) Is(target error) bool {
	return target == ErrTaskEmergencyTermination
}
func (e *TaskEmergencyTermination) Locate() Localization { return e.Localization }

func (l Localization) describe() string {
	switch {
	case l.EventID != "":
		return "event " + l.EventID
	case l.GeneratorID != "":
		return "generator " + l.GeneratorID
	case l.TaskID != "":
		return "task " + l.TaskID
	default:
		return "<unlocalized>"
	}
}

// Error implements the error interface by joining every member error,
// preserving order.
func (agg SynchronousEventProcessingMultipleErrors) Error() string {
	if len(agg) == 0 {
		return "no errors"
	}
	msg := fmt.Sprintf("%d error(s) during cycle propagation", len(agg))
	for _, e := range agg {
		msg += "; " + e.Error()
	}
	return msg
}

// OriginalExceptions filters out any error that is already transitively
// referenced (via Unwrap) by another error in the aggregate, order-preserving.
func (agg SynchronousEventProcessingMultipleErrors) OriginalExceptions() []LocalizedError {
	referenced := make(map[error]bool, len(agg))
	for _, e := range agg {
		var cur error = e
		for {
			next := errors.Unwrap(cur)
			if next == nil {
				break
			}
			referenced[next] = true
			cur = next
		}
	}
	out := make([]LocalizedError, 0, len(agg))
	for _, e := range agg {
		if !referenced[error(e)] {
			out = append(out, e)
		}
	}
	return out
}
