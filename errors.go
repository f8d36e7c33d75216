// Package tinykernel — result codes.
//
// The kernel never unwinds via panic/recover for recoverable conditions;
// every public operation returns one of the sentinel errors below,
// optionally wrapped in a [*KernelError] that carries the offending
// object and operation name for diagnostics. Use [errors.Is] against the
// sentinels; [*KernelError] implements Unwrap so cause chains compose
// the normal way.
package tinykernel

import (
	"errors"
	"fmt"
)

// Sentinel result codes, corresponding to the stable enumeration in the
// specification this kernel implements.
var (
	// ErrBadParam is returned when an argument is invalid (nil task, out
	// of range priority, zero-size stack, nil function, etc).
	ErrBadParam = errors.New("tinykernel: invalid parameter")

	// ErrInvalidObject is returned when a task or mutex pointer fails its
	// identity-tag check (stale pointer, already deleted, never created).
	ErrInvalidObject = errors.New("tinykernel: invalid object")

	// ErrBadState is returned when an operation's precondition on the
	// target's current state is not met.
	ErrBadState = errors.New("tinykernel: operation not valid in current state")

	// ErrWrongContext is the result code for an operation called from the
	// wrong execution context (e.g. a non-ISR variant called from an ISR,
	// or vice versa). No operation returns it: the kernel does not detect
	// ISR versus task context, and the "I"-prefixed variants differ from
	// their plain counterparts only in skipping the context switch.
	ErrWrongContext = errors.New("tinykernel: called from wrong execution context")

	// ErrTimeout is returned when a bounded wait elapses before the
	// condition it was waiting for became true.
	ErrTimeout = errors.New("tinykernel: wait timed out")

	// ErrForced is returned to a task whose wait was terminated
	// administratively via ReleaseWait/IReleaseWait.
	ErrForced = errors.New("tinykernel: wait was forcibly released")

	// ErrIllegalUse is returned for mutex protocol violations with a
	// definite caller at fault: unlock by a non-holder. The recursion
	// count is not checked for overflow.
	ErrIllegalUse = errors.New("tinykernel: illegal mutex use")

	// ErrDeadlock is the result code for a lock-wait-for cycle. No
	// operation returns it: with deadlock detection enabled, a cycle is
	// reported to the WithDeadlockCallback callback as a slice of tasks.
	ErrDeadlock = errors.New("tinykernel: deadlock detected")
)

// KernelError wraps a sentinel result code with the offending operation
// and object for diagnostics, while still satisfying errors.Is against
// the wrapped sentinel.
type KernelError struct {
	// Op is the operation that failed, e.g. "Kernel.Unlock" or "Kernel.Suspend".
	Op string
	// Object is a human-readable identifier for the task/mutex involved.
	Object string
	// Cause is the sentinel result code this error represents.
	Cause error
}

// Error implements the error interface.
func (e *KernelError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s(%s): %v", e.Op, e.Object, e.Cause)
}

// Unwrap returns the wrapped sentinel result code, enabling errors.Is and
// errors.As against it.
func (e *KernelError) Unwrap() error {
	return e.Cause
}

// wrapErr builds a *KernelError, or returns nil if cause is nil.
func wrapErr(op, object string, cause error) error {
	if cause == nil {
		return nil
	}
	return &KernelError{Op: op, Object: object, Cause: cause}
}
