package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInstanceNotFound is returned when an instance ID cannot be found in the store.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrWorldNotFound is returned when a world ID cannot be found in the store.
var ErrWorldNotFound = errors.New("world not found")

// PreconditionError rejects an action before any process interaction.
type PreconditionError struct {
	State  State
	Action Action
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s in state %s: %s", e.Action, e.State, e.Reason)
	}
	return fmt.Sprintf("action %s is not applicable in state %s", e.Action, e.State)
}

// DomainInvalidError means the instance configuration can never succeed.
type DomainInvalidError struct {
	Reason string
	Err    error
}

func (e *DomainInvalidError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid instance: %s: %v", e.Reason, e.Err)
	}
	return "invalid instance: " + e.Reason
}

func (e *DomainInvalidError) Unwrap() error { return e.Err }

// TimeoutError means an expected state was not reached in time.
type TimeoutError struct {
	Actual  State
	Desired []State
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	want := make([]string, len(e.Desired))
	for i, s := range e.Desired {
		want[i] = string(s)
	}
	return fmt.Sprintf("timed out after %s waiting for %s, instance is %s", e.After, strings.Join(want, "|"), e.Actual)
}

// ProcessError wraps a failed process multiplexer call.
type ProcessError struct {
	Op      string
	Session string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Session, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// InterruptedError marks work abandoned because its context was canceled.
type InterruptedError struct {
	Err error
}

func (e *InterruptedError) Error() string {
	return "interrupted: " + e.Err.Error()
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// IsPrecondition checks if the error is a PreconditionError.
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// IsDomainInvalid checks if the error is a DomainInvalidError.
func IsDomainInvalid(err error) bool {
	var target *DomainInvalidError
	return errors.As(err, &target)
}

// IsTimeout checks if the error is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsProcess checks if the error is a ProcessError.
func IsProcess(err error) bool {
	var target *ProcessError
	return errors.As(err, &target)
}

// IsInterrupted checks if the error is an InterruptedError.
func IsInterrupted(err error) bool {
	var target *InterruptedError
	return errors.As(err, &target)
}
