package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/tsw/pkg/domain"
)

// Outcome is the classification of an applied action.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomePrecondition Outcome = "precondition"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeProcess      Outcome = "process"
	OutcomeInterrupted  Outcome = "interrupted"
	OutcomeUnclassified Outcome = "unclassified"
)

// Classify maps an action error onto an Outcome. A nil error is OutcomeOK.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case domain.IsInterrupted(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeInterrupted
	case domain.IsPrecondition(err):
		return OutcomePrecondition
	case domain.IsDomainInvalid(err):
		return OutcomeInvalid
	case domain.IsTimeout(err):
		return OutcomeTimeout
	case domain.IsProcess(err):
		return OutcomeProcess
	default:
		return OutcomeUnclassified
	}
}

// Resolve returns the state an instance in current ends up in after a failure
// with outcome o, and the type of the event recording it.
func Resolve(o Outcome, current domain.State) (domain.State, domain.EventType) {
	switch o {
	case OutcomePrecondition:
		return current, domain.EventError
	case OutcomeInvalid:
		return domain.StateInvalid, domain.EventInvalid
	case OutcomeInterrupted:
		return domain.StateBroken, domain.EventInterrupted
	default:
		return domain.StateBroken, domain.EventError
	}
}

// Message is the text stored for a failure: the error message, or its type
// name when the message is empty.
func Message(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}
