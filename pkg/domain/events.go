package domain

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the event.
type EventType string

const (
	EventOutput           EventType = "OUTPUT"
	EventInput            EventType = "INPUT"
	EventApplicationStart EventType = "APPLICATION_START"
	EventApplicationEnd   EventType = "APPLICATION_END"
	EventInvalid          EventType = "INVALID"
	EventError            EventType = "ERROR"
	EventInterrupted      EventType = "TSW_INTERRUPTED"
	EventPortConflict     EventType = "PORT_CONFLICT"
)

// Event is an append-only record attached to an instance.
type Event struct {
	ID         string    `json:"id" db:"id"`
	InstanceID string    `json:"instance_id" db:"instance_id"`
	Type       EventType `json:"type" db:"type"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Content    string    `json:"content" db:"content"`
}

// NewEvent stamps a new event for the instance.
func NewEvent(instanceID string, typ EventType, content string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Type:       typ,
		Timestamp:  time.Now().UTC(),
		Content:    content,
	}
}

// Redacted replaces sensitive text in persisted events.
const Redacted = "[redacted]"

var addressPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}:\d{1,5}\b`)

// RedactAddresses hides IPv4:port occurrences such as player connections.
func RedactAddresses(s string) string {
	return addressPattern.ReplaceAllString(s, Redacted)
}

// TransitionEvent describes a state change observed on an instance.
type TransitionEvent struct {
	InstanceID string
	From       State
	To         State
}

// ActionEvent describes the start or the end of an action.
type ActionEvent struct {
	InstanceID string
	Action     Action
	Duration   time.Duration
	Outcome    string // "ok", "precondition", "invalid", "timeout", "process", "interrupted", "unclassified"
	Err        error
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTransition   func(context.Context, *TransitionEvent)
	OnActionStart  func(context.Context, *ActionEvent)
	OnActionFinish func(context.Context, *ActionEvent)
	OnOutput       func(context.Context, string, int)
}

// Transition invokes OnTransition when set.
func (h LifecycleHooks) Transition(ctx context.Context, e *TransitionEvent) {
	if h.OnTransition != nil {
		h.OnTransition(ctx, e)
	}
}

// ActionStarted invokes OnActionStart when set.
func (h LifecycleHooks) ActionStarted(ctx context.Context, e *ActionEvent) {
	if h.OnActionStart != nil {
		h.OnActionStart(ctx, e)
	}
}

// ActionFinished invokes OnActionFinish when set.
func (h LifecycleHooks) ActionFinished(ctx context.Context, e *ActionEvent) {
	if h.OnActionFinish != nil {
		h.OnActionFinish(ctx, e)
	}
}

// Output invokes OnOutput with the instance id and the number of bytes read.
func (h LifecycleHooks) Output(ctx context.Context, instanceID string, n int) {
	if h.OnOutput != nil {
		h.OnOutput(ctx, instanceID, n)
	}
}
