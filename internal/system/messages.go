package system

import (
	"github.com/babyman/fraktor/internal/pathreg"
)

// SystemMessage is the small closed set of control messages the dispatcher
// always gives priority over user messages.
type SystemMessage interface{ isSystemMessage() }

type (
	// Watch requests Terminated notification for a pid.
	Watch struct{ Watcher pathreg.Pid }
	// Unwatch cancels a previous Watch.
	Unwatch struct{ Watcher pathreg.Pid }
	// Terminated notifies a watcher that its watched pid has stopped.
	Terminated struct{ Who pathreg.Pid }
	// Failure is forwarded to a parent when a child reports an error.
	Failure struct{ Payload FailurePayload }
	// Recreate instructs an actor to restart in place.
	Recreate struct{ Reason string }
	// Stop instructs an actor to terminate.
	Stop struct{ Reason string }
	// PipeTask delivers the result of an async operation back into the mailbox.
	PipeTask struct{ Result any }
)

func (Watch) isSystemMessage()      {}
func (Unwatch) isSystemMessage()    {}
func (Terminated) isSystemMessage() {}
func (Failure) isSystemMessage()    {}
func (Recreate) isSystemMessage()   {}
func (Stop) isSystemMessage()       {}
func (PipeTask) isSystemMessage()   {}

// FailurePayload accompanies a Failure system message sent to a parent.
type FailurePayload struct {
	Child        pathreg.Pid
	Reason       string
	Err          error
	RestartStats *RestartStatistics
}

func (p FailurePayload) WithRestartStats(stats *RestartStatistics) FailurePayload {
	p.RestartStats = stats
	return p
}

// ActorErrorKind distinguishes fatal from recoverable actor-level errors.
type ActorErrorKind int

const (
	ActorErrorFatal ActorErrorKind = iota
	ActorErrorRecoverable
)

// ActorError is the error kind an actor's receive loop may return to signal
// failure to the dispatcher.
type ActorError struct {
	Kind    ActorErrorKind
	Message string
}

func (e *ActorError) Error() string { return e.Message }

func NewFatalError(message string) *ActorError {
	return &ActorError{Kind: ActorErrorFatal, Message: message}
}

func NewRecoverableError(message string) *ActorError {
	return &ActorError{Kind: ActorErrorRecoverable, Message: message}
}
