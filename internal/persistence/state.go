// Package persistence implements the persistent-actor state machine: event
// batching against a journal, snapshot-based recovery, and the stash
// gating that keeps commands queued while a write is in flight.
package persistence

import "fmt"

// Phase is one of the five states a persistent actor context moves
// through. Transitions are methods on Phase itself so an invalid jump
// (e.g. ProcessingCommands -> Recovering) returns a typed
// *StateMachineError at run time rather than being a silent no-op.
type Phase int

const (
	WaitingRecoveryPermit Phase = iota
	RecoveryStarted
	Recovering
	ProcessingCommands
	PersistingEvents
)

func (p Phase) String() string {
	switch p {
	case WaitingRecoveryPermit:
		return "WaitingRecoveryPermit"
	case RecoveryStarted:
		return "RecoveryStarted"
	case Recovering:
		return "Recovering"
	case ProcessingCommands:
		return "ProcessingCommands"
	case PersistingEvents:
		return "PersistingEvents"
	default:
		return "Unknown"
	}
}

// StateMachineError is returned for every rejected transition or
// double-bind.
type StateMachineError struct {
	From Phase
	To   Phase
}

func (e *StateMachineError) Error() string {
	return fmt.Sprintf("persistence: invalid transition %s -> %s", e.From, e.To)
}

func (p Phase) transitionTo(target Phase, allowed ...Phase) (Phase, error) {
	for _, a := range allowed {
		if p == a {
			return target, nil
		}
	}
	return p, &StateMachineError{From: p, To: target}
}

func (p Phase) ToRecoveryStarted() (Phase, error) {
	return p.transitionTo(RecoveryStarted, WaitingRecoveryPermit)
}

func (p Phase) ToRecovering() (Phase, error) {
	return p.transitionTo(Recovering, RecoveryStarted)
}

func (p Phase) ToProcessingCommands() (Phase, error) {
	return p.transitionTo(ProcessingCommands, Recovering, ProcessingCommands, PersistingEvents)
}

func (p Phase) ToPersistingEvents() (Phase, error) {
	return p.transitionTo(PersistingEvents, ProcessingCommands)
}
