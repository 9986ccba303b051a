// Package streams implements the reactive-stream graph interpreter: a
// single-threaded, cooperative `drive()` loop over a plan of Source, Flow,
// and Sink stages connected by typed edges. Concurrency across streams
// comes from materializing multiple interpreter instances, one per
// goroutine; a single interpreter never suspends mid-round.
package streams

import (
	"fmt"
	"reflect"
)

// StreamErrorKind tags the surface-level error taxonomy.
type StreamErrorKind int

const (
	ErrWouldBlock StreamErrorKind = iota
	ErrTypeMismatch
	ErrStageFailure
	ErrSourceFailure
)

type StreamError struct {
	Kind  StreamErrorKind
	Stage string
	Cause error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("streams: %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("streams: %s: %v", e.Stage, e.Kind)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// SourceLogic produces values. Pull returns (value, true, nil) when a
// value is ready, (nil, false, nil) when the source is exhausted, and a
// *StreamError with Kind == ErrWouldBlock when no value is ready yet but
// the source is not done.
type SourceLogic interface {
	Pull() (value any, ok bool, err error)
	OutputType() reflect.Type
	Cancel()
}

// SinkDecision is returned by SinkLogic.OnPush.
type SinkDecision int

const (
	SinkContinue SinkDecision = iota
	SinkComplete
)

type SinkLogic interface {
	OnStart(demand *Demand)
	OnPush(value any, demand *Demand) SinkDecision
	OnComplete()
	OnError(err error)
	InputType() reflect.Type
}

// FlowLogic transforms values. Stages that need to distinguish which
// upstream edge a value arrived on (Zip, Concat, Merge) implement
// ApplyWithEdge; single-input flows can ignore edgeIndex.
type FlowLogic interface {
	Apply(value any) []any
	InputType() reflect.Type
	OutputType() reflect.Type
}

// EdgeAwareFlowLogic is implemented by fan-in stages.
type EdgeAwareFlowLogic interface {
	FlowLogic
	ApplyWithEdge(edgeIndex int, value any) []any
	ExpectedFanIn() int
}

// FanOutFlowLogic is implemented by stages (e.g. Broadcast) whose output
// count depends on the plan's declared fan-out rather than being always 1.
type FanOutFlowLogic interface {
	FlowLogic
	ExpectedFanOut() int
}

// Optional extension points a FlowLogic may additionally implement.
type CanAcceptInput interface {
	CanAcceptInput() bool
}

type DrainsPending interface {
	DrainPending() []any
}

type NotifiesSourceDone interface {
	OnSourceDone()
}

// EdgeSourceDoneNotifier is implemented by fan-in stages (e.g. Concat) that
// need to know when one specific input port's upstream source is exhausted,
// as distinct from NotifiesSourceDone's all-inputs Cancel() notification.
type EdgeSourceDoneNotifier interface {
	OnEdgeSourceDone(edgeIndex int)
}

type Tickable interface {
	OnTick(n uint64)
}

type RequestsShutdown interface {
	TakeShutdownRequest() bool
}

type HasPendingOutput interface {
	HasPendingOutput() bool
}

// Restartable is implemented by any stage logic that wants to observe
// restarts distinctly from construction.
type Restartable interface {
	OnRestart()
}
