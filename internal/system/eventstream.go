package system

import (
	"log/slog"
	"sync"
	"time"

	"github.com/babyman/fraktor/internal/pathreg"
)

// LogEntry is the Log variant of an Event: a record's level, message,
// timestamp and origin pid. The record's slog attributes and groups are
// not carried.
type LogEntry struct {
	Level     slog.Level
	Message   string
	Timestamp time.Duration
	OriginPid pathreg.Pid
}

// SerializationErrorPayload describes one serialize/deserialize failure
// observed by the codec registry, published so operators can diagnose a
// bad manifest route or missing serializer without a crash.
type SerializationErrorPayload struct {
	TypeName      string
	SerializerID  *int64
	Manifest      *string
	Scope         *string
	Pid           *pathreg.Pid
	TransportHint *string
}

// RemoteAuthorityEvent is published whenever an authority's state changes.
type RemoteAuthorityEvent struct {
	Authority string
	State     pathreg.AuthorityState
}

// RemotingLifecycleKind enumerates the endpoint bridge lifecycle events.
type RemotingLifecycleKind int

const (
	RemotingConnected RemotingLifecycleKind = iota
	RemotingDisconnected
	RemotingHandshakeTimedOut
)

type RemotingLifecycleEvent struct {
	Kind      RemotingLifecycleKind
	Authority string
}

// Event is the tagged union published on the event stream. Exactly one
// field is non-nil/non-zero per the Kind.
type Event struct {
	Kind              EventKind
	SerializationErr  *SerializationErrorPayload
	RemoteAuthority   *RemoteAuthorityEvent
	RemotingLifecycle *RemotingLifecycleEvent
	Log               *LogEntry
}

type EventKind int

const (
	EventSerializationError EventKind = iota
	EventRemoteAuthority
	EventRemotingLifecycle
	EventLog
)

// Subscriber receives every published event. Subscriptions are handles
// (an id to unsubscribe by), never owned references back into the
// publisher — this keeps the event stream from creating an ownership
// cycle with whatever holds a subscription.
type Subscriber func(Event)

// EventStream is an opaque subscriber-fanout hub: logging, metrics, and
// any other observability surface attach here instead of the core holding
// direct references to them.
type EventStream struct {
	mu        sync.RWMutex
	nextID    uint64
	observers map[uint64]Subscriber
}

func NewEventStream() *EventStream {
	return &EventStream{observers: make(map[uint64]Subscriber)}
}

// Subscribe registers fn and returns a handle that Unsubscribe accepts.
func (s *EventStream) Subscribe(fn Subscriber) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	return id
}

func (s *EventStream) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}

// Publish fans the event out synchronously to every subscriber present at
// call time; the order in which subscribers are called is not defined.
func (s *EventStream) Publish(evt Event) {
	s.mu.RLock()
	subs := make([]Subscriber, 0, len(s.observers))
	for _, fn := range s.observers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(evt)
	}
}

// SlogHandler installs an slog.Handler that republishes every record as a
// Log event, so application slog output and system-internal log events
// interleave on the same stream.
func (s *EventStream) SlogHandler(origin pathreg.Pid, clock *Clock) slog.Handler {
	return &eventStreamSlogHandler{stream: s, origin: origin, clock: clock}
}
