package system

import (
	"sync"
	"time"

	"github.com/babyman/fraktor/internal/pathreg"
)

// DeadLetterReason enumerates why a message could not be delivered.
type DeadLetterReason int

const (
	ReasonNoSuchActor DeadLetterReason = iota
	ReasonMailboxFull
	ReasonSerializationError
	ReasonUnhandled
	ReasonQuarantined
)

func (r DeadLetterReason) String() string {
	switch r {
	case ReasonNoSuchActor:
		return "NoSuchActor"
	case ReasonMailboxFull:
		return "MailboxFull"
	case ReasonSerializationError:
		return "SerializationError"
	case ReasonUnhandled:
		return "Unhandled"
	case ReasonQuarantined:
		return "Quarantined"
	default:
		return "Unknown"
	}
}

// DeadLetterEntry is one record in the bounded dead-letter ring.
type DeadLetterEntry struct {
	Message   any
	Reason    DeadLetterReason
	Target    *pathreg.Pid
	Timestamp time.Duration
}

const deadLetterCapacity = 512

// DeadLetterRing is a bounded-capacity ring buffer of undeliverable
// messages. Oldest entries are overwritten once capacity is reached.
type DeadLetterRing struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	next    int
	full    bool
	stream  *EventStream
}

func NewDeadLetterRing(stream *EventStream) *DeadLetterRing {
	return &DeadLetterRing{
		entries: make([]DeadLetterEntry, deadLetterCapacity),
		stream:  stream,
	}
}

// RecordEntry appends entry to the ring, evicting the oldest entry once
// full.
func (d *DeadLetterRing) RecordEntry(message any, reason DeadLetterReason, target *pathreg.Pid, timestamp time.Duration) {
	d.mu.Lock()
	d.entries[d.next] = DeadLetterEntry{Message: message, Reason: reason, Target: target, Timestamp: timestamp}
	d.next = (d.next + 1) % deadLetterCapacity
	if d.next == 0 {
		d.full = true
	}
	d.mu.Unlock()
}

// Entries returns a snapshot of the ring contents in insertion order.
func (d *DeadLetterRing) Entries() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		out := make([]DeadLetterEntry, d.next)
		copy(out, d.entries[:d.next])
		return out
	}
	out := make([]DeadLetterEntry, deadLetterCapacity)
	copy(out, d.entries[d.next:])
	copy(out[deadLetterCapacity-d.next:], d.entries[:d.next])
	return out
}
