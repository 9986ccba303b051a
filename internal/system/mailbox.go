package system

import "github.com/babyman/fraktor/internal/pathreg"

// Envelope wraps a user message with its sender, so a Behavior can reply
// without the caller having to thread a reply-to pid through every message
// type.
type Envelope struct {
	Sender  pathreg.Pid
	Message any
}

const defaultMailboxCapacity = 128

// Mailbox is a two-priority queue: system messages are always drained
// ahead of user messages, matching the dispatcher's "system messages take
// precedence" rule.
type Mailbox struct {
	user   chan Envelope
	system chan SystemMessage
}

func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = defaultMailboxCapacity
	}
	return &Mailbox{
		user:   make(chan Envelope, capacity),
		system: make(chan SystemMessage, capacity),
	}
}

// TryEnqueueUser attempts a non-blocking send; it reports false if the
// mailbox is full (the caller turns this into a dead letter).
func (m *Mailbox) TryEnqueueUser(env Envelope) bool {
	select {
	case m.user <- env:
		return true
	default:
		return false
	}
}

// EnqueueSystem never drops a system message silently: the system channel
// is sized identically to the user channel but is drained first, so under
// normal operation it never fills.
func (m *Mailbox) EnqueueSystem(msg SystemMessage) bool {
	select {
	case m.system <- msg:
		return true
	default:
		return false
	}
}

func (m *Mailbox) Len() int {
	return len(m.user) + len(m.system)
}
