package persistence

import "time"

// PersistentRepr is the journal-visible form of one event.
type PersistentRepr struct {
	PersistenceID string
	SequenceNr    uint64
	Payload       any
	Manifest      *string
	WriterUUID    *string
	Timestamp     time.Duration
	Deleted       bool
	Sender        *string
	AdapterKey    *string
}

// WriteMessages is sent to the journal to persist a batch of reprs.
type WriteMessages struct {
	PersistenceID string
	ToSequenceNr  uint64
	Messages      []PersistentRepr
	Sender        *string
	InstanceID    uint64
}

// ReplayMessages requests replay starting at FromSequenceNr.
type ReplayMessages struct {
	PersistenceID  string
	FromSequenceNr uint64
	ToSequenceNr   uint64
	Max            uint64
	InstanceID     uint64
}

// Journal responses. Every response carries the InstanceID set at the
// originating context's construction time; a context must ignore any
// response whose InstanceID does not match its own (the actor has since
// been restarted).
type (
	WriteMessageSuccess struct {
		Repr       PersistentRepr
		InstanceID uint64
	}
	WriteMessageFailure struct {
		Repr       PersistentRepr
		Cause      error
		InstanceID uint64
	}
	WriteMessageRejected struct {
		Repr       PersistentRepr
		Cause      error
		InstanceID uint64
	}
	WriteMessagesSuccessful struct {
		InstanceID uint64
	}
	WriteMessagesFailed struct {
		WriteCount int
		InstanceID uint64
	}
	ReplayedMessage struct {
		Repr       PersistentRepr
		InstanceID uint64
	}
	RecoverySuccess struct {
		HighestSequenceNr uint64
		InstanceID        uint64
	}
	HighestSequenceNr struct {
		SequenceNr uint64
		InstanceID uint64
	}
	ReplayMessagesFailure struct {
		Cause      error
		InstanceID uint64
	}
	HighestSequenceNrFailure struct {
		Cause      error
		InstanceID uint64
	}
	DeleteMessagesFailure struct {
		Cause      error
		InstanceID uint64
	}
)

// Journal is the abstract durable event store a PersistenceContext writes
// to and replays from. Responses are delivered asynchronously via respond.
type Journal interface {
	WriteMessages(req WriteMessages, respond func(any))
	ReplayMessages(req ReplayMessages, respond func(any))
	HighestSequenceNr(persistenceID string, instanceID uint64, respond func(any))
}
