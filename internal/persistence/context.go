package persistence

import (
	"errors"
	"fmt"
	"time"
)

// PendingHandlerInvocation is a queued callback that runs after the
// journal confirms the write (or immediately, for a deferred handler
// enqueued while the batch was empty).
type PendingHandlerInvocation struct {
	SequenceNr uint64
	Event      any
	Handler    func(any)
	Stashing   bool
	Deferred   bool
}

type batchKind int

const (
	batchPersistent batchKind = iota
	batchDeferred
)

type batchEntry struct {
	kind       batchKind
	sequenceNr uint64
	event      any
	stashing   bool
	sender     *string
	handler    func(any)
}

// PersistenceContext drives one persistent actor's journal interaction: it
// owns the pending-invocation queue and the in-flight event batch, and
// exclusively decides when commands must be stashed.
type PersistenceContext struct {
	PersistenceID string
	InstanceID    uint64
	WriterUUID    string

	phase             Phase
	currentSequenceNr uint64
	lastSequenceNr    uint64

	batch   []batchEntry
	pending []PendingHandlerInvocation

	stashUntilBatchCompletion bool

	journal  Journal
	snapshot SnapshotStore
	bound    bool

	clock func() time.Duration
}

func NewPersistenceContext(persistenceID string, instanceID uint64, clock func() time.Duration) *PersistenceContext {
	return &PersistenceContext{
		PersistenceID: persistenceID,
		InstanceID:    instanceID,
		phase:         WaitingRecoveryPermit,
		clock:         clock,
	}
}

func (c *PersistenceContext) Phase() Phase { return c.phase }

// BindActorRefs must be called exactly once, with non-nil journal and
// snapshot references; subsequent calls fail with StateMachineError.
func (c *PersistenceContext) BindActorRefs(journal Journal, snapshot SnapshotStore) error {
	if c.bound {
		return &StateMachineError{From: c.phase, To: c.phase}
	}
	if journal == nil || snapshot == nil {
		return errors.New("persistence: BindActorRefs requires non-nil journal and snapshot")
	}
	c.journal = journal
	c.snapshot = snapshot
	c.bound = true
	return nil
}

func (c *PersistenceContext) IsBound() bool { return c.bound }
func (c *PersistenceContext) IsReady() bool { return c.bound && c.phase == ProcessingCommands }

// StartRecovery begins replay, requesting the latest snapshot first.
// deliver receives every resulting journal/snapshot response; the caller
// is expected to route each one back into HandleJournalResponse /
// HandleSnapshotResponse (typically via its own mailbox, as a PipeTask).
func (c *PersistenceContext) StartRecovery(deliver func(any)) error {
	phase, err := c.phase.ToRecoveryStarted()
	if err != nil {
		return err
	}
	c.phase = phase
	c.snapshot.LoadSnapshot(LoadSnapshot{PersistenceID: c.PersistenceID, InstanceID: c.InstanceID}, deliver)
	return nil
}

// AddToEventBatch assigns the next sequence number to event and appends a
// persistent batch entry, returning the assigned sequence number.
func (c *PersistenceContext) AddToEventBatch(event any, stashing bool, sender *string, handler func(any)) uint64 {
	seq := c.currentSequenceNr + 1
	c.currentSequenceNr = seq
	c.batch = append(c.batch, batchEntry{
		kind: batchPersistent, sequenceNr: seq, event: event, stashing: stashing, sender: sender, handler: handler,
	})
	return seq
}

// AddDeferredHandler enqueues handler to run without a journal write. If
// the batch is currently empty it runs in program order immediately
// (queued directly as a pending invocation); otherwise it is appended as
// a batch entry so it fires only after the preceding persisted writes
// have been confirmed.
func (c *PersistenceContext) AddDeferredHandler(event any, stashing bool, handler func(any)) {
	if len(c.batch) == 0 {
		c.pending = append(c.pending, PendingHandlerInvocation{Event: event, Handler: handler, Stashing: stashing, Deferred: true})
		return
	}
	c.batch = append(c.batch, batchEntry{kind: batchDeferred, event: event, stashing: stashing, handler: handler})
}

// ShouldStashCommands reports whether incoming commands must be queued
// rather than processed immediately.
func (c *PersistenceContext) ShouldStashCommands() bool {
	if c.phase != PersistingEvents {
		return false
	}
	if c.stashUntilBatchCompletion {
		return true
	}
	if len(c.pending) > 0 && c.pending[0].Stashing {
		return true
	}
	for _, inv := range c.pending {
		if inv.Deferred && inv.Stashing {
			return true
		}
	}
	return false
}

// FlushBatch drains the current batch to the journal. It is a no-op if
// the batch is empty or the context isn't ready for writes. deliver
// receives every response the journal produces for this write, to be
// routed back into HandleJournalResponse.
func (c *PersistenceContext) FlushBatch(sender *string, deliver func(any)) error {
	if len(c.batch) == 0 || !c.IsReady() {
		return nil
	}

	phase, err := c.phase.ToPersistingEvents()
	if err != nil {
		return err
	}
	c.phase = phase

	var reprs []PersistentRepr
	anyStashing := false
	for _, entry := range c.batch {
		switch entry.kind {
		case batchPersistent:
			repr := PersistentRepr{
				PersistenceID: c.PersistenceID,
				SequenceNr:    entry.sequenceNr,
				Payload:       entry.event,
				WriterUUID:    &c.WriterUUID,
				Timestamp:     c.clock(),
			}
			reprs = append(reprs, repr)
			c.pending = append(c.pending, PendingHandlerInvocation{
				SequenceNr: entry.sequenceNr, Event: entry.event, Handler: entry.handler, Stashing: entry.stashing,
			})
			if entry.stashing {
				anyStashing = true
			}
		case batchDeferred:
			c.pending = append(c.pending, PendingHandlerInvocation{
				Event: entry.event, Handler: entry.handler, Stashing: entry.stashing, Deferred: true,
			})
			if entry.stashing {
				anyStashing = true
			}
		}
	}
	c.stashUntilBatchCompletion = anyStashing
	toSeq := c.currentSequenceNr
	c.batch = nil

	req := WriteMessages{
		PersistenceID: c.PersistenceID,
		ToSequenceNr:  toSeq,
		Messages:      reprs,
		Sender:        sender,
		InstanceID:    c.InstanceID,
	}

	sendOK := c.journal != nil
	if sendOK {
		c.journal.WriteMessages(req, deliver)
	}
	if !sendOK {
		c.pending = nil
		c.stashUntilBatchCompletion = false
		c.phase, _ = c.phase.ToProcessingCommands()
		return fmt.Errorf("persistence: MessagePassing failure writing %s", c.PersistenceID)
	}
	return nil
}

// popLeadingDeferred removes and returns every deferred invocation at the
// front of the pending queue, stopping at the first non-deferred entry.
func (c *PersistenceContext) popLeadingDeferred() []PendingHandlerInvocation {
	var out []PendingHandlerInvocation
	for len(c.pending) > 0 && c.pending[0].Deferred {
		out = append(out, c.pending[0])
		c.pending = c.pending[1:]
	}
	return out
}

func (c *PersistenceContext) maybeReturnToProcessing() {
	if len(c.pending) == 0 && !c.stashUntilBatchCompletion {
		c.phase, _ = c.phase.ToProcessingCommands()
	}
}

// HandleJournalResponse applies one journal response and returns the
// handler invocations that are now ready to run, in order. Responses
// whose InstanceID does not match this context's are ignored outright
// (the actor has since restarted).
func (c *PersistenceContext) HandleJournalResponse(resp any) ([]PendingHandlerInvocation, error) {
	switch r := resp.(type) {
	case WriteMessageSuccess:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.lastSequenceNr = r.Repr.SequenceNr
		var invocations []PendingHandlerInvocation
		if len(c.pending) > 0 && !c.pending[0].Deferred && c.pending[0].SequenceNr == r.Repr.SequenceNr {
			invocations = append(invocations, c.pending[0])
			c.pending = c.pending[1:]
		}
		invocations = append(invocations, c.popLeadingDeferred()...)
		c.maybeReturnToProcessing()
		return invocations, nil

	case WriteMessageFailure:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.removePending(r.Repr.SequenceNr)
		return nil, fmt.Errorf("persistence: PersistFailure for seq %d: %w", r.Repr.SequenceNr, r.Cause)

	case WriteMessageRejected:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.removePending(r.Repr.SequenceNr)
		c.maybeReturnToProcessing()
		return nil, fmt.Errorf("persistence: write rejected for seq %d: %w", r.Repr.SequenceNr, r.Cause)

	case WriteMessagesSuccessful:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.stashUntilBatchCompletion = false
		invocations := c.popLeadingDeferred()
		c.maybeReturnToProcessing()
		return invocations, nil

	case WriteMessagesFailed:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		if r.WriteCount > 0 {
			return nil, nil
		}
		c.pending = nil
		c.stashUntilBatchCompletion = false
		c.phase, _ = c.phase.ToProcessingCommands()
		return nil, fmt.Errorf("persistence: WriteMessagesFailed for %s", c.PersistenceID)

	case ReplayedMessage:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.currentSequenceNr = r.Repr.SequenceNr
		return nil, nil

	case RecoverySuccess:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.advanceToHighest(r.HighestSequenceNr)
		c.phase, _ = c.phase.ToProcessingCommands()
		return nil, nil

	case HighestSequenceNr:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		c.advanceToHighest(r.SequenceNr)
		c.phase, _ = c.phase.ToProcessingCommands()
		return nil, nil

	case ReplayMessagesFailure:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: RecoveryFailure (replay): %w", r.Cause)
	case HighestSequenceNrFailure:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: RecoveryFailure (highest seq): %w", r.Cause)
	case DeleteMessagesFailure:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: RecoveryFailure (delete): %w", r.Cause)
	}
	return nil, nil
}

func (c *PersistenceContext) advanceToHighest(n uint64) {
	if n > c.lastSequenceNr {
		c.lastSequenceNr = n
	}
	if n > c.currentSequenceNr {
		c.currentSequenceNr = n
	}
}

func (c *PersistenceContext) removePending(seq uint64) {
	out := c.pending[:0]
	for _, inv := range c.pending {
		if inv.Deferred || inv.SequenceNr != seq {
			out = append(out, inv)
		}
	}
	c.pending = out
}

// HandleSnapshotResponse is only honored while RecoveryStarted; any
// response observed outside that phase is ignored. On success, the
// sequence numbers advance to the snapshot's and replay resumes just
// after it; on failure, replay starts from the beginning. deliver
// receives the replay responses the same way FlushBatch's deliver does.
func (c *PersistenceContext) HandleSnapshotResponse(resp any, deliver func(any)) (*ReplayMessages, error) {
	if c.phase != RecoveryStarted {
		return nil, nil
	}
	switch r := resp.(type) {
	case LoadSnapshotResult:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		from := uint64(0)
		if r.Metadata != nil {
			c.lastSequenceNr = r.Metadata.SequenceNr
			c.currentSequenceNr = r.Metadata.SequenceNr
			from = r.Metadata.SequenceNr + 1
		}
		phase, err := c.phase.ToRecovering()
		if err != nil {
			return nil, err
		}
		c.phase = phase
		replay := &ReplayMessages{PersistenceID: c.PersistenceID, FromSequenceNr: from, InstanceID: c.InstanceID}
		if c.journal != nil {
			c.journal.ReplayMessages(*replay, deliver)
		}
		return replay, nil
	case LoadSnapshotFailure:
		if r.InstanceID != c.InstanceID {
			return nil, nil
		}
		phase, err := c.phase.ToRecovering()
		if err != nil {
			return nil, err
		}
		c.phase = phase
		replay := &ReplayMessages{PersistenceID: c.PersistenceID, FromSequenceNr: 0, InstanceID: c.InstanceID}
		if c.journal != nil {
			c.journal.ReplayMessages(*replay, deliver)
		}
		return replay, fmt.Errorf("persistence: SnapshotFailure: %w", r.Cause)
	}
	return nil, nil
}
