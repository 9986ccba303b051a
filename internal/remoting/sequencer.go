package remoting

import "sync"

// PendingSystemEnvelope is a system message awaiting peer acknowledgment.
type PendingSystemEnvelope struct {
	Seq     uint64
	Payload []byte
}

// Sequencer implements the reliable system-message protocol: the sender
// assigns monotonically increasing per-authority sequence numbers
// starting at 1; the receiver tracks next_expected per authority and
// replies Ack/Nack; Nack triggers a resend of every envelope still
// pending for that authority.
type Sequencer struct {
	mu            sync.Mutex
	nextSeq       map[string]uint64
	nextExpected  map[string]uint64
	pending       map[string][]PendingSystemEnvelope
}

func NewSequencer() *Sequencer {
	return &Sequencer{
		nextSeq:      make(map[string]uint64),
		nextExpected: make(map[string]uint64),
		pending:      make(map[string][]PendingSystemEnvelope),
	}
}

// Assign allocates the next outbound sequence number for authority and
// records the envelope as pending an ack.
func (s *Sequencer) Assign(authority string, payload []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq[authority]++
	seq := s.nextSeq[authority]
	s.pending[authority] = append(s.pending[authority], PendingSystemEnvelope{Seq: seq, Payload: payload})
	return seq
}

// InboundOutcome tells the caller what to reply with (and whether to
// deliver the payload) for an inbound system envelope with sequence seq.
type InboundOutcome struct {
	Deliver bool
	AckSeq  uint64
	Nack    bool
}

// Observe applies the receiver side of the protocol for an inbound
// envelope with sequence seq on authority.
func (s *Sequencer) Observe(authority string, seq uint64) InboundOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := s.nextExpected[authority]
	if expected == 0 {
		expected = 1
	}

	switch {
	case seq == expected:
		s.nextExpected[authority] = expected + 1
		return InboundOutcome{Deliver: true, AckSeq: seq}
	case seq < expected:
		return InboundOutcome{Deliver: false, AckSeq: expected - 1}
	default:
		return InboundOutcome{Deliver: false, Nack: true, AckSeq: expected - 1}
	}
}

// OnAck drops every pending envelope with seq <= n.
func (s *Sequencer) OnAck(authority string, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropUpTo(authority, n)
}

// OnNack drops every pending envelope with seq <= n and returns the
// envelopes still pending afterward, in seq order, to be resent.
func (s *Sequencer) OnNack(authority string, n uint64) []PendingSystemEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropUpTo(authority, n)
	out := make([]PendingSystemEnvelope, len(s.pending[authority]))
	copy(out, s.pending[authority])
	return out
}

func (s *Sequencer) dropUpTo(authority string, n uint64) {
	kept := s.pending[authority][:0]
	for _, env := range s.pending[authority] {
		if env.Seq > n {
			kept = append(kept, env)
		}
	}
	s.pending[authority] = kept
}

func (s *Sequencer) PendingCount(authority string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[authority])
}
