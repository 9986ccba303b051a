package remoting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignAllocatesMonotonicPerAuthoritySequence(t *testing.T) {
	s := NewSequencer()
	require.Equal(t, uint64(1), s.Assign("peer", []byte("a")))
	require.Equal(t, uint64(2), s.Assign("peer", []byte("b")))
	require.Equal(t, uint64(1), s.Assign("other", []byte("c")))
	require.Equal(t, 2, s.PendingCount("peer"))
}

func TestObserveDeliversInOrderAndAdvances(t *testing.T) {
	s := NewSequencer()

	out := s.Observe("peer", 1)
	require.True(t, out.Deliver)
	require.Equal(t, uint64(1), out.AckSeq)

	out = s.Observe("peer", 2)
	require.True(t, out.Deliver)
	require.Equal(t, uint64(2), out.AckSeq)
}

func TestObserveDuplicateReacksLastDelivered(t *testing.T) {
	s := NewSequencer()
	s.Observe("peer", 1)

	out := s.Observe("peer", 1)
	require.False(t, out.Deliver)
	require.False(t, out.Nack)
	require.Equal(t, uint64(1), out.AckSeq)
}

func TestObserveGapNacks(t *testing.T) {
	s := NewSequencer()
	s.Observe("peer", 1)

	out := s.Observe("peer", 3)
	require.False(t, out.Deliver)
	require.True(t, out.Nack)
	require.Equal(t, uint64(1), out.AckSeq)
}

func TestOnAckDropsPendingUpToN(t *testing.T) {
	s := NewSequencer()
	s.Assign("peer", []byte("a"))
	s.Assign("peer", []byte("b"))
	s.Assign("peer", []byte("c"))

	s.OnAck("peer", 2)
	require.Equal(t, 1, s.PendingCount("peer"))
}

func TestOnNackDropsAndReturnsRemainingForResend(t *testing.T) {
	s := NewSequencer()
	s.Assign("peer", []byte("a"))
	s.Assign("peer", []byte("b"))
	s.Assign("peer", []byte("c"))

	remaining := s.OnNack("peer", 1)
	require.Len(t, remaining, 2)
	require.Equal(t, uint64(2), remaining[0].Seq)
	require.Equal(t, uint64(3), remaining[1].Seq)
	require.Equal(t, 2, s.PendingCount("peer"))
}
