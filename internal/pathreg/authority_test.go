package pathreg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuarantineExpiration(t *testing.T) {
	m := NewAuthorityManager()

	m.SetQuarantine("peer", 1000*time.Millisecond, 500*time.Millisecond)
	require.Equal(t, Quarantined, m.State("peer"))

	lifted := m.PollExpired(1600 * time.Millisecond)
	require.Equal(t, []string{"peer"}, lifted)
	require.Equal(t, Unresolved, m.State("peer"))
}

func TestQuarantineNotYetExpired(t *testing.T) {
	m := NewAuthorityManager()
	m.SetQuarantine("peer", 1000*time.Millisecond, 500*time.Millisecond)

	lifted := m.PollExpired(1400 * time.Millisecond)
	require.Empty(t, lifted)
	require.Equal(t, Quarantined, m.State("peer"))
}

func TestDeferFailsWhenQuarantined(t *testing.T) {
	m := NewAuthorityManager()
	m.SetQuarantine("peer", 0, time.Second)

	err := m.Defer("peer", "msg")
	require.ErrorIs(t, err, ErrQuarantined)
}

func TestDeferSucceedsWhileAssociatingAndDrainsOnConnect(t *testing.T) {
	m := NewAuthorityManager()
	m.Associate("peer", 0, time.Second)

	require.NoError(t, m.Defer("peer", "a"))
	require.NoError(t, m.Defer("peer", "b"))

	drained := m.SetConnected("peer")
	require.Equal(t, []any{"a", "b"}, drained)
	require.Equal(t, Connected, m.State("peer"))
}

func TestManualOverrideAlwaysAllowed(t *testing.T) {
	m := NewAuthorityManager()
	m.SetQuarantine("peer", 0, time.Hour)
	m.ManualOverrideToConnected("peer")
	require.Equal(t, Connected, m.State("peer"))
}

func TestHandshakeTimeoutGatesThenRecovers(t *testing.T) {
	m := NewAuthorityManager()
	m.Associate("peer", 0, time.Second)
	m.HandshakeTimedOut("peer", nil)
	require.Equal(t, Gated, m.State("peer"))

	m.Recover("peer", 10*time.Millisecond, time.Second)
	require.Equal(t, Associating, m.State("peer"))
}

func TestParsePathRoundTrip(t *testing.T) {
	cases := []string{
		"fraktor://mysys/user/worker/child",
		"fraktor://mysys@10.0.0.1:2552/system/receptionist",
		"fraktor://mysys/temp/t1",
	}
	for _, s := range cases {
		p, err := ParsePath(s)
		require.NoError(t, err)
		require.Equal(t, s, p.String())
	}
}

func TestReservedTopLevelCaseInsensitive(t *testing.T) {
	require.True(t, IsReservedTopLevel("User"))
	require.True(t, IsReservedTopLevel("DEADLETTERS"))
	require.False(t, IsReservedTopLevel("worker"))
}

func TestUIDReservationFencesStaleReference(t *testing.T) {
	reg := NewRegistry()
	reg.SetPolicy(ReservationPolicy{QuarantineDuration: 500 * time.Millisecond})

	pid := Pid{Value: 1}
	path, err := ParsePath("fraktor://sys/user/worker")
	require.NoError(t, err)
	reg.Register(pid, path, 42)

	reg.Unregister(pid, 1000*time.Millisecond)
	require.True(t, reg.IsReserved(path.String(), 42, 1200*time.Millisecond))
	require.False(t, reg.IsReserved(path.String(), 42, 1600*time.Millisecond))

	reg.PollExpired(1600 * time.Millisecond)
	require.False(t, reg.IsReserved(path.String(), 42, 1600*time.Millisecond))
}
