package remoting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCoordinator() (*Coordinator, *time.Duration) {
	var now time.Duration
	clock := func() time.Duration { return now }
	return NewCoordinator(clock, 50*time.Millisecond, 500*time.Millisecond), &now
}

func TestAssociateStartsHandshakeOnce(t *testing.T) {
	c, _ := newTestCoordinator()

	effects := c.Associate("peer", "endpoint-1")
	require.Len(t, effects, 1)
	require.Equal(t, EffectStartHandshake, effects[0].Kind)
	require.Equal(t, Associating, c.State("peer"))

	// A second Associate while already associating is a no-op.
	effects = c.Associate("peer", "endpoint-1")
	require.Empty(t, effects)
}

func TestEnqueueDeferredBuffersUntilConnected(t *testing.T) {
	c, _ := newTestCoordinator()
	c.Associate("peer", "endpoint-1")

	effects := c.EnqueueDeferred("peer", "env-1")
	require.Empty(t, effects)

	effects = c.HandshakeAccepted("peer")
	require.Equal(t, Connected, c.State("peer"))
	require.Len(t, effects, 2)
	require.Equal(t, EffectLifecycle, effects[0].Kind)
	require.Equal(t, LifecycleConnected, effects[0].Lifecycle)
	require.Equal(t, EffectDeliverEnvelopes, effects[1].Kind)
	require.Equal(t, []any{"env-1"}, effects[1].Envelopes)

	// Once connected, further enqueues deliver immediately.
	effects = c.EnqueueDeferred("peer", "env-2")
	require.Len(t, effects, 1)
	require.Equal(t, EffectDeliverEnvelopes, effects[0].Kind)
}

func TestEnqueueDeferredDiscardsWhenQuarantined(t *testing.T) {
	c, _ := newTestCoordinator()
	c.InvalidAssociation("peer")
	require.Equal(t, Quarantined, c.State("peer"))

	effects := c.EnqueueDeferred("peer", "env-1")
	require.Len(t, effects, 1)
	require.Equal(t, EffectDiscardDeferred, effects[0].Kind)
	require.Equal(t, 1, effects[0].Count)
}

func TestHandshakeTimeoutIgnoresStaleVersion(t *testing.T) {
	c, _ := newTestCoordinator()
	c.Associate("peer", "endpoint-1")
	staleVersion := c.HandshakeVersion("peer")

	// A retry bumps the version before the original watchdog fires.
	c.HandshakeAccepted("peer")
	c.InvalidAssociation("peer")
	c.Associate("peer", "endpoint-2")
	require.NotEqual(t, staleVersion, c.HandshakeVersion("peer"))

	effects := c.HandshakeTimedOut("peer", staleVersion)
	require.Empty(t, effects)
	require.Equal(t, Associating, c.State("peer"))
}

func TestHandshakeTimeoutQuarantinesCurrentAttempt(t *testing.T) {
	c, _ := newTestCoordinator()
	c.Associate("peer", "endpoint-1")
	c.EnqueueDeferred("peer", "env-1")
	version := c.HandshakeVersion("peer")

	effects := c.HandshakeTimedOut("peer", version)
	require.Equal(t, Quarantined, c.State("peer"))
	require.Len(t, effects, 2)
	require.Equal(t, EffectLifecycle, effects[0].Kind)
	require.Equal(t, LifecycleHandshakeTimedOut, effects[0].Lifecycle)
	require.Equal(t, EffectDiscardDeferred, effects[1].Kind)
	require.Equal(t, 1, effects[1].Count)
}

func TestQuarantineExpiresOnPoll(t *testing.T) {
	c, now := newTestCoordinator()
	c.InvalidAssociation("peer")
	require.Equal(t, Quarantined, c.State("peer"))

	*now = 100 * time.Millisecond
	lifted := c.PollExpired(*now)
	require.Empty(t, lifted)
	require.Equal(t, Quarantined, c.State("peer"))

	*now = 600 * time.Millisecond
	lifted = c.PollExpired(*now)
	require.Equal(t, []string{"peer"}, lifted)
	require.Equal(t, Unassociated, c.State("peer"))
}
