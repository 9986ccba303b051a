package remoting

import (
	"sync"
	"time"
)

// AssociationState is the per-authority lifecycle the endpoint bridge
// drives, distinct from pathreg.AuthorityManager's state (that one gates
// path resolution; this one gates frame delivery).
type AssociationState int

const (
	Unassociated AssociationState = iota
	Associating
	Connected
	Quarantined
)

// EffectKind tags which field of Effect is populated.
type EffectKind int

const (
	EffectStartHandshake EffectKind = iota
	EffectDeliverEnvelopes
	EffectDiscardDeferred
	EffectLifecycle
)

type LifecycleKind int

const (
	LifecycleConnected LifecycleKind = iota
	LifecycleDisconnected
	LifecycleHandshakeTimedOut
)

// Effect is one action the coordinator asks its caller to perform, in the
// order returned by a command.
type Effect struct {
	Kind      EffectKind
	Authority string
	Endpoint  any
	Envelopes []any
	Count     int
	Lifecycle LifecycleKind
}

type associationRecord struct {
	state            AssociationState
	handshakeVersion uint64
	deferred         []any
	quarantineUntil  time.Duration
}

// Coordinator holds per-authority association state and turns commands
// into ordered effect lists; it performs no I/O itself.
type Coordinator struct {
	mu               sync.Mutex
	records          map[string]*associationRecord
	clock            func() time.Duration
	handshakeTimeout time.Duration
	quarantineFor    time.Duration
}

func NewCoordinator(clock func() time.Duration, handshakeTimeout, quarantineFor time.Duration) *Coordinator {
	return &Coordinator{
		records:          make(map[string]*associationRecord),
		clock:            clock,
		handshakeTimeout: handshakeTimeout,
		quarantineFor:    quarantineFor,
	}
}

func (c *Coordinator) recordFor(authority string) *associationRecord {
	if r, ok := c.records[authority]; ok {
		return r
	}
	r := &associationRecord{state: Unassociated}
	c.records[authority] = r
	return r
}

func (c *Coordinator) State(authority string) AssociationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordFor(authority).state
}

// Associate starts a handshake if the authority is not already
// associating/connected, arming a versioned watchdog.
func (c *Coordinator) Associate(authority string, endpoint any) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.recordFor(authority)
	if r.state == Associating || r.state == Connected {
		return nil
	}
	r.state = Associating
	r.handshakeVersion++
	return []Effect{{Kind: EffectStartHandshake, Authority: authority, Endpoint: endpoint}}
}

// Recover re-associates a quarantined or unassociated authority.
func (c *Coordinator) Recover(authority string, endpoint any) []Effect {
	return c.Associate(authority, endpoint)
}

// EnqueueDeferred buffers envelope if the authority is neither connected nor
// quarantined, hands back a one-element DeliverEnvelopes effect if already
// connected, and a DiscardDeferred effect (Count 1) if quarantined.
func (c *Coordinator) EnqueueDeferred(authority string, envelope any) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.recordFor(authority)
	if r.state == Connected {
		return []Effect{{Kind: EffectDeliverEnvelopes, Authority: authority, Envelopes: []any{envelope}}}
	}
	if r.state == Quarantined {
		return []Effect{{Kind: EffectDiscardDeferred, Authority: authority, Count: 1}}
	}
	r.deferred = append(r.deferred, envelope)
	return nil
}

// HandshakeAccepted transitions Associating -> Connected and flushes any
// envelopes that were deferred while associating.
func (c *Coordinator) HandshakeAccepted(authority string) []Effect {
	c.mu.Lock()
	r := c.recordFor(authority)
	r.state = Connected
	drained := r.deferred
	r.deferred = nil
	c.mu.Unlock()

	effects := []Effect{{Kind: EffectLifecycle, Authority: authority, Lifecycle: LifecycleConnected}}
	if len(drained) > 0 {
		effects = append(effects, Effect{Kind: EffectDeliverEnvelopes, Authority: authority, Envelopes: drained})
	}
	return effects
}

// HandshakeTimedOut applies only if version still matches the watchdog
// that was armed for the current handshake attempt; a stale timer firing
// after a retry already started is a no-op.
func (c *Coordinator) HandshakeTimedOut(authority string, version uint64) []Effect {
	c.mu.Lock()
	r := c.recordFor(authority)
	if r.state != Associating || r.handshakeVersion != version {
		c.mu.Unlock()
		return nil
	}
	r.quarantineUntil = c.clock() + c.quarantineFor
	r.state = Quarantined
	discarded := len(r.deferred)
	r.deferred = nil
	c.mu.Unlock()

	effects := []Effect{{Kind: EffectLifecycle, Authority: authority, Lifecycle: LifecycleHandshakeTimedOut}}
	if discarded > 0 {
		effects = append(effects, Effect{Kind: EffectDiscardDeferred, Authority: authority, Count: discarded})
	}
	return effects
}

// InvalidAssociation quarantines authority immediately, regardless of its
// current state.
func (c *Coordinator) InvalidAssociation(authority string) []Effect {
	c.mu.Lock()
	r := c.recordFor(authority)
	r.quarantineUntil = c.clock() + c.quarantineFor
	r.state = Quarantined
	c.mu.Unlock()
	return []Effect{{Kind: EffectLifecycle, Authority: authority, Lifecycle: LifecycleDisconnected}}
}

// PollExpired lifts any authority whose quarantine has elapsed back to
// Unassociated.
func (c *Coordinator) PollExpired(now time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var lifted []string
	for authority, r := range c.records {
		if r.state == Quarantined && r.quarantineUntil <= now {
			r.state = Unassociated
			lifted = append(lifted, authority)
		}
	}
	return lifted
}

func (c *Coordinator) HandshakeVersion(authority string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordFor(authority).handshakeVersion
}
