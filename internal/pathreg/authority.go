package pathreg

import (
	"errors"
	"sync"
	"time"
)

// AuthorityState is the state of a remote authority as tracked by the
// path/authority registry. It is distinct from the endpoint bridge's own
// per-authority association FSM in internal/remoting, which drives frame
// delivery rather than path resolution.
type AuthorityState int

const (
	Unresolved AuthorityState = iota
	Associating
	Connected
	Gated
	Quarantined
)

func (s AuthorityState) String() string {
	switch s {
	case Unresolved:
		return "Unresolved"
	case Associating:
		return "Associating"
	case Connected:
		return "Connected"
	case Gated:
		return "Gated"
	case Quarantined:
		return "Quarantined"
	default:
		return "Unresolved"
	}
}

// ErrQuarantined is returned by Defer when the target authority is
// currently quarantined.
var ErrQuarantined = errors.New("pathreg: authority is quarantined")

type authorityRecord struct {
	state        AuthorityState
	deadline     time.Duration // Associating: handshake deadline
	since        time.Duration // Connected: since
	resumeAt     *time.Duration
	quarantineTo time.Duration // Quarantined: until
}

// AuthorityManager implements the authority lifecycle state machine:
//
//	Unresolved --associate--> Associating --handshake_ok--> Connected
//	Associating --handshake_timeout--> Gated{resume_at?}
//	Connected --invalid_association--> Quarantined
//	Quarantined --poll_expired--> Unresolved
//	Quarantined --manual_override--> Connected
//	Gated --recover--> Associating
//
// It is safe for concurrent use: lookups happen on every send attempt to a
// remote authority and must be cheap.
type AuthorityManager struct {
	mu       sync.RWMutex
	records  map[string]*authorityRecord
	deferred map[string][]any
}

func NewAuthorityManager() *AuthorityManager {
	return &AuthorityManager{
		records:  make(map[string]*authorityRecord),
		deferred: make(map[string][]any),
	}
}

func (m *AuthorityManager) recordFor(authority string) *authorityRecord {
	if r, ok := m.records[authority]; ok {
		return r
	}
	r := &authorityRecord{state: Unresolved}
	m.records[authority] = r
	return r
}

// State returns the current state of the authority (Unresolved if unknown).
func (m *AuthorityManager) State(authority string) AuthorityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.records[authority]; ok {
		return r.state
	}
	return Unresolved
}

// Associate transitions Unresolved -> Associating with a handshake deadline.
func (m *AuthorityManager) Associate(authority string, now, handshakeTimeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	if r.state == Unresolved || r.state == Gated {
		r.state = Associating
		r.deadline = now + handshakeTimeout
	}
}

// SetConnected marks authority Connected from whatever state it is in,
// returning any messages buffered for it (the drained deferred queue).
func (m *AuthorityManager) SetConnected(authority string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	r.state = Connected
	drained := m.deferred[authority]
	delete(m.deferred, authority)
	return drained
}

// HandshakeTimedOut transitions Associating -> Gated.
func (m *AuthorityManager) HandshakeTimedOut(authority string, resumeAt *time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	if r.state == Associating {
		r.state = Gated
		r.resumeAt = resumeAt
	}
}

// Recover transitions Gated -> Associating, e.g. when a retry is triggered.
func (m *AuthorityManager) Recover(authority string, now, handshakeTimeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	if r.state == Gated {
		r.state = Associating
		r.deadline = now + handshakeTimeout
	}
}

// SetQuarantine transitions to Quarantined{until = now + duration}.
func (m *AuthorityManager) SetQuarantine(authority string, now, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	r.state = Quarantined
	r.quarantineTo = now + duration
}

// HandleInvalidAssociation is the "invalid_association" transition:
// Connected -> Quarantined (also reachable from any other state, since a
// stale/invalid peer association can be discovered at any point).
func (m *AuthorityManager) HandleInvalidAssociation(authority string, now, duration time.Duration) {
	m.SetQuarantine(authority, now, duration)
}

// ManualOverrideToConnected is the operator escape hatch: always allowed.
func (m *AuthorityManager) ManualOverrideToConnected(authority string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	r.state = Connected
}

// Defer buffers message for later delivery. Succeeds in Unresolved,
// Associating, Connected; fails with ErrQuarantined otherwise (including
// while Gated).
func (m *AuthorityManager) Defer(authority string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordFor(authority)
	switch r.state {
	case Unresolved, Associating, Connected:
		m.deferred[authority] = append(m.deferred[authority], message)
		return nil
	default:
		return ErrQuarantined
	}
}

// PollExpired advances time: any authority whose quarantine deadline has
// passed transitions back to Unresolved. Returns the authorities whose
// state changed, for the caller to publish events for.
func (m *AuthorityManager) PollExpired(now time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lifted []string
	for authority, r := range m.records {
		if r.state == Quarantined && r.quarantineTo <= now {
			r.state = Unresolved
			lifted = append(lifted, authority)
		}
	}
	return lifted
}

// Snapshots returns every known authority and its current state, for
// diagnostics.
func (m *AuthorityManager) Snapshots() map[string]AuthorityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]AuthorityState, len(m.records))
	for k, r := range m.records {
		out[k] = r.state
	}
	return out
}
