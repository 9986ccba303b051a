package pathreg

import (
	"sync"
	"time"
)

// uidReservation remembers that a (path, uid) pair belonged to a now-dead
// actor, so that a stale remote reference using the old uid cannot
// resurrect it. Reservations expire after the configured quarantine
// duration.
type uidReservation struct {
	uid      uint64
	expireAt time.Duration
}

type pathEntry struct {
	pid Pid
	uri string
	uid uint64 // RemoteNodeId-style uid associated with this registration
}

// Registry maintains the pid<->canonical-path mapping and the uid
// reservation list used to fence off resurrected dead actors.
//
// Policy carries the quarantine duration applied to uid reservations; it is
// installed once at system-configuration time via SetPolicy.
type Registry struct {
	mu           sync.RWMutex
	byPid        map[Pid]pathEntry
	reservations map[string][]uidReservation // keyed by canonical URI
	policy       ReservationPolicy
}

// ReservationPolicy configures how long a freed uid is fenced off.
type ReservationPolicy struct {
	QuarantineDuration time.Duration
}

func DefaultReservationPolicy() ReservationPolicy {
	return ReservationPolicy{QuarantineDuration: 5 * 24 * time.Hour}
}

func NewRegistry() *Registry {
	return &Registry{
		byPid:        make(map[Pid]pathEntry),
		reservations: make(map[string][]uidReservation),
		policy:       DefaultReservationPolicy(),
	}
}

// SetPolicy installs the reservation policy (quarantine duration) used by
// Unregister. Called once at system configuration time.
func (r *Registry) SetPolicy(policy ReservationPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = policy
}

// Register associates pid with its canonical path/uid.
func (r *Registry) Register(pid Pid, path ActorPath, uid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPid[pid] = pathEntry{pid: pid, uri: path.String(), uid: uid}
}

// Get returns the registered path/uid for pid, if any.
func (r *Registry) Get(pid Pid) (uri string, uid uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.byPid[pid]
	if !found {
		return "", 0, false
	}
	return e.uri, e.uid, true
}

// Unregister removes pid from the registry and reserves its uid under the
// canonical path for the configured quarantine duration, so stale incoming
// references using the freed uid cannot resurrect the dead actor.
func (r *Registry) Unregister(pid Pid, now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byPid[pid]
	delete(r.byPid, pid)
	if !ok {
		return
	}
	r.reservations[e.uri] = append(r.reservations[e.uri], uidReservation{
		uid:      e.uid,
		expireAt: now + r.policy.QuarantineDuration,
	})
}

// IsReserved reports whether uid is still fenced off for the given
// canonical path (i.e. still within its quarantine window as of now).
func (r *Registry) IsReserved(uri string, uid uint64, now time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.reservations[uri] {
		if res.uid == uid && res.expireAt > now {
			return true
		}
	}
	return false
}

// ReserveUID reserves a uid directly (used when the system re-derives the
// canonical path for a pid just before removal).
func (r *Registry) ReserveUID(uri string, uid uint64, now time.Duration, duration *time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.policy.QuarantineDuration
	if duration != nil {
		d = *duration
	}
	r.reservations[uri] = append(r.reservations[uri], uidReservation{uid: uid, expireAt: now + d})
}

// PollExpired drops reservations whose expiry has passed. Called alongside
// AuthorityManager.PollExpired to bound memory growth.
func (r *Registry) PollExpired(now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uri, reservations := range r.reservations {
		kept := reservations[:0]
		for _, res := range reservations {
			if res.expireAt > now {
				kept = append(kept, res)
			}
		}
		if len(kept) == 0 {
			delete(r.reservations, uri)
		} else {
			r.reservations[uri] = kept
		}
	}
}
