package system

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babyman/fraktor/internal/pathreg"
)

// Config carries the handful of system-wide settings that must be known
// at construction time.
type Config struct {
	SystemName         string
	Authority          pathreg.Authority
	MailboxCapacity    int
	QuarantineDuration time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		SystemName:      name,
		MailboxCapacity: defaultMailboxCapacity,
	}
}

// SystemState is the root of one actor system: pid allocation, the cell
// registry, the three guardians, the path registry, the authority
// manager, the dead-letter ring, and the event stream all live here so
// that every other component (serialization, persistence, remoting,
// streams) can be built as a plain value holding a *SystemState rather
// than a constellation of singletons.
type SystemState struct {
	config Config

	nextPid atomic.Uint64
	clock   Clock

	mu        sync.RWMutex
	cells     map[pathreg.Pid]*ActorCell
	extraTops map[string]*ActorCell

	userGuardian   *ActorCell
	systemGuardian *ActorCell
	tempGuardian   *ActorCell

	pathRegistry *pathreg.Registry
	authorities  *pathreg.AuthorityManager
	deadLetters  *DeadLetterRing
	events       *EventStream
	extensions   *ExtensionRegistry

	rootStarted   atomic.Bool
	terminating   atomic.Bool
	terminated    atomic.Bool
	terminateOnce sync.Once
	terminateCh   chan struct{}

	restartCounter   atomic.Uint64
	stopCounter      atomic.Uint64
	escalateCounter  atomic.Uint64
	tempCounter      atomic.Uint64
	failureTotal     atomic.Uint64
	failureInflight  atomic.Int64
}

// NewSystemState constructs a system and starts its three guardians. The
// guardians have no behavior of their own beyond forwarding Failure up and
// Stop down; application actors are spawned as their children.
func NewSystemState(cfg Config) *SystemState {
	if cfg.MailboxCapacity <= 0 {
		cfg.MailboxCapacity = defaultMailboxCapacity
	}
	sys := &SystemState{
		config:       cfg,
		cells:        make(map[pathreg.Pid]*ActorCell),
		extraTops:    make(map[string]*ActorCell),
		pathRegistry: pathreg.NewRegistry(),
		authorities:  pathreg.NewAuthorityManager(),
		events:       NewEventStream(),
		extensions:   NewExtensionRegistry(),
		terminateCh:  make(chan struct{}),
	}
	sys.deadLetters = NewDeadLetterRing(sys.events)

	guardianBehavior := func(ctx *ActorContext, msg any) *ActorError { return nil }

	sys.userGuardian = sys.spawnGuardian(pathreg.GuardianUser, guardianBehavior)
	sys.systemGuardian = sys.spawnGuardian(pathreg.GuardianSystem, guardianBehavior)
	sys.tempGuardian = sys.spawnGuardian(pathreg.GuardianTemp, guardianBehavior)

	return sys
}

// Start closes the window for registering extra top-level actors. Callers
// that need a receptionist or cluster singleton manager must register it
// between NewSystemState and Start.
func (sys *SystemState) Start() {
	sys.rootStarted.Store(true)
}

func (sys *SystemState) Now() time.Duration { return sys.clock.Now() }

func (sys *SystemState) Events() *EventStream       { return sys.events }
func (sys *SystemState) DeadLetters() *DeadLetterRing { return sys.deadLetters }
func (sys *SystemState) Authorities() *pathreg.AuthorityManager { return sys.authorities }
func (sys *SystemState) Paths() *pathreg.Registry   { return sys.pathRegistry }
func (sys *SystemState) Extensions() *ExtensionRegistry { return sys.extensions }

// allocatePid hands out a never-reused pid: the counter only increases, so
// even after billions of spawns a freed pid is never handed to a new
// actor (incarnation additionally disambiguates path-level resurrection
// within the uid-reservation window tracked by pathreg.Registry).
func (sys *SystemState) allocatePid() pathreg.Pid {
	v := sys.nextPid.Add(1)
	return pathreg.Pid{Value: v, Incarnation: 1}
}

func (sys *SystemState) spawnGuardian(kind pathreg.GuardianKind, behavior Behavior) *ActorCell {
	path := pathreg.Root(sys.config.SystemName, kind)
	cell := sys.newCell(nil, path, behavior, DefaultSupervisorStrategy())
	go cell.run()
	<-cell.started
	return cell
}

// Spawn creates a top-level actor under the user guardian.
func (sys *SystemState) Spawn(name string, behavior Behavior, strategy SupervisorStrategy) (pathreg.Pid, error) {
	cell, err := sys.spawnCell(sys.userGuardian, name, behavior, strategy)
	if err != nil {
		return pathreg.NullPid, err
	}
	return cell.pid, nil
}

// RegisterExtraTopLevel registers a named top-level actor outside the
// three guardians (e.g. a receptionist or cluster singleton manager).
// Like the guardians themselves, this is only permitted before the system
// finishes booting — after that, the set of top-level names is closed.
func (sys *SystemState) RegisterExtraTopLevel(name string, behavior Behavior, strategy SupervisorStrategy) (pathreg.Pid, error) {
	if sys.rootStarted.Load() {
		return pathreg.NullPid, fmt.Errorf("system: cannot register extra top-level %q after startup", name)
	}
	if name == "" || pathreg.IsReservedTopLevel(name) {
		return pathreg.NullPid, fmt.Errorf("system: %q is not a valid extra top-level name", name)
	}
	sys.mu.Lock()
	if _, exists := sys.extraTops[name]; exists {
		sys.mu.Unlock()
		return pathreg.NullPid, fmt.Errorf("system: extra top-level %q already registered", name)
	}
	sys.mu.Unlock()

	path := pathreg.Root(sys.config.SystemName, pathreg.GuardianUser).Child(name)
	cell := sys.newCell(nil, path, behavior, strategy)

	sys.mu.Lock()
	sys.extraTops[name] = cell
	sys.mu.Unlock()

	go cell.run()
	<-cell.started
	return cell.pid, nil
}

func (sys *SystemState) spawnCell(parent *ActorCell, name string, behavior Behavior, strategy SupervisorStrategy) (*ActorCell, error) {
	path := parent.path.Child(name)
	cell := sys.newCell(parent, path, behavior, strategy)
	parent.addChild(cell)
	go cell.run()
	<-cell.started
	return cell, nil
}

func (sys *SystemState) newCell(parent *ActorCell, path pathreg.ActorPath, behavior Behavior, strategy SupervisorStrategy) *ActorCell {
	pid := sys.allocatePid()
	ctx, cancel := context.WithCancel(context.Background())
	cell := &ActorCell{
		pid:      pid,
		name:     path.String(),
		path:     path,
		parent:   parent,
		sys:      sys,
		behavior: behavior,
		strategy: strategy,
		stats:    NewRestartStatistics(),
		mailbox:  NewMailbox(sys.config.MailboxCapacity),
		ctx:      ctx,
		cancel:   cancel,
		children: make(map[pathreg.Pid]*ActorCell),
		watchers: make(map[pathreg.Pid]bool),
		started:  make(chan struct{}),
	}

	sys.mu.Lock()
	sys.cells[pid] = cell
	sys.mu.Unlock()
	sys.pathRegistry.Register(pid, path, uint64(pid.Incarnation))

	return cell
}

// Tell delivers message to to's mailbox, or records a dead letter if to is
// unknown or its mailbox is full.
func (sys *SystemState) Tell(from, to pathreg.Pid, message any) {
	sys.mu.RLock()
	target, ok := sys.cells[to]
	sys.mu.RUnlock()
	if !ok {
		sys.recordDeadLetter(message, ReasonNoSuchActor, &to)
		return
	}

	if sysMsg, ok := message.(SystemMessage); ok {
		if !target.mailbox.EnqueueSystem(sysMsg) {
			sys.recordDeadLetter(message, ReasonMailboxFull, &to)
		}
		return
	}

	if !target.mailbox.TryEnqueueUser(Envelope{Sender: from, Message: message}) {
		sys.recordDeadLetter(message, ReasonMailboxFull, &to)
	}
}

func (sys *SystemState) recordDeadLetter(message any, reason DeadLetterReason, target *pathreg.Pid) {
	sys.deadLetters.RecordEntry(message, reason, target, sys.clock.Now())
}

func (sys *SystemState) removeCell(cell *ActorCell, reason string) {
	sys.mu.Lock()
	delete(sys.cells, cell.pid)
	sys.mu.Unlock()
	sys.pathRegistry.Unregister(cell.pid, sys.clock.Now())

	if cell.parent != nil {
		cell.parent.mu.Lock()
		delete(cell.parent.children, cell.pid)
		cell.parent.mu.Unlock()
	}

	if cell == sys.userGuardian {
		sys.beginTermination()
	}
}

// beginTermination marks the system as shutting down and completes the
// termination future once observed; it is idempotent.
func (sys *SystemState) beginTermination() {
	sys.terminating.Store(true)
	sys.terminateOnce.Do(func() {
		sys.terminated.Store(true)
		close(sys.terminateCh)
	})
}

func (sys *SystemState) IsTerminating() bool { return sys.terminating.Load() }
func (sys *SystemState) IsTerminated() bool  { return sys.terminated.Load() }

// Termination returns a channel closed once the user guardian (and
// transitively everything under it) has stopped.
func (sys *SystemState) Termination() <-chan struct{} { return sys.terminateCh }

// Shutdown stops the three guardians, cascading down through every actor
// in the system.
func (sys *SystemState) Shutdown(reason string) {
	sys.userGuardian.finalize(reason)
	sys.systemGuardian.finalize(reason)
	sys.tempGuardian.finalize(reason)
}

// reportFailure is called by a cell's own dispatch loop when its behavior
// returns a non-nil *ActorError: the failure is counted, logged through
// slog, and forwarded to the parent as a Failure system message. If there
// is no parent (the failing cell is a guardian), the cell is stopped
// outright. A Failure that Tell cannot deliver to the parent is recorded
// as a dead letter and the cell keeps running.
//
// failureTotal counts every report; failureInflight tracks how many are
// still awaiting a directive, incremented here and decremented wherever
// handling finally resolves (restart enqueued, stop, or escalation to a
// cell with no parent) in handleChildFailure and escalate.
func (sys *SystemState) reportFailure(cell *ActorCell, err *ActorError) {
	slog.Error("actor reported failure", "pid", cell.pid.String(), "path", cell.path.String(), "error", err.Error())

	sys.failureTotal.Add(1)
	sys.failureInflight.Add(1)

	if cell.parent == nil {
		sys.stopCounter.Add(1)
		sys.failureInflight.Add(-1)
		cell.finalize(err.Error())
		return
	}

	payload := FailurePayload{Child: cell.pid, Reason: err.Error(), Err: err}.WithRestartStats(cell.stats)
	sys.Tell(cell.pid, cell.parent.pid, Failure{Payload: payload})
}

// handleChildFailure is invoked on the parent cell (via its own dispatch
// loop handling a received Failure system message): it asks the child's
// supervisor strategy for a directive and applies it. A Restart directive
// sends Recreate to the child; if that send fails (child already gone),
// the failure is re-raised to the grandparent instead of silently
// dropped. Escalate re-raises unconditionally.
func (sys *SystemState) handleChildFailure(parent *ActorCell, payload FailurePayload) {
	childErr, _ := payload.Err.(*ActorError)

	var actorErr *ActorError
	if childErr != nil {
		actorErr = childErr
	} else {
		actorErr = NewRecoverableError(payload.Reason)
	}

	sys.mu.RLock()
	child, known := sys.cells[payload.Child]
	sys.mu.RUnlock()

	strategy := DefaultSupervisorStrategy()
	if known {
		strategy = child.strategy
	}

	directive := strategy.Decide(actorErr, payload.RestartStats, time.Now())

	switch directive {
	case DirectiveRestart:
		sys.restartCounter.Add(1)
		if known {
			sent := child.mailbox.EnqueueSystem(Recreate{Reason: payload.Reason})
			if sent {
				sys.failureInflight.Add(-1)
				return
			}
		}
		sys.escalate(parent, payload)
	case DirectiveStop:
		sys.stopCounter.Add(1)
		if known {
			child.finalize(payload.Reason)
		}
		sys.failureInflight.Add(-1)
	case DirectiveEscalate:
		sys.escalate(parent, payload)
	}
}

// escalate re-raises a failure to the grandparent, or stops the parent if
// there is none. Forwarding to a grandparent leaves the failure inflight;
// it is only resolved once that hop's own handleChildFailure decides a
// terminal directive.
func (sys *SystemState) escalate(parent *ActorCell, payload FailurePayload) {
	sys.escalateCounter.Add(1)
	if parent.parent == nil {
		parent.finalize(payload.Reason)
		sys.failureInflight.Add(-1)
		return
	}
	sys.Tell(parent.pid, parent.parent.pid, Failure{Payload: payload})
}

// ActorPath resolves a live pid's canonical URI (ActorPath.String, system
// name included).
func (sys *SystemState) ActorPath(pid pathreg.Pid) (string, bool) {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	cell, ok := sys.cells[pid]
	if !ok {
		return "", false
	}
	return cell.path.String(), true
}

func (sys *SystemState) NextTempName() string {
	n := sys.tempCounter.Add(1)
	return fmt.Sprintf("$%d", n)
}
