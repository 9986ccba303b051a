package system

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babyman/fraktor/internal/pathreg"
)

// Behavior is the receive function an actor runs. Returning a non-nil
// *ActorError signals failure to the dispatcher, which reports it to the
// parent via the supervision cascade instead of letting the goroutine
// panic or hang.
type Behavior func(ctx *ActorContext, msg any) *ActorError

// ActorContext is the handle a Behavior uses to interact with its cell and
// the wider system: send to other pids, spawn children, watch siblings,
// and read its own identity.
type ActorContext struct {
	Self    pathreg.Pid
	Sender  pathreg.Pid
	sys     *SystemState
	cell    *ActorCell
	context context.Context
}

func (c *ActorContext) Context() context.Context { return c.context }

func (c *ActorContext) Tell(to pathreg.Pid, message any) {
	c.sys.Tell(c.Self, to, message)
}

func (c *ActorContext) Spawn(name string, behavior Behavior, strategy SupervisorStrategy) (pathreg.Pid, error) {
	child, err := c.sys.spawnCell(c.cell, name, behavior, strategy)
	if err != nil {
		return pathreg.NullPid, err
	}
	return child.pid, nil
}

func (c *ActorContext) Watch(who pathreg.Pid)   { c.sys.Tell(c.Self, who, Watch{Watcher: c.Self}) }
func (c *ActorContext) Unwatch(who pathreg.Pid) { c.sys.Tell(c.Self, who, Unwatch{Watcher: c.Self}) }

// cellState mirrors the small lifecycle protoactor-go tracks per context:
// a cell is alive, restarting (behavior swapped out mid-cascade), or
// stopping/stopped and no longer accepting user messages.
type cellState int32

const (
	cellAlive cellState = iota
	cellRestarting
	cellStopping
	cellStopped
)

// ActorCell is one running actor: its mailbox, behavior, supervision
// bookkeeping, and place in the parent/child tree.
type ActorCell struct {
	pid      pathreg.Pid
	name     string
	path     pathreg.ActorPath
	parent   *ActorCell
	sys      *SystemState
	behavior Behavior
	strategy SupervisorStrategy
	stats    *RestartStatistics

	mailbox *Mailbox
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	children map[pathreg.Pid]*ActorCell
	watchers map[pathreg.Pid]bool

	state   atomic.Int32
	started chan struct{}
}

func (cell *ActorCell) Pid() pathreg.Pid       { return cell.pid }
func (cell *ActorCell) Path() pathreg.ActorPath { return cell.path }

func (cell *ActorCell) setState(s cellState) { cell.state.Store(int32(s)) }
func (cell *ActorCell) getState() cellState  { return cellState(cell.state.Load()) }

// run is the dispatch loop: a single goroutine per actor, system messages
// always drained ahead of user messages (select on ctx.Done / inbox, then
// switch on what the handler returns).
func (cell *ActorCell) run() {
	close(cell.started)
	actx := &ActorContext{Self: cell.pid, sys: cell.sys, cell: cell, context: cell.ctx}

	for {
		select {
		case <-cell.ctx.Done():
			cell.finalize("cancelled")
			return
		case sysMsg := <-cell.mailbox.system:
			if cell.handleSystemMessage(sysMsg) {
				return
			}
			continue
		default:
		}

		select {
		case <-cell.ctx.Done():
			cell.finalize("cancelled")
			return
		case sysMsg := <-cell.mailbox.system:
			if cell.handleSystemMessage(sysMsg) {
				return
			}
		case env := <-cell.mailbox.user:
			if cell.getState() != cellAlive {
				cell.sys.recordDeadLetter(env.Message, ReasonUnhandled, &cell.pid)
				continue
			}
			actx.Sender = env.Sender
			start := time.Now()
			failure := cell.behavior(actx, env.Message)
			_ = time.Since(start)
			if failure != nil {
				cell.sys.reportFailure(cell, failure)
			}
		}
	}
}

// handleSystemMessage applies a control message and reports whether the
// cell has fully stopped (in which case run must return).
func (cell *ActorCell) handleSystemMessage(msg SystemMessage) bool {
	switch m := msg.(type) {
	case Stop:
		cell.finalize(m.Reason)
		return true
	case Recreate:
		cell.restart(m.Reason)
		return false
	case Watch:
		cell.mu.Lock()
		if cell.watchers == nil {
			cell.watchers = make(map[pathreg.Pid]bool)
		}
		cell.watchers[m.Watcher] = true
		cell.mu.Unlock()
		return false
	case Unwatch:
		cell.mu.Lock()
		delete(cell.watchers, m.Watcher)
		cell.mu.Unlock()
		return false
	case Terminated:
		cell.mu.Lock()
		delete(cell.children, m.Who)
		cell.mu.Unlock()
		return false
	case Failure:
		cell.sys.handleChildFailure(cell, m.Payload)
		return false
	case PipeTask:
		return false
	default:
		return false
	}
}

// restart swaps in a fresh incarnation of the behavior in place: children
// are stopped (they cannot outlive the instance that spawned them), state
// is reset, and the behavior's own startup is whatever it does the first
// time it receives a message — there is no separate lifecycle hook to
// call by convention here.
func (cell *ActorCell) restart(reason string) {
	cell.setState(cellRestarting)
	cell.mu.Lock()
	children := make([]*ActorCell, 0, len(cell.children))
	for _, c := range cell.children {
		children = append(children, c)
	}
	cell.children = make(map[pathreg.Pid]*ActorCell)
	cell.mu.Unlock()

	for _, c := range children {
		c.cancel()
	}

	slog.Debug("actor restarting", "pid", cell.pid.String(), "reason", reason)
	cell.setState(cellAlive)
}

// finalize tears the cell down: children are cancelled, watchers get a
// Terminated notification, the cell is removed from the system, and its
// pid/uid pair is reserved so a stale remote reference cannot resurrect
// it.
func (cell *ActorCell) finalize(reason string) {
	if cell.getState() == cellStopped {
		return
	}
	cell.setState(cellStopping)

	cell.mu.Lock()
	children := make([]*ActorCell, 0, len(cell.children))
	for _, c := range cell.children {
		children = append(children, c)
	}
	watchers := make([]pathreg.Pid, 0, len(cell.watchers))
	for w := range cell.watchers {
		watchers = append(watchers, w)
	}
	cell.mu.Unlock()

	for _, c := range children {
		c.finalize("parent stopped")
	}

	cell.sys.removeCell(cell, reason)
	cell.setState(cellStopped)
	cell.cancel()

	for _, w := range watchers {
		cell.sys.Tell(cell.pid, w, Terminated{Who: cell.pid})
	}
}

func (cell *ActorCell) addChild(child *ActorCell) {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	if cell.children == nil {
		cell.children = make(map[pathreg.Pid]*ActorCell)
	}
	cell.children[child.pid] = child
}
