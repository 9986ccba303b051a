package streams

import "fmt"

type RunState int

const (
	Running RunState = iota
	Completed
	Failed
)

type DriveResult int

const (
	Idle DriveResult = iota
	Progressed
)

// Interpreter drives one materialized Plan. Drive is synchronous and never
// suspends; callers schedule repeated calls (e.g. from a loop or ticker)
// until the state is no longer Running.
type Interpreter struct {
	plan      *Plan
	tick      uint64
	state     RunState
	err       error
	startDone bool
	progress  bool
}

func NewInterpreter(plan *Plan) *Interpreter {
	return &Interpreter{plan: plan}
}

func (in *Interpreter) State() RunState { return in.state }
func (in *Interpreter) Err() error      { return in.err }
func (in *Interpreter) Tick() uint64    { return in.tick }

// Drive runs at most one round of the interpreter loop.
func (in *Interpreter) Drive() DriveResult {
	if in.state != Running {
		return Idle
	}
	in.tick++
	in.progress = false

	in.tickRestartWindows()
	if in.state != Running {
		return Progressed
	}
	in.tickFlowStages()
	if in.state != Running {
		return Progressed
	}

	if !in.startDone {
		for _, n := range in.plan.nodes {
			if n.kind == nodeSink {
				n.sink.OnStart(&n.demand)
			}
		}
		in.startDone = true
		in.progress = true
	}

	if in.anySinkHasDemand() {
		in.pullDispatchWriteRound()
	}

	in.checkTermination()

	if in.progress {
		return Progressed
	}
	return Idle
}

func (in *Interpreter) anySinkHasDemand() bool {
	for _, n := range in.plan.nodes {
		if n.kind == nodeSink && n.demand.HasDemand() {
			return true
		}
	}
	return false
}

func (in *Interpreter) tickRestartWindows() {
	for _, n := range in.plan.nodes {
		if n.backoff == nil || !n.backoff.IsWaiting() {
			continue
		}
		if n.backoff.Tick(in.tick) {
			in.onRestart(n)
			in.progress = true
		}
	}
}

func (in *Interpreter) onRestart(n *node) {
	if r, ok := stageLogic(n).(Restartable); ok {
		r.OnRestart()
	}
	switch n.kind {
	case nodeSource:
		n.done = false
	case nodeSink:
		n.sink.OnStart(&n.demand)
	}
}

func stageLogic(n *node) any {
	switch n.kind {
	case nodeSource:
		return n.source
	case nodeFlow:
		return n.flow
	default:
		return n.sink
	}
}

func (in *Interpreter) tickFlowStages() {
	for _, idx := range in.plan.order {
		n := in.plan.nodes[idx]
		if n.kind != nodeFlow {
			continue
		}
		if n.backoff != nil && n.backoff.IsWaiting() {
			continue
		}
		if t, ok := n.flow.(Tickable); ok {
			failed, err := in.guarded(n, func() { t.OnTick(in.tick) })
			if failed {
				in.handleFailure(n, err)
				if in.state != Running {
					return
				}
			}
		}
		if rs, ok := n.flow.(RequestsShutdown); ok && rs.TakeShutdownRequest() {
			in.beginGracefulShutdown()
		}
	}
}

func (in *Interpreter) beginGracefulShutdown() {
	for _, n := range in.plan.nodes {
		if n.kind == nodeSource {
			n.source.Cancel()
			n.done = true
		}
	}
}

// guarded runs fn, converting a panic into a StreamError so stage failures
// (which the FlowLogic/SourceLogic interfaces have no error-return channel
// for) still flow through the normal supervision path.
func (in *Interpreter) guarded(n *node, fn func()) (failed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			err = &StreamError{Kind: ErrStageFailure, Stage: n.name, Cause: fmt.Errorf("%v", r)}
		}
	}()
	fn()
	return false, nil
}

func (in *Interpreter) handleFailure(n *node, err error) {
	directive := n.strategy.decide(err)
	switch directive {
	case SupervisionStop:
		in.state = Failed
		in.err = err
	case SupervisionResume:
		in.progress = true
		if n.kind == nodeSink {
			n.demand.Request(1)
		}
	case SupervisionRestart:
		if isUnsafeToRestart(n) {
			in.progress = true
			return
		}
		if n.backoff == nil {
			in.onRestart(n)
			in.progress = true
			return
		}
		if !n.backoff.Schedule(in.tick) {
			if n.backoff.ExhaustedAndCompletes() {
				n.completed = true
			} else {
				in.state = Failed
				in.err = err
			}
		}
	}
}

// isUnsafeToRestart implements the SplitWhen/SplitAfter downgrade: those
// stages have no safe restart semantics because accumulated segments would
// be lost, so Restart behaves like Resume for them.
func isUnsafeToRestart(n *node) bool {
	type unsafeRestart interface{ UnsafeToRestart() bool }
	if u, ok := n.flow.(unsafeRestart); ok {
		return u.UnsafeToRestart()
	}
	return false
}

func (in *Interpreter) pullDispatchWriteRound() {
	in.pullSources()
	if in.state != Running {
		return
	}
	in.runFlows()
	if in.state != Running {
		return
	}
	in.runSinks()
}

func (in *Interpreter) pullSources() {
	for idx, n := range in.plan.nodes {
		if n.kind != nodeSource || n.done {
			continue
		}
		if n.backoff != nil && n.backoff.IsWaiting() {
			continue
		}
		if in.outletBlocked(idx) {
			continue
		}
		value, ok, err := n.source.Pull()
		if err != nil {
			if se, isStream := err.(*StreamError); isStream && se.Kind == ErrWouldBlock {
				continue
			}
			in.handleFailure(n, err)
			continue
		}
		if !ok {
			in.retireSource(n)
			continue
		}
		in.progress = true
		in.dispatch(idx, value)
	}
}

func (in *Interpreter) retireSource(n *node) {
	if n.backoff != nil {
		if n.backoff.Schedule(in.tick) {
			return
		}
		if n.backoff.ExhaustedAndCompletes() {
			n.done = true
			return
		}
		in.state = Failed
		in.err = &StreamError{Kind: ErrSourceFailure, Stage: n.name, Cause: fmt.Errorf("restart budget exhausted")}
		return
	}
	n.done = true
}

// outletBlocked reports whether nodeIdx has a Block-policy outgoing edge
// already at capacity, in which case it must not produce another value
// until that edge drains. Edges with a drop or grow policy never block
// their upstream; they absorb or shed overflow at push time instead.
func (in *Interpreter) outletBlocked(nodeIdx int) bool {
	for _, ei := range in.plan.nodes[nodeIdx].outEdges {
		e := in.plan.edges[ei]
		if e.policy == PolicyBlock && e.capacity > 0 && len(e.queue) >= e.capacity {
			return true
		}
	}
	return false
}

// dispatch routes value to the node's next outgoing edge, round-robin.
// dispatchAll uses it for every output except a FanOutFlowLogic's full set
// of outputs, which it places one per outgoing edge.
func (in *Interpreter) dispatch(nodeIdx int, value any) {
	n := in.plan.nodes[nodeIdx]
	out := n.outEdges
	if len(out) == 0 {
		return
	}
	ei := out[n.nextOut%len(out)]
	n.nextOut++
	in.plan.edges[ei].push(value)
}

func (in *Interpreter) dispatchAll(nodeIdx int, values []any) {
	n := in.plan.nodes[nodeIdx]
	if fo, ok := n.flow.(FanOutFlowLogic); ok && len(values) == fo.ExpectedFanOut() && len(n.outEdges) == fo.ExpectedFanOut() {
		for i, v := range values {
			in.plan.edges[n.outEdges[i]].push(v)
		}
		return
	}
	for _, v := range values {
		in.dispatch(nodeIdx, v)
	}
}

func (in *Interpreter) runFlows() {
	for _, idx := range in.plan.order {
		n := in.plan.nodes[idx]
		if n.kind != nodeFlow {
			continue
		}
		if n.backoff != nil && n.backoff.IsWaiting() {
			continue
		}
		if esd, ok := n.flow.(EdgeSourceDoneNotifier); ok {
			in.notifyEdgeSourceDone(n, esd)
		}
		canAccept := true
		if ca, ok := n.flow.(CanAcceptInput); ok {
			canAccept = ca.CanAcceptInput()
		}
		if canAccept {
			in.consumeOneFlowInput(idx, n)
		}
		if dp, ok := n.flow.(DrainsPending); ok {
			if pending := dp.DrainPending(); len(pending) > 0 {
				in.progress = true
				in.dispatchAll(idx, pending)
			}
		}
	}
}

// consumeOneFlowInput consumes at most one buffered value from this flow's
// inlets, picking the next non-empty edge in round-robin order starting
// from n.nextIn so a fast upstream can never starve a slower sibling edge
// feeding a fan-in stage like Zip or Concat.
func (in *Interpreter) consumeOneFlowInput(idx int, n *node) {
	count := len(n.inEdges)
	for step := 0; step < count; step++ {
		pos := (n.nextIn + step) % count
		ei := n.inEdges[pos]
		e := in.plan.edges[ei]
		if len(e.queue) == 0 {
			continue
		}
		value := e.queue[0]
		e.queue = e.queue[1:]
		n.nextIn = (pos + 1) % count
		in.progress = true

		var outputs []any
		var failed bool
		var err error
		if ea, ok := n.flow.(EdgeAwareFlowLogic); ok {
			failed, err = in.guarded(n, func() { outputs = ea.ApplyWithEdge(pos, value) })
		} else {
			failed, err = in.guarded(n, func() { outputs = n.flow.Apply(value) })
		}
		if failed {
			in.handleFailure(n, err)
			return
		}
		in.dispatchAll(idx, outputs)
		return
	}
}

// notifyEdgeSourceDone tells n about any inbound edge whose upstream source
// has retired and whose queue has fully drained, so a fan-in stage like
// Concat can release output it held back while waiting for that port.
// Idempotent calls are expected: a stage's OnEdgeSourceDone should just set
// a flag, so calling it again every tick until the stage completes is safe.
func (in *Interpreter) notifyEdgeSourceDone(n *node, esd EdgeSourceDoneNotifier) {
	for pos, ei := range n.inEdges {
		e := in.plan.edges[ei]
		from := in.plan.nodes[e.from]
		if from.kind == nodeSource && from.done && len(e.queue) == 0 {
			esd.OnEdgeSourceDone(pos)
		}
	}
}

func (in *Interpreter) runSinks() {
	for _, n := range in.plan.nodes {
		if n.kind != nodeSink || n.completed {
			continue
		}
		if n.backoff != nil && n.backoff.IsWaiting() {
			continue
		}
		if !n.demand.HasDemand() {
			continue
		}
		if len(n.inEdges) == 0 {
			continue
		}
		e := in.plan.edges[n.inEdges[0]]
		if len(e.queue) == 0 {
			continue
		}
		value := e.queue[0]
		e.queue = e.queue[1:]
		n.demand.Consume()
		in.progress = true

		var decision SinkDecision
		failed, err := in.guarded(n, func() { decision = n.sink.OnPush(value, &n.demand) })
		if failed {
			in.handleFailure(n, err)
			continue
		}
		if decision == SinkComplete {
			in.handleSinkComplete(n)
		}
	}
}

func (in *Interpreter) handleSinkComplete(n *node) {
	directive := n.strategy.decide(nil)
	switch directive {
	case SupervisionRestart:
		if n.backoff == nil || n.backoff.Schedule(in.tick) {
			if n.backoff == nil {
				n.sink.OnStart(&n.demand)
			}
			return
		}
		if n.backoff.ExhaustedAndCompletes() {
			n.completed = true
		} else {
			in.state = Failed
		}
	default:
		n.completed = true
	}
}

// checkTermination implements "when every source is done and no stage has
// pending output or is in restart-wait, call each sink's on_complete and
// move to Completed". Sink completion is the action this function takes,
// not a precondition for taking it.
func (in *Interpreter) checkTermination() {
	for _, n := range in.plan.nodes {
		switch n.kind {
		case nodeSource:
			if !n.done {
				return
			}
		case nodeFlow:
			if n.backoff != nil && n.backoff.IsWaiting() {
				return
			}
			if hp, ok := n.flow.(HasPendingOutput); ok && hp.HasPendingOutput() {
				return
			}
		}
	}
	for _, e := range in.plan.edges {
		if len(e.queue) > 0 {
			return
		}
	}

	allSinksDone := true
	for _, n := range in.plan.nodes {
		if n.kind == nodeSink && !n.completed {
			allSinksDone = false
		}
	}
	if allSinksDone {
		if in.state == Running {
			in.state = Completed
		}
		return
	}

	for _, n := range in.plan.nodes {
		if n.kind == nodeSink && !n.completed {
			n.sink.OnComplete()
			n.completed = true
		}
	}
	in.state = Completed
	in.progress = true
}

// Abort sets the stream to Failed, cancels every source once, and notifies
// every sink of the error. Idempotent: a second call observes the terminal
// state and does nothing.
func (in *Interpreter) Abort(err error) {
	if in.state != Running {
		return
	}
	in.state = Failed
	in.err = err
	for _, n := range in.plan.nodes {
		if n.kind == nodeSource && !n.done {
			n.source.Cancel()
			n.done = true
		}
	}
	for _, n := range in.plan.nodes {
		if n.kind == nodeSink && !n.completed {
			n.sink.OnError(err)
			n.completed = true
		}
	}
}

// Cancel requests a graceful stop: every source is cancelled and flows are
// notified via OnSourceDone so buffered state can flush tail values.
// Cancel does not change the stream's state, so a second call while the
// stream is still Running cancels no source again but does call
// OnSourceDone on those flows again.
func (in *Interpreter) Cancel() {
	if in.state != Running {
		return
	}
	for _, n := range in.plan.nodes {
		if n.kind == nodeSource && !n.done {
			n.source.Cancel()
			n.done = true
		}
	}
	for _, n := range in.plan.nodes {
		if n.kind == nodeFlow {
			if nd, ok := n.flow.(NotifiesSourceDone); ok {
				nd.OnSourceDone()
			}
		}
	}
}
