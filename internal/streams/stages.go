package streams

import "reflect"

// SliceSource emits each element of a slice in order, then completes.
type SliceSource struct {
	values   []any
	typ      reflect.Type
	idx      int
	canceled bool
}

func NewSliceSource(typ reflect.Type, values []any) *SliceSource {
	return &SliceSource{values: values, typ: typ}
}

func (s *SliceSource) Pull() (any, bool, error) {
	if s.canceled || s.idx >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.idx]
	s.idx++
	return v, true, nil
}

func (s *SliceSource) OutputType() reflect.Type { return s.typ }
func (s *SliceSource) Cancel()                  { s.canceled = true }

// MapFlow applies fn to every input, emitting exactly one output.
type MapFlow struct {
	fn         func(any) any
	inT, outT  reflect.Type
}

func NewMapFlow(inT, outT reflect.Type, fn func(any) any) *MapFlow {
	return &MapFlow{fn: fn, inT: inT, outT: outT}
}

func (f *MapFlow) Apply(value any) []any     { return []any{f.fn(value)} }
func (f *MapFlow) InputType() reflect.Type   { return f.inT }
func (f *MapFlow) OutputType() reflect.Type  { return f.outT }

// CollectSink buffers every pushed value.
type CollectSink struct {
	typ      reflect.Type
	Values   []any
	Complete bool
	Err      error
}

func NewCollectSink(typ reflect.Type) *CollectSink {
	return &CollectSink{typ: typ}
}

func (s *CollectSink) OnStart(demand *Demand)      { demand.Request(1) }
func (s *CollectSink) InputType() reflect.Type     { return s.typ }
func (s *CollectSink) OnComplete()                 { s.Complete = true }
func (s *CollectSink) OnError(err error)            { s.Err = err }
func (s *CollectSink) OnPush(value any, demand *Demand) SinkDecision {
	s.Values = append(s.Values, value)
	demand.Request(1)
	return SinkContinue
}

// ZipFlow waits for one value from each of its N inputs before emitting
// them together as a []any tuple.
type ZipFlow struct {
	fanIn   int
	inT     reflect.Type
	outT    reflect.Type
	pending [][]any
}

func NewZipFlow(inT, outT reflect.Type, fanIn int) *ZipFlow {
	return &ZipFlow{fanIn: fanIn, inT: inT, outT: outT, pending: make([][]any, fanIn)}
}

func (z *ZipFlow) Apply(value any) []any { return nil }
func (z *ZipFlow) InputType() reflect.Type  { return z.inT }
func (z *ZipFlow) OutputType() reflect.Type { return z.outT }
func (z *ZipFlow) ExpectedFanIn() int       { return z.fanIn }

func (z *ZipFlow) ApplyWithEdge(edgeIndex int, value any) []any {
	z.pending[edgeIndex] = append(z.pending[edgeIndex], value)
	for _, q := range z.pending {
		if len(q) == 0 {
			return nil
		}
	}
	tuple := make([]any, z.fanIn)
	for i := range z.pending {
		tuple[i] = z.pending[i][0]
		z.pending[i] = z.pending[i][1:]
	}
	return []any{tuple}
}

// ConcatFlow drains each input edge fully, strictly in port order, before
// moving to the next.
type ConcatFlow struct {
	fanIn    int
	typ      reflect.Type
	buffers  [][]any
	current  int
	sourceDone []bool
}

func NewConcatFlow(typ reflect.Type, fanIn int) *ConcatFlow {
	return &ConcatFlow{fanIn: fanIn, typ: typ, buffers: make([][]any, fanIn), sourceDone: make([]bool, fanIn)}
}

func (c *ConcatFlow) Apply(value any) []any { return nil }
func (c *ConcatFlow) InputType() reflect.Type  { return c.typ }
func (c *ConcatFlow) OutputType() reflect.Type { return c.typ }
func (c *ConcatFlow) ExpectedFanIn() int       { return c.fanIn }

func (c *ConcatFlow) ApplyWithEdge(edgeIndex int, value any) []any {
	c.buffers[edgeIndex] = append(c.buffers[edgeIndex], value)
	return c.drainCurrent()
}

// OnEdgeSourceDone marks the port at edgeIndex as exhausted, letting
// drainCurrent advance past it instead of waiting on it forever.
func (c *ConcatFlow) OnEdgeSourceDone(edgeIndex int) {
	c.sourceDone[edgeIndex] = true
}

// DrainPending re-attempts the drain after a port is marked done, releasing
// any values already buffered on later ports that were held back while
// draining strictly in port order.
func (c *ConcatFlow) DrainPending() []any {
	return c.drainCurrent()
}

func (c *ConcatFlow) drainCurrent() []any {
	var out []any
	for c.current < c.fanIn {
		for len(c.buffers[c.current]) > 0 {
			out = append(out, c.buffers[c.current][0])
			c.buffers[c.current] = c.buffers[c.current][1:]
		}
		if !c.sourceDone[c.current] {
			break
		}
		c.current++
	}
	return out
}

// MergeFlow interleaves inputs from any edge as they arrive, with no
// ordering guarantee across ports.
type MergeFlow struct {
	fanIn int
	typ   reflect.Type
}

func NewMergeFlow(typ reflect.Type, fanIn int) *MergeFlow {
	return &MergeFlow{fanIn: fanIn, typ: typ}
}

func (m *MergeFlow) Apply(value any) []any  { return []any{value} }
func (m *MergeFlow) InputType() reflect.Type  { return m.typ }
func (m *MergeFlow) OutputType() reflect.Type { return m.typ }
func (m *MergeFlow) ExpectedFanIn() int       { return m.fanIn }
func (m *MergeFlow) ApplyWithEdge(_ int, value any) []any { return []any{value} }

// BroadcastFlow pre-replicates every input fanOut times; the interpreter's
// dispatchAll then places one copy on each outgoing edge.
type BroadcastFlow struct {
	fanOut int
	typ    reflect.Type
}

func NewBroadcastFlow(typ reflect.Type, fanOut int) *BroadcastFlow {
	return &BroadcastFlow{fanOut: fanOut, typ: typ}
}

func (b *BroadcastFlow) Apply(value any) []any {
	out := make([]any, b.fanOut)
	for i := range out {
		out[i] = value
	}
	return out
}
func (b *BroadcastFlow) InputType() reflect.Type  { return b.typ }
func (b *BroadcastFlow) OutputType() reflect.Type { return b.typ }
func (b *BroadcastFlow) ExpectedFanOut() int      { return b.fanOut }
