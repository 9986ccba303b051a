package streams

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// onceSink accepts exactly one push and then never requests more demand,
// so the interpreter stops pulling its upstream source.
type onceSink struct {
	typ    reflect.Type
	pushed []any
}

func (s *onceSink) OnStart(demand *Demand)  { demand.Request(1) }
func (s *onceSink) InputType() reflect.Type { return s.typ }
func (s *onceSink) OnComplete()             {}
func (s *onceSink) OnError(error)           {}
func (s *onceSink) OnPush(value any, demand *Demand) SinkDecision {
	s.pushed = append(s.pushed, value)
	return SinkContinue
}

func TestBlockPolicyEdgeStaysWithinCapacityOnceSinkStopsDemanding(t *testing.T) {
	plan := NewPlanBuilder()
	plan.SetDefaultBuffer(2, PolicyBlock)
	src := plan.AddSource("src", NewSliceSource(intType, []any{1, 2, 3, 4, 5}), SupervisionStrategy{}, nil)
	sink := &onceSink{typ: intType}
	snk := plan.AddSink("sink", sink, SupervisionStrategy{}, nil)
	_, err := plan.Connect(src, snk)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	in := NewInterpreter(plan)
	for i := 0; i < 10; i++ {
		in.Drive()
	}

	// The sink only ever grants demand once. With no demand left the
	// interpreter stops pulling the source, so after that one push the
	// edge never grows past its capacity of 2 and the stream keeps running.
	require.Len(t, sink.pushed, 1)
	require.LessOrEqual(t, len(plan.edges[0].queue), 2)
	require.Equal(t, Running, in.State())
}

func TestDropNewestDiscardsIncomingValueOnceFull(t *testing.T) {
	e := &edge{capacity: 2, policy: PolicyDropNewest, queue: []any{1, 2}}
	e.push(3)
	require.Equal(t, []any{1, 2}, e.queue)
}

func TestDropOldestEvictsHeadOnceFull(t *testing.T) {
	e := &edge{capacity: 2, policy: PolicyDropOldest, queue: []any{1, 2}}
	e.push(3)
	require.Equal(t, []any{2, 3}, e.queue)
}

func TestGrowIgnoresCapacity(t *testing.T) {
	e := &edge{capacity: 2, policy: PolicyGrow, queue: []any{1, 2}}
	e.push(3)
	require.Equal(t, []any{1, 2, 3}, e.queue)
}

func TestParseOverflowPolicyRecognizesConfiguredNames(t *testing.T) {
	require.Equal(t, PolicyBlock, ParseOverflowPolicy("Block"))
	require.Equal(t, PolicyDropOldest, ParseOverflowPolicy("DropOldest"))
	require.Equal(t, PolicyDropNewest, ParseOverflowPolicy("DropNewest"))
	require.Equal(t, PolicyGrow, ParseOverflowPolicy("Grow"))
	require.Equal(t, PolicyBlock, ParseOverflowPolicy("unknown"))
}
