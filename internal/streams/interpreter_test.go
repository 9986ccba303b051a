package streams

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

var intType = reflect.TypeOf(0)

func driveUntilDone(t *testing.T, in *Interpreter, maxRounds int) {
	t.Helper()
	for i := 0; i < maxRounds; i++ {
		in.Drive()
		if in.State() != Running {
			return
		}
	}
	t.Fatalf("interpreter did not reach a terminal state within %d rounds", maxRounds)
}

func TestSimpleSourceMapSinkRunsToCompletion(t *testing.T) {
	plan := NewPlanBuilder()
	src := plan.AddSource("src", NewSliceSource(intType, []any{1, 2, 3}), SupervisionStrategy{}, nil)
	double := plan.AddFlow("double", NewMapFlow(intType, intType, func(v any) any { return v.(int) * 2 }), SupervisionStrategy{}, nil)
	sink := NewCollectSink(intType)
	snk := plan.AddSink("sink", sink, SupervisionStrategy{}, nil)

	_, err := plan.Connect(src, double)
	require.NoError(t, err)
	_, err = plan.Connect(double, snk)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	in := NewInterpreter(plan)
	driveUntilDone(t, in, 50)

	require.Equal(t, Completed, in.State())
	require.Equal(t, []any{2, 4, 6}, sink.Values)
	require.True(t, sink.Complete)
}

func TestZipWaitsForOneValueFromEachInput(t *testing.T) {
	plan := NewPlanBuilder()
	leftSrc := plan.AddSource("left", NewSliceSource(intType, []any{1, 2}), SupervisionStrategy{}, nil)
	rightSrc := plan.AddSource("right", NewSliceSource(intType, []any{10, 20}), SupervisionStrategy{}, nil)
	anyType := reflect.TypeOf([]any(nil))
	zip := NewZipFlow(intType, anyType, 2)
	zipIdx := plan.AddFlow("zip", zip, SupervisionStrategy{}, nil)
	sink := NewCollectSink(anyType)
	snk := plan.AddSink("sink", sink, SupervisionStrategy{}, nil)

	_, err := plan.Connect(leftSrc, zipIdx)
	require.NoError(t, err)
	_, err = plan.Connect(rightSrc, zipIdx)
	require.NoError(t, err)
	_, err = plan.Connect(zipIdx, snk)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	in := NewInterpreter(plan)
	driveUntilDone(t, in, 50)

	require.Equal(t, Completed, in.State())
	require.Len(t, sink.Values, 2)
	require.Equal(t, []any{1, 10}, sink.Values[0])
	require.Equal(t, []any{2, 20}, sink.Values[1])
}

func TestResumeSupervisionDropsOffendingInputAndContinues(t *testing.T) {
	plan := NewPlanBuilder()
	src := plan.AddSource("src", NewSliceSource(intType, []any{1, 0, 3}), SupervisionStrategy{}, nil)
	divide := NewMapFlow(intType, intType, func(v any) any {
		n := v.(int)
		if n == 0 {
			panic("divide by zero")
		}
		return 100 / n
	})
	resumeAlways := SupervisionStrategy{Decide: func(error) SupervisionDirective { return SupervisionResume }}
	flow := plan.AddFlow("divide", divide, resumeAlways, nil)
	sink := NewCollectSink(intType)
	snk := plan.AddSink("sink", sink, SupervisionStrategy{}, nil)

	_, err := plan.Connect(src, flow)
	require.NoError(t, err)
	_, err = plan.Connect(flow, snk)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	in := NewInterpreter(plan)
	driveUntilDone(t, in, 50)

	require.Equal(t, Completed, in.State())
	require.Equal(t, []any{100, 33}, sink.Values)
}

func TestAbortIsIdempotentAndNotifiesSinks(t *testing.T) {
	plan := NewPlanBuilder()
	src := plan.AddSource("src", NewSliceSource(intType, []any{1}), SupervisionStrategy{}, nil)
	sink := NewCollectSink(intType)
	snk := plan.AddSink("sink", sink, SupervisionStrategy{}, nil)
	_, err := plan.Connect(src, snk)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	in := NewInterpreter(plan)
	in.Abort(errors.New("boom"))
	require.Equal(t, Failed, in.State())
	require.NotNil(t, sink.Err)

	// Second Abort call is a no-op.
	in.Abort(errors.New("other"))
	require.Equal(t, "boom", sink.Err.Error())
}
