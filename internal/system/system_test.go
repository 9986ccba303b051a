package system

import (
	"testing"
	"time"

	"github.com/babyman/fraktor/internal/pathreg"
	"github.com/stretchr/testify/require"
)

func TestPidAllocationIsUniqueAndMonotonic(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	seen := make(map[pathreg.Pid]bool)
	var last uint64
	for i := 0; i < 1000; i++ {
		pid := sys.allocatePid()
		require.False(t, seen[pid])
		seen[pid] = true
		require.Greater(t, pid.Value, last)
		last = pid.Value
	}
}

func TestDeadLetterRecordedForUnknownTarget(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	unknown := pathreg.Pid{Value: 999999}
	sys.Tell(pathreg.NullPid, unknown, "hello")

	entries := sys.deadLetters.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, ReasonNoSuchActor, entries[0].Reason)
}

func TestExtensionGetOrInsertOnlyConstructsOnce(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	calls := 0
	type marker struct{ n int }
	insert := func() *marker {
		calls++
		return &marker{n: calls}
	}

	a := GetOrInsert(sys.extensions, insert)
	b := GetOrInsert(sys.extensions, insert)
	require.Same(t, a, b)
	require.Equal(t, 1, calls)
}

func TestRegisterExtraTopLevelRejectsReservedNames(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	_, err := sys.RegisterExtraTopLevel("system", func(*ActorContext, any) *ActorError { return nil }, DefaultSupervisorStrategy())
	require.Error(t, err)
}

func TestRegisterExtraTopLevelSucceedsBeforeStartAndRejectsAfter(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	_, err := sys.RegisterExtraTopLevel("receptionist", func(*ActorContext, any) *ActorError { return nil }, DefaultSupervisorStrategy())
	require.NoError(t, err)

	sys.Start()
	_, err = sys.RegisterExtraTopLevel("another", func(*ActorContext, any) *ActorError { return nil }, DefaultSupervisorStrategy())
	require.Error(t, err)
}

func TestSpawnAndTellDeliversMessage(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	received := make(chan any, 1)
	behavior := func(ctx *ActorContext, msg any) *ActorError {
		received <- msg
		return nil
	}

	pid, err := sys.Spawn("worker", behavior, DefaultSupervisorStrategy())
	require.NoError(t, err)

	sys.Tell(pathreg.NullPid, pid, "ping")

	select {
	case msg := <-received:
		require.Equal(t, "ping", msg)
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestFailureCascadeRestartsChildOnError(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	restarted := make(chan struct{}, 1)

	var behavior Behavior
	behavior = func(ctx *ActorContext, msg any) *ActorError {
		if msg == "boom" {
			return NewRecoverableError("kaboom")
		}
		if msg == "recreate-probe" {
			restarted <- struct{}{}
		}
		return nil
	}

	pid, err := sys.Spawn("flaky", behavior, DefaultSupervisorStrategy())
	require.NoError(t, err)

	sys.Tell(pathreg.NullPid, pid, "boom")
	time.Sleep(50 * time.Millisecond)
	sys.Tell(pathreg.NullPid, pid, "recreate-probe")

	select {
	case <-restarted:
	case <-time.After(time.Second):
		t.Fatal("actor did not survive restart cascade")
	}

	require.Equal(t, uint64(1), sys.failureTotal.Load())
	require.Equal(t, int64(0), sys.failureInflight.Load())
}

func TestReportFailureWithNoParentStopsAndClearsInflight(t *testing.T) {
	sys := NewSystemState(DefaultConfig("test"))
	err := NewRecoverableError("guardian blew up")

	sys.reportFailure(sys.userGuardian, err)

	require.Equal(t, uint64(1), sys.failureTotal.Load())
	require.Equal(t, int64(0), sys.failureInflight.Load())
	require.Equal(t, uint64(1), sys.stopCounter.Load())
}
