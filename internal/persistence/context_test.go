package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func zeroClock() time.Duration { return 0 }

func readyContext(t *testing.T) (*PersistenceContext, *InMemoryJournal) {
	t.Helper()
	journal := NewInMemoryJournal()
	snapshot := NewInMemorySnapshotStore()
	ctx := NewPersistenceContext("p1", 1, zeroClock)
	require.NoError(t, ctx.BindActorRefs(journal, snapshot))

	var responses []any
	require.NoError(t, ctx.StartRecovery(func(r any) { responses = append(responses, r) }))
	for _, r := range responses {
		_, err := ctx.HandleJournalResponse(r)
		require.NoError(t, err)
		if _, isSnap := r.(LoadSnapshotResult); isSnap {
			replay, err := ctx.HandleSnapshotResponse(r, func(rr any) {
				inv, err := ctx.HandleJournalResponse(rr)
				require.NoError(t, err)
				require.Empty(t, inv)
			})
			require.NoError(t, err)
			_ = replay
		}
	}
	require.Equal(t, ProcessingCommands, ctx.Phase())
	return ctx, journal
}

func TestBindActorRefsOnlyOnce(t *testing.T) {
	ctx := NewPersistenceContext("p1", 1, zeroClock)
	require.NoError(t, ctx.BindActorRefs(NewInMemoryJournal(), NewInMemorySnapshotStore()))
	err := ctx.BindActorRefs(NewInMemoryJournal(), NewInMemorySnapshotStore())
	require.Error(t, err)
}

func TestDeferredHandlerRunsDirectlyWhenBatchEmpty(t *testing.T) {
	ctx, _ := readyContext(t)
	ctx.AddDeferredHandler("ev", false, func(any) {})
	require.Empty(t, ctx.batch)
	require.Len(t, ctx.pending, 1)
	require.True(t, ctx.pending[0].Deferred)
}

func TestDeferredHandlerAfterPersistRunsAfterBatchFlush(t *testing.T) {
	ctx, journal := readyContext(t)

	seq := ctx.AddToEventBatch("persisted", false, nil, func(any) {})
	ctx.AddDeferredHandler("deferred-after", false, func(any) {})
	require.Len(t, ctx.batch, 2)

	var responses []any
	err := ctx.FlushBatch(nil, func(r any) { responses = append(responses, r) })
	require.NoError(t, err)
	require.Equal(t, PersistingEvents, ctx.Phase())

	var invocations []PendingHandlerInvocation
	for _, r := range responses {
		inv, err := ctx.HandleJournalResponse(r)
		require.NoError(t, err)
		invocations = append(invocations, inv...)
	}
	require.Len(t, invocations, 2)
	require.Equal(t, seq, invocations[0].SequenceNr)
	require.True(t, invocations[1].Deferred)
	require.Equal(t, ProcessingCommands, ctx.Phase())
	_ = journal
}

func TestStashGatingWhileStashingPersistInFlight(t *testing.T) {
	ctx, _ := readyContext(t)
	ctx.AddToEventBatch("ev", true, nil, func(any) {})
	require.NoError(t, ctx.FlushBatch(nil, func(any) {}))
	require.True(t, ctx.ShouldStashCommands())
}

func TestInstanceIDMismatchIsIgnored(t *testing.T) {
	ctx, _ := readyContext(t)
	seq := ctx.AddToEventBatch("ev", false, nil, func(any) {})
	require.NoError(t, ctx.FlushBatch(nil, func(any) {}))

	inv, err := ctx.HandleJournalResponse(WriteMessageSuccess{
		Repr:       PersistentRepr{SequenceNr: seq},
		InstanceID: ctx.InstanceID + 1,
	})
	require.NoError(t, err)
	require.Nil(t, inv)
	require.Equal(t, PersistingEvents, ctx.Phase())
}

func TestWriteMessagesFailedZeroCountClearsBatch(t *testing.T) {
	ctx, _ := readyContext(t)
	ctx.AddToEventBatch("ev", false, nil, func(any) {})
	require.NoError(t, ctx.FlushBatch(nil, func(any) {}))

	_, err := ctx.HandleJournalResponse(WriteMessagesFailed{WriteCount: 0, InstanceID: ctx.InstanceID})
	require.Error(t, err)
	require.Equal(t, ProcessingCommands, ctx.Phase())
	require.Empty(t, ctx.pending)
}
