package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectEmitter(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	emitter := Direct(context.Background(), sink, nil)

	emitter.Emit(sampleEvent("op-1", StageStart))
	emitter.Emit(Event{OperationID: "op-1"})
	emitter.Emit(sampleEvent("op-1", StageDone))

	batches := sink.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, StageStart, batches[0][0].Stage)
	require.Equal(t, StageDone, batches[1][0].Stage)
	require.False(t, sink.Closed())
}
