package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestDurableLog(t *testing.T) *DurableLog {
	t.Helper()
	mr := miniredis.RunT(t)
	log, err := NewDurableLog(context.Background(), DurableConfig{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestDurableLogRecordsAndCompletesInOrder(t *testing.T) {
	log := newTestDurableLog(t)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, Job{ActionID: "a1", QueueName: "planets", EnqueuedAt: time.Now()}))
	require.NoError(t, log.Record(ctx, Job{ActionID: "a2", QueueName: "planets", EnqueuedAt: time.Now()}))

	pending, err := log.Pending(ctx, "planets")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "a1", pending[0].ActionID)
	require.Equal(t, "a2", pending[1].ActionID)

	require.NoError(t, log.Complete(ctx, "planets"))
	pending, err = log.Pending(ctx, "planets")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a2", pending[0].ActionID)
}

func TestDurableLogCompleteOnEmptyQueueIsNoop(t *testing.T) {
	log := newTestDurableLog(t)
	require.NoError(t, log.Complete(context.Background(), "empty"))
}
