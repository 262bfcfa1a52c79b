package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for action to complete")
	}
}

func TestActionQueueRunsOneAtATimeInOrder(t *testing.T) {
	q := New(nil)
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		ch, errFn := q.Push(context.Background(), func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
		awaitClosed(t, ch)
		require.NoError(t, errFn())
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestActionQueueSuspendsAtHeadOnFailure(t *testing.T) {
	q := New(nil)
	boom := errors.New("boom")
	ch, errFn := q.Push(context.Background(), func(ctx context.Context) error {
		return boom
	})
	awaitClosed(t, ch)
	assert.ErrorIs(t, errFn(), boom)
	assert.True(t, q.Suspended())
	assert.Equal(t, 1, q.Len(), "failed head is not removed from the queue")
}

func TestActionQueueRetrySucceeds(t *testing.T) {
	q := New(nil)
	attempts := 0
	ch, errFn := q.Push(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	awaitClosed(t, ch)
	require.Error(t, errFn())
	require.True(t, q.Suspended())

	require.NoError(t, q.Retry(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, q.Suspended())
	assert.Equal(t, 0, q.Len())
}

func TestActionQueueSkipDropsHead(t *testing.T) {
	q := New(nil)
	ch, _ := q.Push(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	awaitClosed(t, ch)
	require.True(t, q.Suspended())

	require.NoError(t, q.Skip(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Suspended())
}
