package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/dsyncerr"
)

func TestEmitInvokesAllIgnoringErrors(t *testing.T) {
	n := New(nil)
	var calls []int
	n.On("update", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, 1)
		return nil, errors.New("boom")
	})
	n.On("update", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, 2)
		return nil, nil
	})
	n.Emit(context.Background(), "update")
	assert.Equal(t, []int{1, 2}, calls)
}

func TestSettleContinuesPastFailures(t *testing.T) {
	n := New(nil)
	var calls []int
	n.On("transform", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, 1)
		return nil, errors.New("boom")
	})
	n.On("transform", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, 2)
		return nil, nil
	})
	n.Settle(context.Background(), "transform")
	assert.Equal(t, []int{1, 2}, calls)
}

func TestSeriesAbortsOnFirstFailure(t *testing.T) {
	n := New(nil)
	var calls []int
	n.On("beforeUpdate", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, 1)
		return nil, errors.New("veto")
	})
	n.On("beforeUpdate", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, 2)
		return nil, nil
	})
	err := n.Series(context.Background(), "beforeUpdate")
	require.Error(t, err)
	assert.Equal(t, []int{1}, calls)
}

func TestResolveReturnsFirstTruthyValue(t *testing.T) {
	n := New(nil)
	n.On("lookup", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, nil
	})
	n.On("lookup", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return "found", nil
	})
	n.On("lookup", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		t.Fatal("should not be invoked once a prior listener resolved")
		return nil, nil
	})
	val, err := n.Resolve(context.Background(), "lookup")
	require.NoError(t, err)
	assert.Equal(t, "found", val)
}

func TestResolveRejectsWhenNoListenerProducesAValue(t *testing.T) {
	n := New(nil)
	n.On("lookup", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, nil
	})
	n.On("lookup", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, nil
	})
	val, err := n.Resolve(context.Background(), "lookup")
	require.Error(t, err)
	assert.True(t, dsyncerr.Is(err, dsyncerr.KindNotResolved))
	assert.Nil(t, val)
}

func TestResolveRejectsWithNoListenersRegistered(t *testing.T) {
	n := New(nil)
	val, err := n.Resolve(context.Background(), "lookup")
	require.Error(t, err)
	assert.Nil(t, val)
}

func TestOneDeregistersAfterFirstInvocation(t *testing.T) {
	n := New(nil)
	count := 0
	n.One("ping", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		count++
		return nil, nil
	})
	n.Emit(context.Background(), "ping")
	n.Emit(context.Background(), "ping")
	assert.Equal(t, 1, count)
}

func TestWhitespaceSeparatedAliases(t *testing.T) {
	n := New(nil)
	count := 0
	n.On("update create", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		count++
		return nil, nil
	})
	n.Emit(context.Background(), "update")
	n.Emit(context.Background(), "create")
	assert.Equal(t, 2, count)
}

func TestOffDeregistersAcrossAliases(t *testing.T) {
	n := New(nil)
	count := 0
	token := n.On("a b", nil, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		count++
		return nil, nil
	})
	n.Off(token)
	n.Emit(context.Background(), "a")
	n.Emit(context.Background(), "b")
	assert.Equal(t, 0, count)
}
