package strategy_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/coordinator"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
	"dsync.evalgo.org/source"
	"dsync.evalgo.org/strategy"
)

type recordingBackend struct {
	mu    sync.Mutex
	seen  []op.Transform
	fail  bool
	delay time.Duration
}

func (b *recordingBackend) DoTransform(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return nil, assert.AnError
	}
	b.seen = append(b.seen, t)
	return []op.Transform{t}, nil
}

func (b *recordingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}

func identity() model.Identity { return model.Identity{Type: "planet", ID: "pluto"} }

func TestSyncStrategyBlockingPropagatesBeforeReturning(t *testing.T) {
	sourceBackend := &recordingBackend{}
	targetBackend := &recordingBackend{}

	coord := coordinator.New()
	src := source.New("store", sourceBackend, nil, nil)
	target := source.New("upstream", targetBackend, nil, nil)
	coord.AddNode("store", src)
	coord.AddNode("upstream", target)

	sync := strategy.NewSync(coord, "store", "upstream", true, nil)
	require.NoError(t, sync.Activate())
	defer sync.Deactivate()

	tr := op.New(op.NewReplaceAttribute(identity(), "name", "Pluto"))
	_, err := src.Transform(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, 1, targetBackend.count(), "blocking sync must have applied the transform to the target before Transform returns")
}

func TestSyncStrategyNonBlockingReturnsBeforeTargetSettles(t *testing.T) {
	sourceBackend := &recordingBackend{}
	targetBackend := &recordingBackend{delay: 50 * time.Millisecond}

	coord := coordinator.New()
	src := source.New("store", sourceBackend, nil, nil)
	target := source.New("upstream", targetBackend, nil, nil)
	coord.AddNode("store", src)
	coord.AddNode("upstream", target)

	sync := strategy.NewSync(coord, "store", "upstream", false, nil)
	require.NoError(t, sync.Activate())
	defer sync.Deactivate()

	tr := op.New(op.NewReplaceAttribute(identity(), "name", "Pluto"))
	_, err := src.Transform(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, 0, targetBackend.count(), "non-blocking sync must not have settled yet")

	require.Eventually(t, func() bool {
		return targetBackend.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSyncStrategyBlockingFailurePropagatesError(t *testing.T) {
	sourceBackend := &recordingBackend{}
	targetBackend := &recordingBackend{fail: true}

	coord := coordinator.New()
	src := source.New("store", sourceBackend, nil, nil)
	target := source.New("upstream", targetBackend, nil, nil)
	coord.AddNode("store", src)
	coord.AddNode("upstream", target)

	sync := strategy.NewSync(coord, "store", "upstream", true, nil)
	require.NoError(t, sync.Activate())
	defer sync.Deactivate()

	tr := op.New(op.NewReplaceAttribute(identity(), "name", "Pluto"))
	_, err := src.Transform(context.Background(), tr)
	assert.Error(t, err)
}

func TestSyncStrategyDeactivateStopsPropagation(t *testing.T) {
	sourceBackend := &recordingBackend{}
	targetBackend := &recordingBackend{}

	coord := coordinator.New()
	src := source.New("store", sourceBackend, nil, nil)
	target := source.New("upstream", targetBackend, nil, nil)
	coord.AddNode("store", src)
	coord.AddNode("upstream", target)

	sync := strategy.NewSync(coord, "store", "upstream", true, nil)
	require.NoError(t, sync.Activate())
	sync.Deactivate()

	tr := op.New(op.NewReplaceAttribute(identity(), "name", "Pluto"))
	_, err := src.Transform(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, 0, targetBackend.count())
}
