package strategy

import (
	"context"
	"fmt"
	"sync"

	"dsync.evalgo.org/coordinator"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/op"
	"dsync.evalgo.org/source"
)

// SourceEvent names the egress hook RequestStrategy listens on.
type SourceEvent string

const (
	BeforeQuery  SourceEvent = "beforeQuery"
	BeforeUpdate SourceEvent = "beforeUpdate"
)

// TargetRequest names the call RequestStrategy forwards to the target.
type TargetRequest string

const (
	RequestFetch  TargetRequest = "fetch"
	RequestUpdate TargetRequest = "update"
)

// RequestStrategy forwards a blocking RPC-style query/transform from one
// node to another (spec §4.G). It installs a listener on SourceEvent for
// every source of SourceNode; the listener runs inside that source's
// series emit discipline, so the listener's own error aborts the
// source's operation regardless of Blocking — Blocking instead governs
// whether the listener *waits* for the target call to finish before the
// series proceeds, vs. dispatching it in the background.
type RequestStrategy struct {
	SourceNode    string
	TargetNode    string
	SourceEvent   SourceEvent
	TargetRequest TargetRequest
	Blocking bool
	// SyncResults applies the target's returned transforms back onto the
	// originating source once the target call resolves, safe to combine
	// with Blocking=true: the sync-back call goes through
	// originatingSource.Transform, which runs on that source's
	// TransformQueue rather than the Queue serializing the in-flight
	// beforeQuery/beforeUpdate action that is invoking this listener, so
	// the two queues can make progress independently instead of one
	// waiting on itself.
	SyncResults bool

	coord *coordinator.Coordinator
	log   *dsynclog.Logger

	mu     sync.Mutex
	tokens map[*source.Source]uint64
}

// NewRequest builds a RequestStrategy wired to coord. log may be nil.
func NewRequest(coord *coordinator.Coordinator, sourceNode, targetNode string, sourceEvent SourceEvent, targetRequest TargetRequest, blocking, syncResults bool, log *dsynclog.Logger) *RequestStrategy {
	return &RequestStrategy{
		SourceNode:    sourceNode,
		TargetNode:    targetNode,
		SourceEvent:   sourceEvent,
		TargetRequest: targetRequest,
		Blocking:      blocking,
		SyncResults:   syncResults,
		coord:         coord,
		log:           log,
		tokens:        make(map[*source.Source]uint64),
	}
}

// Activate installs the SourceEvent listener on every source of
// SourceNode.
func (r *RequestStrategy) Activate() error {
	sources, err := r.coord.Sources(r.SourceNode)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range sources {
		if _, already := r.tokens[src]; already {
			continue
		}
		originatingSource := src
		token := src.Events.On(string(r.SourceEvent), r, func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return r.handle(ctx, originatingSource, args)
		})
		r.tokens[src] = token
	}
	return nil
}

// Deactivate removes every listener this strategy installed.
func (r *RequestStrategy) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for src, token := range r.tokens {
		src.Events.Off(token)
		delete(r.tokens, src)
	}
}

func (r *RequestStrategy) handle(ctx context.Context, originatingSource *source.Source, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("strategy: %s fired with no argument", r.SourceEvent)
	}
	arg := args[0]

	target, err := r.coord.Source(r.TargetNode, 0)
	if err != nil {
		return nil, err
	}

	call := func(ctx context.Context) (interface{}, error) {
		switch r.TargetRequest {
		case RequestFetch:
			return target.Fetch(ctx, arg)
		case RequestUpdate:
			t, ok := arg.(op.Transform)
			if !ok {
				return nil, fmt.Errorf("strategy: targetRequest update requires an op.Transform argument, got %T", arg)
			}
			return target.Update(ctx, t)
		default:
			return nil, fmt.Errorf("strategy: unknown targetRequest %q", r.TargetRequest)
		}
	}

	if r.Blocking {
		result, err := call(ctx)
		if err != nil {
			return nil, err
		}
		if r.SyncResults {
			if err := r.syncBack(ctx, originatingSource, result); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	go func() {
		bg := context.Background()
		result, err := call(bg)
		if err != nil {
			if r.log != nil {
				r.log.WithField("target_node", r.TargetNode).WithError(err).Warn("non-blocking request failed")
			}
			return
		}
		if r.SyncResults {
			if err := r.syncBack(bg, originatingSource, result); err != nil && r.log != nil {
				r.log.WithError(err).Warn("non-blocking syncResults failed")
			}
		}
	}()
	return nil, nil
}

// syncBack applies transforms returned by the target call back onto
// originatingSource, establishing eventual consistency from target to
// source (spec §4.G step 3).
func (r *RequestStrategy) syncBack(ctx context.Context, originatingSource *source.Source, result interface{}) error {
	transforms, ok := result.([]op.Transform)
	if !ok {
		return nil
	}
	for _, t := range transforms {
		if _, err := originatingSource.Transform(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
