// Package strategy implements the declarative wiring between coordinator
// nodes (spec §4.F/§4.G): SyncStrategy fans applied transforms out to a
// target node non-blockingly or blockingly, RequestStrategy forwards a
// blocking RPC-style query/transform from one node to another with
// optional result sync-back. Both install/tear down listeners on a
// source's Notifier the way the teacher's composite repository installs
// and tears down best-effort fan-out across backends.
package strategy

import (
	"context"
	"sync"

	"dsync.evalgo.org/coordinator"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/op"
	"dsync.evalgo.org/source"
)

// SyncStrategy installs a "transform" listener on every source of
// SourceNode; on each applied transform it calls target.Transform for
// every source of TargetNode (spec §4.F).
type SyncStrategy struct {
	SourceNode string
	TargetNode string
	// Blocking governs whether the listener awaits every target's
	// Transform call before returning (so the emitting source's
	// transform settles only once the sync has too, per I5) or fires
	// the propagation in the background and returns immediately.
	Blocking bool

	coord *coordinator.Coordinator
	log   *dsynclog.Logger

	mu     sync.Mutex
	tokens map[*source.Source]uint64
}

// NewSync builds a SyncStrategy wired to coord. log may be nil.
func NewSync(coord *coordinator.Coordinator, sourceNode, targetNode string, blocking bool, log *dsynclog.Logger) *SyncStrategy {
	return &SyncStrategy{
		SourceNode: sourceNode,
		TargetNode: targetNode,
		Blocking:   blocking,
		coord:      coord,
		log:        log,
		tokens:     make(map[*source.Source]uint64),
	}
}

// Activate installs the "transform" listener on every source of
// SourceNode.
func (s *SyncStrategy) Activate() error {
	sources, err := s.coord.Sources(s.SourceNode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range sources {
		if _, already := s.tokens[src]; already {
			continue
		}
		token := src.Events.On("transform", s, s.listener)
		s.tokens[src] = token
	}
	return nil
}

// Deactivate removes every listener this strategy installed.
func (s *SyncStrategy) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for src, token := range s.tokens {
		src.Events.Off(token)
		delete(s.tokens, src)
	}
}

func (s *SyncStrategy) listener(ctx context.Context, args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	t, ok := args[0].(op.Transform)
	if !ok {
		return nil, nil
	}

	targets, err := s.coord.Sources(s.TargetNode)
	if err != nil {
		return nil, err
	}

	if s.Blocking {
		for _, target := range targets {
			if _, err := target.Transform(ctx, t); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	go func() {
		bg := context.Background()
		for _, target := range targets {
			if _, err := target.Transform(bg, t); err != nil && s.log != nil {
				s.log.WithField("target_node", s.TargetNode).WithError(err).
					Warn("non-blocking sync failed, transform not applied to target")
			}
		}
	}()
	return nil, nil
}
