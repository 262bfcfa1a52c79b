// Package coordinator implements the Coordinator (spec §4.E): a named
// registry grouping sources into nodes. It is pure wiring — strategies
// resolve sources by (nodeName, optional sourceIndex) and never mutate a
// peer's cache directly, only submit transforms through a source's
// public surface (§5 "Shared state").
package coordinator

import (
	"fmt"
	"sync"

	"dsync.evalgo.org/source"
)

// Coordinator holds the registry of named nodes, each grouping one or
// more sources that share a role in the topology (e.g. "store",
// "upstream", "backup").
type Coordinator struct {
	mu    sync.RWMutex
	nodes map[string][]*source.Source
}

// New builds an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{nodes: make(map[string][]*source.Source)}
}

// AddNode registers name as a node grouping sources. Calling AddNode
// again for the same name appends to the existing group rather than
// replacing it, so a node can be assembled incrementally.
func (c *Coordinator) AddNode(name string, sources ...*source.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[name] = append(c.nodes[name], sources...)
}

// Sources returns every source registered under node, in registration
// order.
func (c *Coordinator) Sources(node string) ([]*source.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sources, ok := c.nodes[node]
	if !ok {
		return nil, fmt.Errorf("coordinator: unknown node %q", node)
	}
	out := make([]*source.Source, len(sources))
	copy(out, sources)
	return out, nil
}

// Source returns the source at index within node.
func (c *Coordinator) Source(node string, index int) (*source.Source, error) {
	sources, err := c.Sources(node)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sources) {
		return nil, fmt.Errorf("coordinator: node %q has no source at index %d", node, index)
	}
	return sources[index], nil
}

// NodeNames returns every registered node name, for diagnostics.
func (c *Coordinator) NodeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.nodes))
	for name := range c.nodes {
		names = append(names, name)
	}
	return names
}
