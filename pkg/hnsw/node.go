package hnsw

import (
	"sync"
)

// Node is one indexed item in the graph: a dense id, an opaque label, the
// descriptor vector, and one unordered neighbour list per layer the node
// exists on (layers 0..topLayer). Each layer's list has its own mutex;
// that is the only lock protecting it.
type Node struct {
	id         int
	name       string
	descriptor []float64
	topLayer   int

	layers  [][]*Node
	layerMu []sync.Mutex
}

// newNode preallocates one adjacency list per layer, reserving capLower
// slots on layer 0 and capUpper on the layers above. The caps are one more
// than the degree bounds so the over-fill-then-prune pattern never
// reallocates.
func newNode(id int, name string, descriptor []float64, layersCount, capUpper, capLower int) *Node {
	n := &Node{
		id:         id,
		name:       name,
		descriptor: descriptor,
		topLayer:   layersCount - 1,
		layers:     make([][]*Node, layersCount),
		layerMu:    make([]sync.Mutex, layersCount),
	}

	if layersCount > 0 {
		n.layers[0] = make([]*Node, 0, capLower)
		for i := 1; i < layersCount; i++ {
			n.layers[i] = make([]*Node, 0, capUpper)
		}
	}

	return n
}

// newQueryNode wraps a query vector in a transient node. Its id and name
// are never used; it only exists so the search kernel has a single target
// type.
func newQueryNode(descriptor []float64) *Node {
	return &Node{id: -1, descriptor: descriptor, topLayer: -1}
}

// addNeighbour appends v to the layer's list under that layer's lock.
// No dedup check; callers must not double-add.
func (n *Node) addNeighbour(v *Node, layer int) {
	n.layerMu[layer].Lock()
	n.layers[layer] = append(n.layers[layer], v)
	n.layerMu[layer].Unlock()
}

// ID returns the node's dense identifier.
func (n *Node) ID() int {
	return n.id
}

// Name returns the node's label.
func (n *Node) Name() string {
	return n.name
}

// Descriptor returns the node's vector. The returned slice is the node's
// own storage; callers must not modify it.
func (n *Node) Descriptor() []float64 {
	return n.descriptor
}

// TopLayer returns the highest layer the node exists on.
func (n *Node) TopLayer() int {
	return n.topLayer
}

// neighbours returns a snapshot of the layer's list, taken under its lock.
func (n *Node) neighbours(layer int) []*Node {
	n.layerMu[layer].Lock()
	out := make([]*Node, len(n.layers[layer]))
	copy(out, n.layers[layer])
	n.layerMu[layer].Unlock()
	return out
}

// degree returns the layer's current list length under its lock.
func (n *Node) degree(layer int) int {
	n.layerMu[layer].Lock()
	d := len(n.layers[layer])
	n.layerMu[layer].Unlock()
	return d
}
