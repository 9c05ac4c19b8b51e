package hnsw

import (
	"container/heap"
)

// nodeDistance pairs a node with its distance to the current target.
type nodeDistance struct {
	distance float64
	node     *Node
}

// nodeHeap is the array-backed binary min-heap underneath nodeQueue.
type nodeHeap []nodeDistance

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(nodeDistance)) }

func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// nodeQueue is a bounded priority collection over (distance, node) pairs,
// ordered by ascending distance so the nearest element sits at the root.
//
// furthest finds the true maximum by scanning the leaf half of the backing
// array (a binary min-heap always keeps its maximum in a leaf), so its
// distance upper-bounds every enqueued distance; popFurthest removes that
// element and restores the heap property.
//
// Not thread-safe; each traversal owns its own instances.
type nodeQueue struct {
	items nodeHeap
}

func newNodeQueue(capacity int) *nodeQueue {
	return &nodeQueue{items: make(nodeHeap, 0, capacity)}
}

func (q *nodeQueue) push(distance float64, node *Node) {
	heap.Push(&q.items, nodeDistance{distance: distance, node: node})
}

// nearest peeks the minimum element.
func (q *nodeQueue) nearest() nodeDistance {
	return q.items[0]
}

// popNearest removes and returns the minimum element.
func (q *nodeQueue) popNearest() nodeDistance {
	return heap.Pop(&q.items).(nodeDistance)
}

// furthest peeks the element with the largest distance; its distance
// upper-bounds every enqueued distance.
func (q *nodeQueue) furthest() nodeDistance {
	return q.items[q.furthestIndex()]
}

// popFurthest removes the element with the largest distance.
func (q *nodeQueue) popFurthest() {
	heap.Remove(&q.items, q.furthestIndex())
}

// furthestIndex scans the leaves, where a min-heap keeps its maximum.
func (q *nodeQueue) furthestIndex() int {
	worst := len(q.items) / 2
	for i := worst + 1; i < len(q.items); i++ {
		if q.items[i].distance > q.items[worst].distance {
			worst = i
		}
	}
	return worst
}

func (q *nodeQueue) size() int {
	return len(q.items)
}

func (q *nodeQueue) empty() bool {
	return len(q.items) == 0
}

func (q *nodeQueue) clear() {
	q.items = q.items[:0]
}

// at exposes the backing array for heap-order iteration.
func (q *nodeQueue) at(i int) nodeDistance {
	return q.items[i]
}
