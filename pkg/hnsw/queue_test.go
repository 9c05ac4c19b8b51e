package hnsw

import (
	"math/rand"
	"sort"
	"testing"
)

func TestQueuePopNearestOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := newNodeQueue(64)

	distances := make([]float64, 50)
	for i := range distances {
		distances[i] = rng.Float64()
		q.push(distances[i], &Node{id: i})
	}

	sort.Float64s(distances)

	for i, want := range distances {
		if q.empty() {
			t.Fatalf("queue empty after %d pops, want %d elements", i, len(distances))
		}

		got := q.popNearest()
		if !almostEqual(got.distance, want) {
			t.Fatalf("pop %d: got distance %f, want %f", i, got.distance, want)
		}
	}

	if !q.empty() {
		t.Errorf("queue should be empty, has %d elements", q.size())
	}
}

func TestQueueNearestPeeksMinimum(t *testing.T) {
	q := newNodeQueue(8)
	q.push(3, &Node{id: 0})
	q.push(1, &Node{id: 1})
	q.push(2, &Node{id: 2})

	if got := q.nearest().distance; !almostEqual(got, 1) {
		t.Errorf("nearest = %f, want 1", got)
	}

	if q.size() != 3 {
		t.Errorf("nearest must not remove; size = %d", q.size())
	}
}

// furthest returns the largest enqueued distance, so it can never fall
// below the minimum.
func TestQueueFurthestBoundsNearest(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	q := newNodeQueue(64)

	for i := 0; i < 40; i++ {
		q.push(rng.Float64(), &Node{id: i})

		if q.furthest().distance < q.nearest().distance {
			t.Fatalf("furthest %f below nearest %f after %d pushes",
				q.furthest().distance, q.nearest().distance, i+1)
		}
	}
}

func TestQueuePopFurthestKeepsHeapOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	q := newNodeQueue(64)

	for i := 0; i < 30; i++ {
		q.push(rng.Float64(), &Node{id: i})
	}

	for q.size() > 10 {
		q.popFurthest()
	}

	// Remaining elements must still drain in ascending order.
	prev := -1.0
	for !q.empty() {
		item := q.popNearest()
		if item.distance < prev {
			t.Fatalf("heap order broken after popFurthest: %f after %f", item.distance, prev)
		}
		prev = item.distance
	}
}

func TestQueueClear(t *testing.T) {
	q := newNodeQueue(8)
	q.push(1, &Node{id: 0})
	q.push(2, &Node{id: 1})

	q.clear()

	if !q.empty() || q.size() != 0 {
		t.Errorf("queue not empty after clear")
	}

	q.push(5, &Node{id: 2})
	if !almostEqual(q.nearest().distance, 5) {
		t.Errorf("queue unusable after clear")
	}
}
