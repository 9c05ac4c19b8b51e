package hnsw

import (
	"fmt"
)

// searchAtLayer runs a best-first beam search restricted to one layer,
// leaving the up-to-ef nearest discovered nodes in result.
//
// All scratch state is caller-owned so repeated calls within one operation
// reuse it: candidates and result must be empty, visited must be zeroed
// and sized to candidatesCount. Neighbours whose id falls outside that
// snapshot were inserted concurrently and are skipped; in-flight
// traversals simply do not see the newest points.
//
// With ef=1 the loop degenerates to greedy hill-climbing, which is how the
// upper-layer descent uses it.
func (idx *Index) searchAtLayer(
	target, entry *Node, ef, layer int,
	candidates *nodeQueue, visited []bool, candidatesCount int, result *nodeQueue,
) {
	entryDistance := idx.distance(target, entry)
	candidates.push(entryDistance, entry)
	result.push(entryDistance, entry)
	visited[entry.id] = true

	for !candidates.empty() {
		candidate := candidates.popNearest()

		if candidate.distance > result.furthest().distance {
			break
		}

		candidate.node.layerMu[layer].Lock()

		for _, neighbour := range candidate.node.layers[layer] {
			// A concurrent writer may already have linked the target
			// itself; surfacing it would let insertion pick a self-loop.
			if neighbour == target || neighbour.id >= candidatesCount || visited[neighbour.id] {
				continue
			}

			visited[neighbour.id] = true
			neighbourDistance := idx.distance(target, neighbour)

			if neighbourDistance < result.furthest().distance || result.size() < ef {
				candidates.push(neighbourDistance, neighbour)
				result.push(neighbourDistance, neighbour)

				if result.size() > ef {
					result.popFurthest()
				}
			}
		}

		candidate.node.layerMu[layer].Unlock()
	}
}

// Search returns up to k items nearest to the query vector. An empty index
// yields an empty slice, not an error.
//
// Results are emitted in the result heap's internal iteration order, not
// sorted by distance; callers that need sorted output must sort post-hoc.
func (idx *Index) Search(descriptor []float64, k int) ([]SearchResult, error) {
	if len(descriptor) != idx.descriptorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrBadDimension, len(descriptor), idx.descriptorSize)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k=%d must be at least 1", ErrBadSetting, k)
	}

	entry := idx.getEntryPoint()
	if entry == nil {
		return []SearchResult{}, nil
	}

	query := newQueryNode(descriptor)

	ef := idx.efSearch
	if k > ef {
		ef = k
	}

	candidatesCount := idx.Size()
	visited := make([]bool, candidatesCount)
	candidates := newNodeQueue(candidatesCount)
	nearest := newNodeQueue(ef + 1)

	for layer := entry.topLayer; layer > 0; layer-- {
		idx.searchAtLayer(query, entry, 1, layer, candidates, visited, candidatesCount, nearest)
		entry = nearest.nearest().node

		candidates.clear()
		resetVisited(visited)
		nearest.clear()
	}

	idx.searchAtLayer(query, entry, ef, 0, candidates, visited, candidatesCount, nearest)

	for nearest.size() > k {
		nearest.popFurthest()
	}

	count := k
	if nearest.size() < count {
		count = nearest.size()
	}

	results := make([]SearchResult, 0, count)
	for i := 0; i < count; i++ {
		item := nearest.at(i)
		vec := make([]float64, len(item.node.descriptor))
		copy(vec, item.node.descriptor)
		results = append(results, SearchResult{
			Name:       item.node.name,
			Descriptor: vec,
			Distance:   item.distance,
		})
	}

	return results, nil
}

// resetVisited zeroes the caller-owned visited array between layer
// traversals.
func resetVisited(visited []bool) {
	for i := range visited {
		visited[i] = false
	}
}
