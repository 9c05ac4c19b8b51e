package hnsw

import (
	"fmt"
	"slices"
	"strings"
)

// Insert adds a labelled vector to the index. Safe for concurrent use with
// other inserts and with searches.
//
// The new node draws a random top layer, descends greedily from the entry
// point through the layers above it, then on each layer from its top down
// to 0 runs a beam search, picks diverse neighbours, installs
// bidirectional edges, and re-prunes any neighbourhood the new edges
// overfilled (its own included), removing each pruned edge in both
// directions.
func (idx *Index) Insert(name string, descriptor []float64) error {
	if len(descriptor) != idx.descriptorSize {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d",
			ErrBadDimension, len(descriptor), idx.descriptorSize)
	}
	if strings.ContainsAny(name, ",\n") {
		return fmt.Errorf("%w: %q contains a comma or newline", ErrBadName, name)
	}

	owned := make([]float64, len(descriptor))
	copy(owned, descriptor)

	nodeLayer := idx.randomLayer()
	node := idx.createNode(name, owned, nodeLayer)

	entry := idx.getEntryPoint()
	if entry == nil {
		idx.setEntryPoint(node)
		return nil
	}

	candidatesCount := idx.Size()
	visited := make([]bool, candidatesCount)
	candidates := newNodeQueue(candidatesCount)

	maxM := idx.m
	if idx.m0 > maxM {
		maxM = idx.m0
	}
	maxSearchCount := idx.efConstruction
	if maxM > maxSearchCount {
		maxSearchCount = maxM
	}

	nearest := newNodeQueue(maxSearchCount + 1)
	discarded := make([]*Node, 0, maxSearchCount+1)
	neighbours := make([]*Node, 0, maxM+1)
	sorted := newNodeQueue(maxM + 1)

	maxLayer := entry.topLayer

	for layer := maxLayer; layer > nodeLayer; layer-- {
		idx.searchAtLayer(node, entry, 1, layer, candidates, visited, candidatesCount, nearest)
		entry = nearest.nearest().node

		candidates.clear()
		resetVisited(visited)
		nearest.clear()
	}

	bottom := nodeLayer
	if maxLayer < bottom {
		bottom = maxLayer
	}

	for layer := bottom; layer >= 0; layer-- {
		layerM := idx.m
		if layer == 0 {
			layerM = idx.m0
		}
		ef := idx.efConstruction
		if layerM > ef {
			ef = layerM
		}

		idx.searchAtLayer(node, entry, ef, layer, candidates, visited, candidatesCount, nearest)
		entry = nearest.nearest().node

		// The initial fan-out from the new node is bounded by M on every
		// layer; only the post-hoc pruning below uses the layer-0 cap.
		neighbours = idx.selectNeighbours(node, idx.m, nearest, discarded[:0], neighbours[:0])

		for _, neighbour := range neighbours {
			node.addNeighbour(neighbour, layer)
			neighbour.addNeighbour(node, layer)
		}

		for _, neighbour := range append(neighbours, node) {
			neighbour.layerMu[layer].Lock()
			neighbourhood := neighbour.layers[layer]

			var dropped []*Node
			if len(neighbourhood) > layerM {
				sorted.clear()
				for _, member := range neighbourhood {
					sorted.push(idx.distance(neighbour, member), member)
				}
				before := slices.Clone(neighbourhood)

				neighbour.layers[layer] = idx.selectNeighbours(
					neighbour, layerM, sorted, discarded[:0], neighbourhood[:0])
				for _, member := range before {
					if !slices.Contains(neighbour.layers[layer], member) {
						dropped = append(dropped, member)
					}
				}
			}

			neighbour.layerMu[layer].Unlock()

			// A pruned edge is removed in both directions, one lock at a time.
			for _, member := range dropped {
				member.layerMu[layer].Lock()
				member.layers[layer] = slices.DeleteFunc(member.layers[layer], func(n *Node) bool { return n == neighbour })
				member.layerMu[layer].Unlock()
			}
		}

		candidates.clear()
		resetVisited(visited)
		nearest.clear()
	}

	if nodeLayer > maxLayer {
		idx.setEntryPoint(node)
	}

	return nil
}

// selectNeighbours pops candidates in ascending distance to target and
// accepts each one only if it is closer to the target than to every
// neighbour already chosen, which favours candidates that open new
// directions over ones that crowd an existing neighbour. Rejects land in
// discarded; with keepPruned set, chosen is padded from discarded (in pop
// order) up to count.
//
// Consumes the candidates queue. Appends into chosen and returns it.
func (idx *Index) selectNeighbours(
	target *Node, count int,
	candidates *nodeQueue, discarded, chosen []*Node,
) []*Node {
	for !candidates.empty() && len(chosen) < count {
		candidate := candidates.popNearest()

		closer := true
		for _, picked := range chosen {
			if idx.distance(picked, candidate.node) < candidate.distance {
				closer = false
				break
			}
		}

		if closer {
			chosen = append(chosen, candidate.node)
		} else {
			discarded = append(discarded, candidate.node)
		}
	}

	if idx.keepPruned {
		for i := 0; len(chosen) < count && i < len(discarded); i++ {
			chosen = append(chosen, discarded[i])
		}
	}

	return chosen
}
