package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Settings holds the tuning constants of an index. Zero-valued integer
// fields and a nil Metric are replaced with defaults by New; ML is taken
// as-is because zero is meaningful (a flat, single-layer index).
type Settings struct {
	Metric         DistanceFunc // distance function (default: Euclidean)
	M              int          // target degree on layers >= 1 (default: 16)
	M0             int          // degree cap on layer 0 (default: 2*M)
	EfConstruction int          // beam width during insert (default: 100)
	EfSearch       int          // beam width during query (default: 10)
	ML             float64      // top-layer distribution prefactor
	KeepPruned     bool         // pad pruned neighbours to fill degree
}

// DefaultSettings returns the standard tuning: M=16, M0=32,
// efConstruction=100, efSearch=10, mL=1/ln(M), keepPruned on.
func DefaultSettings() Settings {
	return Settings{
		Metric:         Euclidean,
		M:              16,
		M0:             32,
		EfConstruction: 100,
		EfSearch:       10,
		ML:             1.0 / math.Log(16),
		KeepPruned:     true,
	}
}

// SearchResult is one k-NN hit: the item's label, its descriptor and its
// distance to the query.
type SearchResult struct {
	Name       string
	Descriptor []float64
	Distance   float64
}

// Index is a concurrent in-memory HNSW graph. Inserts and searches may run
// in parallel from any number of goroutines; each neighbour list is
// guarded by its own per-layer lock, and traversals snapshot the id space
// at entry so concurrent inserts never invalidate them.
type Index struct {
	descriptorSize int
	metric         DistanceFunc
	m              int
	m0             int
	efConstruction int
	efSearch       int
	mL             float64
	keepPruned     bool

	entryMu    sync.Mutex
	entryPoint *Node

	idMu  sync.Mutex
	maxID int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an empty index over vectors of the given dimension.
// Zero-valued settings fall back to defaults; negative values are
// rejected with ErrBadSetting.
func New(descriptorSize int, settings Settings) (*Index, error) {
	if descriptorSize <= 0 {
		return nil, fmt.Errorf("%w: descriptor size %d must be positive", ErrBadSetting, descriptorSize)
	}

	if settings.Metric == nil {
		settings.Metric = Euclidean
	}
	if settings.M == 0 {
		settings.M = 16
	}
	if settings.M0 == 0 {
		settings.M0 = 2 * settings.M
	}
	if settings.EfConstruction == 0 {
		settings.EfConstruction = 100
	}
	if settings.EfSearch == 0 {
		settings.EfSearch = 10
	}

	if settings.M < 0 || settings.M0 < 0 {
		return nil, fmt.Errorf("%w: M=%d M0=%d must be positive", ErrBadSetting, settings.M, settings.M0)
	}
	if settings.EfConstruction < 0 || settings.EfSearch < 0 {
		return nil, fmt.Errorf("%w: efConstruction=%d efSearch=%d must be positive",
			ErrBadSetting, settings.EfConstruction, settings.EfSearch)
	}
	if settings.ML < 0 {
		return nil, fmt.Errorf("%w: mL=%g must not be negative", ErrBadSetting, settings.ML)
	}

	return &Index{
		descriptorSize: descriptorSize,
		metric:         settings.Metric,
		m:              settings.M,
		m0:             settings.M0,
		efConstruction: settings.EfConstruction,
		efSearch:       settings.EfSearch,
		mL:             settings.ML,
		keepPruned:     settings.KeepPruned,
		maxID:          -1,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// DescriptorSize returns the vector dimension the index was built for.
func (idx *Index) DescriptorSize() int {
	return idx.descriptorSize
}

// Size returns the number of items inserted so far.
func (idx *Index) Size() int {
	idx.idMu.Lock()
	defer idx.idMu.Unlock()
	return idx.maxID + 1
}

// MaxLayer returns the top layer of the current entry point, or -1 for an
// empty index.
func (idx *Index) MaxLayer() int {
	entry := idx.getEntryPoint()
	if entry == nil {
		return -1
	}
	return entry.topLayer
}

// Settings returns the tuning constants the index runs with.
func (idx *Index) Settings() Settings {
	return Settings{
		Metric:         idx.metric,
		M:              idx.m,
		M0:             idx.m0,
		EfConstruction: idx.efConstruction,
		EfSearch:       idx.efSearch,
		ML:             idx.mL,
		KeepPruned:     idx.keepPruned,
	}
}

// Stats describes the index for diagnostics.
type Stats struct {
	Size           int         `json:"size"`
	DescriptorSize int         `json:"descriptor_size"`
	MaxLayer       int         `json:"max_layer"`
	M              int         `json:"m"`
	M0             int         `json:"m0"`
	EfConstruction int         `json:"ef_construction"`
	EfSearch       int         `json:"ef_search"`
	NodesPerLayer  map[int]int `json:"nodes_per_layer"`
}

// GetStats walks the layer-0 graph and reports per-layer populations along
// with the tuning constants.
func (idx *Index) GetStats() Stats {
	stats := Stats{
		Size:           idx.Size(),
		DescriptorSize: idx.descriptorSize,
		MaxLayer:       idx.MaxLayer(),
		M:              idx.m,
		M0:             idx.m0,
		EfConstruction: idx.efConstruction,
		EfSearch:       idx.efSearch,
		NodesPerLayer:  make(map[int]int),
	}

	for _, node := range idx.collectNodes() {
		for layer := 0; layer <= node.topLayer; layer++ {
			stats.NodesPerLayer[layer]++
		}
	}

	return stats
}

// generateID issues the next dense id under the id lock.
func (idx *Index) generateID() int {
	idx.idMu.Lock()
	defer idx.idMu.Unlock()
	idx.maxID++
	return idx.maxID
}

// randomLayer draws the top layer for a new node: floor(-ln(u) * mL) with
// u uniform in (0,1]. The shared RNG is guarded by its own lock.
func (idx *Index) randomLayer() int {
	idx.rngMu.Lock()
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	idx.rngMu.Unlock()

	return int(-math.Log(u) * idx.mL)
}

func (idx *Index) getEntryPoint() *Node {
	idx.entryMu.Lock()
	defer idx.entryMu.Unlock()
	return idx.entryPoint
}

// setEntryPoint installs a new entry point only if its top layer strictly
// exceeds the current one's, making entry-point replacement monotonic.
func (idx *Index) setEntryPoint(candidate *Node) {
	idx.entryMu.Lock()
	defer idx.entryMu.Unlock()

	if idx.entryPoint != nil && idx.entryPoint.topLayer >= candidate.topLayer {
		return
	}

	idx.entryPoint = candidate
}

// createNode builds a node with a fresh id. Adjacency lists reserve one
// slot beyond the degree bounds for the over-fill-then-prune pattern.
func (idx *Index) createNode(name string, descriptor []float64, topLayer int) *Node {
	return newNode(idx.generateID(), name, descriptor, topLayer+1, idx.m+1, idx.m0+1)
}

// distance applies the index metric to two nodes.
func (idx *Index) distance(a, b *Node) float64 {
	return idx.metric(a.descriptor, b.descriptor)
}

// collectNodes gathers every node reachable from the entry point over
// layer-0 edges. Insert-time connectivity guarantees that covers the whole
// index.
func (idx *Index) collectNodes() []*Node {
	entry := idx.getEntryPoint()
	if entry == nil {
		return nil
	}

	size := idx.Size()
	nodes := make([]*Node, 0, size)
	stack := make([]*Node, 0, size)
	visited := make([]bool, size)

	stack = append(stack, entry)
	visited[entry.id] = true

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, node)

		for _, neighbour := range node.neighbours(0) {
			// Ignore nodes inserted after the size snapshot.
			if neighbour.id >= len(visited) || visited[neighbour.id] {
				continue
			}
			visited[neighbour.id] = true
			stack = append(stack, neighbour)
		}
	}

	return nodes
}
