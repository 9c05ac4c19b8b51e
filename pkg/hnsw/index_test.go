package hnsw

import (
	"errors"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	idx, err := New(3, Settings{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if idx.m != 16 {
		t.Errorf("M = %d, want 16", idx.m)
	}
	if idx.m0 != 32 {
		t.Errorf("M0 = %d, want 32", idx.m0)
	}
	if idx.efConstruction != 100 {
		t.Errorf("efConstruction = %d, want 100", idx.efConstruction)
	}
	if idx.efSearch != 10 {
		t.Errorf("efSearch = %d, want 10", idx.efSearch)
	}
	if idx.Size() != 0 {
		t.Errorf("new index size = %d, want 0", idx.Size())
	}
	if idx.MaxLayer() != -1 {
		t.Errorf("new index max layer = %d, want -1", idx.MaxLayer())
	}
	if idx.DescriptorSize() != 3 {
		t.Errorf("descriptor size = %d, want 3", idx.DescriptorSize())
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name     string
		dim      int
		settings Settings
	}{
		{"zero dimension", 0, Settings{}},
		{"negative dimension", -1, Settings{}},
		{"negative M", 3, Settings{M: -4}},
		{"negative M0", 3, Settings{M0: -1}},
		{"negative efConstruction", 3, Settings{EfConstruction: -10}},
		{"negative efSearch", 3, Settings{EfSearch: -1}},
		{"negative mL", 3, Settings{ML: -0.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.dim, tc.settings); !errors.Is(err, ErrBadSetting) {
				t.Errorf("got %v, want ErrBadSetting", err)
			}
		})
	}
}

func TestNewAllowsZeroML(t *testing.T) {
	idx, err := New(3, Settings{ML: 0})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// mL = 0 degenerates to a flat index: every draw lands on layer 0.
	for i := 0; i < 1000; i++ {
		if layer := idx.randomLayer(); layer != 0 {
			t.Fatalf("flat index drew layer %d", layer)
		}
	}
}

func TestRandomLayerDistribution(t *testing.T) {
	idx, err := New(3, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	counts := make(map[int]int)
	iterations := 10000

	for i := 0; i < iterations; i++ {
		counts[idx.randomLayer()]++
	}

	// With mL = 1/ln(16) roughly 15/16 of the draws land on layer 0.
	if counts[0] < iterations/2 {
		t.Errorf("layer 0 has %d of %d draws, want a clear majority", counts[0], iterations)
	}

	// Populations must decay with height (allow slack for randomness).
	for layer := 1; layer <= 3; layer++ {
		if float64(counts[layer]) > float64(counts[layer-1])*1.2 {
			t.Errorf("layer %d (%d draws) outnumbers layer %d (%d draws)",
				layer, counts[layer], layer-1, counts[layer-1])
		}
	}
}

func TestNodePreallocation(t *testing.T) {
	n := newNode(7, "a", []float64{1, 2}, 3, 17, 33)

	if n.ID() != 7 || n.Name() != "a" || n.TopLayer() != 2 {
		t.Errorf("node fields wrong: id=%d name=%q topLayer=%d", n.ID(), n.Name(), n.TopLayer())
	}
	if len(n.layers) != 3 || len(n.layerMu) != 3 {
		t.Fatalf("want 3 layers with locks, got %d/%d", len(n.layers), len(n.layerMu))
	}
	if cap(n.layers[0]) != 33 {
		t.Errorf("layer 0 capacity = %d, want 33", cap(n.layers[0]))
	}
	if cap(n.layers[1]) != 17 || cap(n.layers[2]) != 17 {
		t.Errorf("upper layer capacities = %d/%d, want 17", cap(n.layers[1]), cap(n.layers[2]))
	}
}

func TestAddNeighbour(t *testing.T) {
	a := newNode(0, "a", []float64{0}, 2, 5, 9)
	b := newNode(1, "b", []float64{1}, 1, 5, 9)

	a.addNeighbour(b, 0)
	a.addNeighbour(b, 1)

	if a.degree(0) != 1 || a.degree(1) != 1 {
		t.Errorf("degrees = %d/%d, want 1/1", a.degree(0), a.degree(1))
	}
	if a.neighbours(0)[0] != b {
		t.Error("layer 0 neighbour is not b")
	}
	if b.degree(0) != 0 {
		t.Error("addNeighbour must not install the reverse edge")
	}
}

func TestGetStats(t *testing.T) {
	idx, err := New(2, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stats := idx.GetStats()
	if stats.Size != 0 || stats.MaxLayer != -1 || len(stats.NodesPerLayer) != 0 {
		t.Errorf("empty index stats wrong: %+v", stats)
	}

	for i := 0; i < 20; i++ {
		if err := idx.Insert("n", []float64{float64(i), 0}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	stats = idx.GetStats()
	if stats.Size != 20 {
		t.Errorf("size = %d, want 20", stats.Size)
	}
	if stats.NodesPerLayer[0] != 20 {
		t.Errorf("layer 0 population = %d, want 20", stats.NodesPerLayer[0])
	}
}

func BenchmarkRandomLayer(b *testing.B) {
	idx, _ := New(3, DefaultSettings())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.randomLayer()
	}
}
