package hnsw

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

// sortByDistance orders results for assertions; Search itself emits
// heap-internal order.
func sortByDistance(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
}

func bruteForceNearest(query []float64, items []Item, k int, metric DistanceFunc) []string {
	type hit struct {
		name     string
		distance float64
	}

	hits := make([]hit, len(items))
	for i, item := range items {
		hits[i] = hit{name: item.Name, distance: metric(query, item.Descriptor)}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	if k > len(hits) {
		k = len(hits)
	}
	names := make([]string, k)
	for i := 0; i < k; i++ {
		names[i] = hits[i].name
	}
	return names
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := New(3, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	results, err := idx.Search([]float64{0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty index returned %d results, want 0", len(results))
	}
}

func TestSearchSingleItem(t *testing.T) {
	idx, err := New(3, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := idx.Insert("a", []float64{1, 0, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := idx.Search([]float64{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Name != "a" {
		t.Errorf("name = %q, want a", results[0].Name)
	}
	if !almostEqual(results[0].Distance, 0) {
		t.Errorf("distance = %f, want 0", results[0].Distance)
	}
	if len(results[0].Descriptor) != 3 || !almostEqual(results[0].Descriptor[0], 1) {
		t.Errorf("descriptor = %v, want [1 0 0]", results[0].Descriptor)
	}
}

func TestSearchTwoPoints(t *testing.T) {
	idx, err := New(2, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := idx.Insert("a", []float64{0, 0}); err != nil {
		t.Fatalf("Insert a failed: %v", err)
	}
	if err := idx.Insert("b", []float64{3, 4}); err != nil {
		t.Fatalf("Insert b failed: %v", err)
	}

	results, err := idx.Search([]float64{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	sortByDistance(results)

	if results[0].Name != "a" || !almostEqual(results[0].Distance, 0) {
		t.Errorf("nearest = (%q, %f), want (a, 0)", results[0].Name, results[0].Distance)
	}
	if results[1].Name != "b" || !almostEqual(results[1].Distance, 5) {
		t.Errorf("second = (%q, %f), want (b, 5)", results[1].Name, results[1].Distance)
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	idx, err := New(3, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := idx.Search([]float64{0, 0}, 1); !errors.Is(err, ErrBadDimension) {
		t.Errorf("short query: got %v, want ErrBadDimension", err)
	}
	if _, err := idx.Search([]float64{0, 0, 0}, 0); !errors.Is(err, ErrBadSetting) {
		t.Errorf("k=0: got %v, want ErrBadSetting", err)
	}
}

func TestSearchKLargerThanIndex(t *testing.T) {
	idx, err := New(2, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := idx.Insert(fmt.Sprintf("p%d", i), []float64{float64(i), 0}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	results, err := idx.Search([]float64{0, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want all 3", len(results))
	}
}

// Recall against brute force on a small seed set: with the beam wide open
// the approximate search must agree almost everywhere.
func TestSearchRecallAgainstBruteForce(t *testing.T) {
	idx, err := New(4, Settings{
		M:              8,
		M0:             16,
		EfConstruction: 64,
		EfSearch:       64,
		ML:             1.0 / 2.079,
		KeepPruned:     true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	const count = 64
	const k = 3

	items := make([]Item, count)
	for i := 0; i < count; i++ {
		items[i] = Item{Name: fmt.Sprintf("p%d", i), Descriptor: randomVector(rng, 4)}
		if err := idx.Insert(items[i].Name, items[i].Descriptor); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	agreeing := 0
	const queries = 50

	for q := 0; q < queries; q++ {
		query := randomVector(rng, 4)

		results, err := idx.Search(query, k)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		got := make(map[string]bool, len(results))
		for _, r := range results {
			got[r.Name] = true
		}

		exact := bruteForceNearest(query, items, k, Euclidean)
		match := len(results) == len(exact)
		for _, name := range exact {
			if !got[name] {
				match = false
				break
			}
		}
		if match {
			agreeing++
		}
	}

	t.Logf("exact top-%d agreement: %d/%d queries", k, agreeing, queries)

	if agreeing*10 < queries*9 {
		t.Errorf("only %d/%d queries agree with brute force, want >= 90%%", agreeing, queries)
	}
}

func TestSearchDoesNotAliasIndexStorage(t *testing.T) {
	idx, err := New(2, DefaultSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := idx.Insert("a", []float64{1, 2}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := idx.Search([]float64{1, 2}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	results[0].Descriptor[0] = 99

	again, err := idx.Search([]float64{1, 2}, 1)
	if err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	if !almostEqual(again[0].Descriptor[0], 1) {
		t.Error("mutating a result descriptor must not change the index")
	}
}

func BenchmarkSearch(b *testing.B) {
	idx, _ := New(32, DefaultSettings())
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		idx.Insert("p", randomVector(rng, 32))
	}

	queries := make([][]float64, 100)
	for i := range queries {
		queries[i] = randomVector(rng, 32)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Search(queries[i%len(queries)], 10)
	}
}
