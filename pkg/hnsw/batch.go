package hnsw

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Item is one labelled vector for bulk loading.
type Item struct {
	Name       string
	Descriptor []float64
}

// BatchResult summarizes a bulk load.
type BatchResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// ProgressCallback reports bulk-load progress. It may be called from
// multiple goroutines.
type ProgressCallback func(processed, total int)

const batchWorkers = 8

// BatchInsert loads items through a fixed worker pool of concurrent
// Inserts. Item order in the graph is not deterministic; results are.
func (idx *Index) BatchInsert(items []Item, progress ProgressCallback) *BatchResult {
	result := &BatchResult{
		TotalProcessed: len(items),
	}

	if len(items) == 0 {
		return result
	}

	jobs := make(chan int, len(items))

	var wg sync.WaitGroup
	var successCount, failureCount int64
	var errMu sync.Mutex

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := items[i]

				if err := idx.Insert(item.Name, item.Descriptor); err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("item %d (%s): %w", i, item.Name, err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}

				if progress != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progress(processed, len(items))
				}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)

	return result
}

// BatchInsertSequential loads items one by one, preserving insertion
// order. Useful when reproducible graphs matter more than throughput.
func (idx *Index) BatchInsertSequential(items []Item, progress ProgressCallback) *BatchResult {
	result := &BatchResult{
		TotalProcessed: len(items),
	}

	for i, item := range items {
		if err := idx.Insert(item.Name, item.Descriptor); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("item %d (%s): %w", i, item.Name, err))
			result.FailureCount++
		} else {
			result.SuccessCount++
		}

		if progress != nil {
			progress(i+1, len(items))
		}
	}

	return result
}
