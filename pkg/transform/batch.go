package transform

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const (
	MaxBatchURLs        = 10
	DefaultConcurrency  = 3
	MaxBatchConcurrency = 5
)

// BatchItemResult is the per-URL outcome of RunBatch.
type BatchItemResult struct {
	Index int
	URL   string
	Err   error
	Data  interface{}
}

// BatchSummary aggregates RunBatch's results per spec.md §4.4.
type BatchSummary struct {
	Total              int
	Successful         int
	Failed             int
	Cached             int
	TotalContentBlocks int
}

// RunBatch fetches up to MaxBatchURLs URLs concurrently (bounded by
// concurrency; a non-positive value uses DefaultConcurrency and larger
// values are capped at MaxBatchConcurrency). Each task is isolated
// unless continueOnError is false, in which case the first observed failure
// stops any task that has not yet started.
func RunBatch(ctx context.Context, urls []string, concurrency int, continueOnError bool, task func(ctx context.Context, index int, url string) (interface{}, error)) []BatchItemResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > MaxBatchConcurrency {
		concurrency = MaxBatchConcurrency
	}
	if len(urls) > MaxBatchURLs {
		urls = urls[:MaxBatchURLs]
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]BatchItemResult, len(urls))
	var failed int32
	var wg sync.WaitGroup

	for i, u := range urls {
		if !continueOnError && atomic.LoadInt32(&failed) > 0 {
			results[i] = BatchItemResult{Index: i, URL: u, Err: ctx.Err()}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = BatchItemResult{Index: i, URL: u, Err: err}
			continue
		}

		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			defer sem.Release(1)

			if !continueOnError && atomic.LoadInt32(&failed) > 0 {
				results[i] = BatchItemResult{Index: i, URL: u, Err: ctx.Err()}
				return
			}

			data, err := task(ctx, i, u)
			if err != nil {
				atomic.AddInt32(&failed, 1)
			}
			results[i] = BatchItemResult{Index: i, URL: u, Err: err, Data: data}
		}(i, u)
	}

	wg.Wait()
	return results
}

// Summarize builds a BatchSummary from RunBatch's results. isCached and
// contentBlocks extract per-item bookkeeping from each item's Data.
func Summarize(results []BatchItemResult, isCached func(interface{}) bool, contentBlocks func(interface{}) int) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		s.Successful++
		if isCached != nil && isCached(r.Data) {
			s.Cached++
		}
		if contentBlocks != nil {
			s.TotalContentBlocks += contentBlocks(r.Data)
		}
	}
	return s
}
