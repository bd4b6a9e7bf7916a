package fetch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
)

// DefaultBatchSize bounds how many fetches run concurrently.
const DefaultBatchSize = 5

// Batcher fetches an ordered list of assets in fixed-size batches. Batches
// run strictly one after another; within a batch up to Size fetches run
// concurrently and all settle before the next batch starts. This bounds
// simultaneous outbound connections and local file-descriptor pressure while
// still overlapping network latency.
type Batcher struct {
	Fetcher *Fetcher

	// Size is the batch size. Defaults to DefaultBatchSize.
	Size int
}

// FetchAll downloads all assets and returns one result per asset, in the
// original input order. Individual failures never cancel the rest of the
// batch.
func (b *Batcher) FetchAll(ctx context.Context, assets []asset.Descriptor) []Result {
	size := b.Size
	if size < 1 {
		size = DefaultBatchSize
	}

	results := make([]Result, len(assets))
	for start := 0; start < len(assets); start += size {
		end := min(start+size, len(assets))
		log.Debug().Int("from", start).Int("to", end-1).Msg("Fetching batch")

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = b.Fetcher.Fetch(ctx, i, assets[i])
			}(i)
		}
		wg.Wait()
	}
	return results
}

// Successes returns the results that fetched cleanly, preserving input order.
func Successes(results []Result) []Result {
	var ok []Result
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		}
	}
	return ok
}

// Failures returns the results that did not fetch, preserving input order.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}
