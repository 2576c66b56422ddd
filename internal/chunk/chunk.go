// Package chunk partitions ordered collections into bounded, contiguous steps.
//
// Every stepwise bulk operation splits its input through Split, so create,
// update and delete share one batching contract: chunks appear in input
// order, each holds at most step items, only the last may be short, and an
// empty input yields no chunks at all.
package chunk

import (
	"iter"

	"github.com/roach88/bulkstep/internal/model"
)

// Split returns a lazy sequence of (index, chunk) pairs over items.
// Chunks are sub-slices of items with their capacity clipped, so appending
// to a chunk never writes into the next one.
//
// A step below 1 is a ConfigurationError.
func Split[T any](items []T, step int) (iter.Seq2[int, []T], error) {
	if step < 1 {
		return nil, model.NewConfigurationError("step must be a positive integer, got %d", step)
	}
	return func(yield func(int, []T) bool) {
		for i, start := 0, 0; start < len(items); i, start = i+1, start+step {
			end := min(start+step, len(items))
			if !yield(i, items[start:end:end]) {
				return
			}
		}
	}, nil
}

// Count returns the number of chunks Split yields for n items: ceil(n/step).
func Count(n, step int) int {
	if n <= 0 || step < 1 {
		return 0
	}
	return (n + step - 1) / step
}

// Collect materializes every chunk of items.
func Collect[T any](items []T, step int) ([][]T, error) {
	seq, err := Split(items, step)
	if err != nil {
		return nil, err
	}
	chunks := make([][]T, 0, Count(len(items), step))
	for _, c := range seq {
		chunks = append(chunks, c)
	}
	return chunks, nil
}
