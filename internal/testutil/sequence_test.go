package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence_StartsAtZero(t *testing.T) {
	seq := NewSequence()
	assert.Equal(t, int64(0), seq.Current())
}

func TestSequence_NextIncrementsMonotonically(t *testing.T) {
	seq := NewSequence()

	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(3), seq.Next())
	assert.Equal(t, int64(3), seq.Current())
}

func TestSequence_RestoreAndReset(t *testing.T) {
	seq := NewSequence()
	seq.Next()
	mark := seq.Current()
	seq.Next()
	seq.Next()

	seq.Restore(mark)
	assert.Equal(t, int64(2), seq.Next())

	seq.Reset()
	assert.Equal(t, int64(1), seq.Next())
}

func TestSequence_ThreadSafe(t *testing.T) {
	seq := NewSequence()
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	seen := make(chan int64, numGoroutines*callsPerGoroutine)
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range callsPerGoroutine {
				seen <- seq.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), seq.Current())
}
