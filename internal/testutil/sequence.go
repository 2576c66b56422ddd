package testutil

import "sync"

// Sequence hands out serial identities for the in-memory store.
//
// Unlike an autoincrement column, a Sequence can be reset for test reuse and
// rewound to a snapshot when a transaction rolls back.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSequence creates a sequence starting at 0. The first call to Next()
// returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the next identity.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the last identity handed out without incrementing.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Restore rewinds the sequence to a value previously read with Current.
func (s *Sequence) Restore(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = v
}

// Reset resets the sequence to 0.
func (s *Sequence) Reset() {
	s.Restore(0)
}
