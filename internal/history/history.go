// Package history provides read-only access to historical execution data.
// How the data is populated is up to the caller; the ranking engine only
// ever reads it.
package history

import "sync"

// Reader looks up historical signals for a single test case. Both methods
// report whether the case is known at all; unknown cases receive neutral
// default scores during ranking.
type Reader interface {
	// FailureRate returns the fraction of past executions that did not pass.
	FailureRate(testCaseID string) (float64, bool)
	// PerformanceScore returns a normalized [0,1] historical score.
	PerformanceScore(testCaseID string) (float64, bool)
}

type Entry struct {
	FailureRate      float64
	PerformanceScore float64
}

// MemoryReader is a map-backed Reader, used at bootstrap and in tests.
type MemoryReader struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{entries: map[string]Entry{}}
}

func (r *MemoryReader) Set(testCaseID string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[testCaseID] = e
}

func (r *MemoryReader) FailureRate(testCaseID string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[testCaseID]
	return e.FailureRate, ok
}

func (r *MemoryReader) PerformanceScore(testCaseID string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[testCaseID]
	return e.PerformanceScore, ok
}
