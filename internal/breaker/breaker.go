// Package breaker counts consecutive backend-degradation errors shared by all
// upload workers and reports when the run should stop.
package breaker

import "sync"

// DefaultThreshold is the number of consecutive transient errors that trips the breaker.
const DefaultThreshold = 5

// Breaker is a consecutive-error counter with a trip threshold. Any success
// resets the whole counter, including errors accumulated by other workers.
type Breaker struct {
	mu        sync.Mutex
	count     int
	threshold int
}

// New returns a breaker that trips once threshold consecutive errors are
// recorded. Non-positive thresholds fall back to DefaultThreshold.
func New(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Breaker{threshold: threshold}
}

// IncrementAndCheck records one transient error and returns the new count.
// tripped is true only for the increment that reaches the threshold, so a
// burst of concurrent failures yields a single trip.
func (b *Breaker) IncrementAndCheck() (count int, tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return b.count, b.count == b.threshold
}

// Reset clears the counter after a successful upload.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.count = 0
	b.mu.Unlock()
}

// Count returns the current consecutive error count.
func (b *Breaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Breaker) Threshold() int { return b.threshold }

// Tripped reports whether the counter is at or above the threshold.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count >= b.threshold
}
