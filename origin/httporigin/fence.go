package httporigin

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	failureWindow    = 3 * time.Minute
	failureThreshold = 4
	blockMinBase     = 2 * time.Minute
	blockMaxBase     = 5 * time.Minute
	maxBlockFactor   = 3
)

// fence stops talking to an origin that keeps failing. After failureThreshold
// failures inside failureWindow every request is refused for a random
// duration in [blockMinBase, blockMaxBase], scaled by the number of blocks
// seen so far (capped at maxBlockFactor).
type fence struct {
	mu       sync.Mutex
	failures []time.Time
	until    time.Time
	factor   int

	now    func() time.Time
	jitter func() float64 // [0, 1]
}

func newFence() *fence {
	return &fence{now: time.Now, jitter: rand.Float64}
}

func (f *fence) blocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now().Before(f.until)
}

func (f *fence) ok() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune(f.now())
}

func (f *fence) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	f.prune(now)
	f.failures = append(f.failures, now)
	if len(f.failures) >= failureThreshold {
		f.factor = min(f.factor+1, maxBlockFactor)
		lo := blockMinBase * time.Duration(f.factor)
		hi := blockMaxBase * time.Duration(f.factor)
		f.until = now.Add(lo + time.Duration(float64(hi-lo)*f.jitter()))
	}
}

func (f *fence) prune(now time.Time) {
	cutoff := now.Add(-failureWindow)
	i := 0
	for i < len(f.failures) && f.failures[i].Before(cutoff) {
		i++
	}
	f.failures = f.failures[i:]
}
