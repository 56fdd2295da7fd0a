package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent pipeline durations and
// reports percentiles over it. Once the ring is full the oldest sample is
// overwritten, so the percentiles always describe recent behavior.
type LatencyTracker struct {
	mu   sync.RWMutex
	ring []time.Duration
	next int
	full bool
}

// NewLatencyTracker creates a tracker holding up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, size)}
}

// Observe records one incident's end-to-end duration.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next++
	if l.next == len(l.ring) {
		l.next = 0
		l.full = true
	}
}

// Count reports how many samples the tracker currently holds.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.countLocked()
}

// Percentile returns the duration at percentile p (0 to 100), or zero when
// nothing has been observed yet.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	samples := append([]time.Duration(nil), l.ring[:l.countLocked()]...)
	l.mu.RUnlock()

	if len(samples) == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return samples[int(p/100*float64(len(samples)-1))]
}

func (l *LatencyTracker) countLocked() int {
	if l.full {
		return len(l.ring)
	}
	return l.next
}
