// Package metrics provides counters, latency statistics and Prometheus
// instrumentation for the activity bot.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// DefaultReservoirSize bounds the samples kept for percentiles. A cycle sends a
// handful of transactions per account so a small reservoir is exact in practice.
const DefaultReservoirSize = 1024

// confirmation latency bucket bounds in milliseconds
var confirmBounds = []float64{5_000, 10_000, 30_000, 60_000}

var confirmLabels = []string{"0-5s", "5-10s", "10-30s", "30-60s", "60s+"}

// ConfirmLatency keeps streaming statistics of send to receipt latency.
// Percentiles come from a reservoir sample (Algorithm R).
type ConfirmLatency struct {
	mu sync.RWMutex

	count int64
	sum   float64
	min   float64
	max   float64

	reservoir     []float64
	reservoirSize int
	buckets       []int64

	randState uint64
}

// NewConfirmLatency creates an empty latency tracker.
func NewConfirmLatency() *ConfirmLatency {
	return &ConfirmLatency{
		min:           math.MaxFloat64,
		reservoir:     make([]float64, 0, DefaultReservoirSize),
		reservoirSize: DefaultReservoirSize,
		buckets:       make([]int64, len(confirmLabels)),
		randState:     uint64(time.Now().UnixNano()) | 1,
	}
}

// Observe records one latency.
func (s *ConfirmLatency) Observe(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += ms
	s.min = math.Min(s.min, ms)
	s.max = math.Max(s.max, ms)
	s.buckets[bucketIndex(ms)]++

	if len(s.reservoir) < s.reservoirSize {
		s.reservoir = append(s.reservoir, ms)
		return
	}
	if j := s.next() % uint64(s.count); j < uint64(s.reservoirSize) {
		s.reservoir[j] = ms
	}
}

func bucketIndex(ms float64) int {
	for i, bound := range confirmBounds {
		if ms < bound {
			return i
		}
	}
	return len(confirmBounds)
}

// next is xorshift64*; the caller holds the lock.
func (s *ConfirmLatency) next() uint64 {
	s.randState ^= s.randState >> 12
	s.randState ^= s.randState << 25
	s.randState ^= s.randState >> 27
	return s.randState * 0x2545F4914F6CDD1D
}

// Stats returns the current statistics, or nil when nothing was observed.
func (s *ConfirmLatency) Stats() *types.LatencyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)

	stats := &types.LatencyStats{
		Count: int(s.count),
		Min:   s.min,
		Max:   s.max,
		Avg:   s.sum / float64(s.count),
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
		P90:   percentile(sorted, 0.90),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
	for i, label := range confirmLabels {
		stats.Buckets = append(stats.Buckets, types.LatencyBucket{Label: label, Count: int(s.buckets[i])})
	}
	return stats
}

// percentile interpolates linearly over a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Reset clears all statistics.
func (s *ConfirmLatency) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count = 0
	s.sum = 0
	s.min = math.MaxFloat64
	s.max = 0
	s.reservoir = s.reservoir[:0]
	for i := range s.buckets {
		s.buckets[i] = 0
	}
}

// Count returns the number of samples recorded.
func (s *ConfirmLatency) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
