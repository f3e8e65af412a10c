package bench

import (
	"math"
	"sort"
	"time"

	"github.com/quantsmith/quantsmith/pkg/types"
)

// Summarize reduces a latency sample set to BenchmarkMetrics. Durations are
// converted to milliseconds before the median and the linearly interpolated
// 95th percentile are taken.
func Summarize(samples []time.Duration) types.BenchmarkMetrics {
	ms := make([]float64, len(samples))
	for i, d := range samples {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(ms)

	return types.BenchmarkMetrics{
		MedianMs: Median(ms),
		P95Ms:    Percentile(ms, 95),
		Samples:  len(samples),
	}
}

// Median of sorted values; the mean of the two middle values for even counts
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Percentile of sorted values with linear interpolation between closest ranks
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
