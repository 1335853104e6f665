// Package stats keeps rolling latency windows for backend round trips.
package stats

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at     time.Time
	millis int64
	failed bool
}

// Window aggregates the samples of one operation still inside the window.
type Window struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// Latency records durations per operation name ("load", "save") and drops
// samples older than maxAge on every read or write.
type Latency struct {
	mu     sync.Mutex
	ops    map[string][]sample
	maxAge time.Duration
	now    func() time.Time
}

func NewLatency(maxAge time.Duration) *Latency {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Latency{
		ops:    make(map[string][]sample),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Record adds one round trip. A non-nil err counts as a failure but the
// duration still contributes to the percentiles.
func (l *Latency) Record(op string, d time.Duration, err error) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops[op] = append(prune(l.ops[op], now.Add(-l.maxAge)), sample{at: now, millis: ms, failed: err != nil})
}

// Snapshot returns one Window per operation seen within maxAge.
func (l *Latency) Snapshot() map[string]Window {
	cutoff := l.now().Add(-l.maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Window, len(l.ops))
	for op, samples := range l.ops {
		samples = prune(samples, cutoff)
		l.ops[op] = samples
		if len(samples) == 0 {
			continue
		}
		out[op] = aggregate(samples)
	}
	return out
}

func aggregate(samples []sample) Window {
	values := make([]int64, len(samples))
	var sum int64
	w := Window{Count: len(samples)}
	for i, s := range samples {
		values[i] = s.millis
		sum += s.millis
		if s.failed {
			w.Failures++
		}
	}
	slices.Sort(values)

	w.MinMs = values[0]
	w.MaxMs = values[len(values)-1]
	w.AvgMs = float64(sum) / float64(len(values))
	w.P50Ms = percentile(values, 50)
	w.P95Ms = percentile(values, 95)
	w.P99Ms = percentile(values, 99)
	return w
}

// prune filters in place, keeping samples at or after cutoff.
func prune(samples []sample, cutoff time.Time) []sample {
	kept := samples[:0]
	for _, s := range samples {
		if !s.at.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	a, b := float64(sorted[lo]), float64(sorted[lo+1])
	return a + (b-a)*frac
}
