package preview

import (
	"sync"
	"time"
)

// rollingRate tracks completions over a sliding window to derive a
// throughput figure stable enough for an ETA display.
type rollingRate struct {
	mu      sync.Mutex
	window  time.Duration
	samples []rateSample
}

type rateSample struct {
	at    time.Time
	count int
}

func newRollingRate(window time.Duration) *rollingRate {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &rollingRate{window: window}
}

// Add records count completions at the current time.
func (r *rollingRate) Add(count int) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, rateSample{at: now, count: count})
	r.trim(now)
}

// PerSecond returns the current completion rate.
func (r *rollingRate) PerSecond() float64 {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trim(now)
	if len(r.samples) == 0 {
		return 0
	}
	total := 0
	for _, s := range r.samples {
		total += s.count
	}
	elapsed := now.Sub(r.samples[0].at).Seconds()
	if elapsed < 0.25 {
		elapsed = 0.25
	}
	return float64(total) / elapsed
}

// ETASeconds estimates time to finish remaining items, or -1 when the rate
// is still unknown.
func (r *rollingRate) ETASeconds(remaining int) float64 {
	if remaining <= 0 {
		return 0
	}
	rate := r.PerSecond()
	if rate <= 0 {
		return -1
	}
	return float64(remaining) / rate
}

func (r *rollingRate) trim(now time.Time) {
	cutoff := now.Add(-r.window)
	idx := 0
	for idx < len(r.samples) && r.samples[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		r.samples = r.samples[idx:]
	}
}
