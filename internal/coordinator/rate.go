package coordinator

import (
	"sync"
	"time"
)

// rateTracker implements the §4.6 current_rate() sliding-window estimate
// over the last N completions.
type rateTracker struct {
	mu        sync.Mutex
	window    int
	timestamps []time.Time
}

func newRateTracker(window int) *rateTracker {
	return &rateTracker{window: window}
}

func (r *rateTracker) recordCompletion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timestamps = append(r.timestamps, time.Now())
	if len(r.timestamps) > r.window {
		r.timestamps = r.timestamps[len(r.timestamps)-r.window:]
	}
}

// current returns frames-per-second over the tracked window, or 0 if fewer
// than two completions have been recorded yet.
func (r *rateTracker) current() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timestamps) < 2 {
		return 0
	}
	span := r.timestamps[len(r.timestamps)-1].Sub(r.timestamps[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(r.timestamps)-1) / span
}
