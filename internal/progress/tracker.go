// Package progress tracks crawl completion and estimates time remaining from
// a moving window of recent per-item durations.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// windowSize caps the number of recent durations the estimate is built on,
// so early slow items stop skewing the ETA.
const windowSize = 100

// Stats is a point-in-time view of the tracker.
type Stats struct {
	Total   int
	Done    int
	Percent float64
	Speed   float64 // items per minute
	Elapsed time.Duration
	ETA     time.Duration
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	total   int
	done    int
	started time.Time
	last    time.Time
	window  []time.Duration
	now     func() time.Time
}

func NewTracker(total int) *Tracker {
	return &Tracker{total: total, now: time.Now}
}

// Start marks the beginning of timed work. Recording before Start is allowed;
// the first Record then starts the clock.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = t.now()
	t.last = t.started
}

// SetTotal adjusts the expected item count, e.g. after resume or truncation.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
}

// Record counts one completed item and folds its duration into the window.
func (t *Tracker) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.started.IsZero() {
		t.started = now
		t.last = now
	}
	t.done++
	t.window = append(t.window, now.Sub(t.last))
	if len(t.window) > windowSize {
		t.window = t.window[1:]
	}
	t.last = now
}

// Skip counts an item as already complete without timing it, used when
// resuming past checkpointed work.
func (t *Tracker) Skip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Total: t.total, Done: t.done}
	if !t.started.IsZero() {
		s.Elapsed = t.now().Sub(t.started)
	}
	if t.total > 0 {
		s.Percent = float64(t.done) / float64(t.total) * 100
	}
	if avg := t.windowAverage(); avg > 0 {
		s.Speed = float64(time.Minute) / float64(avg)
		if remaining := t.total - t.done; remaining > 0 {
			s.ETA = time.Duration(remaining) * avg
		}
	}
	return s
}

// windowAverage must be called with the lock held.
func (t *Tracker) windowAverage() time.Duration {
	if len(t.window) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range t.window {
		sum += d
	}
	return sum / time.Duration(len(t.window))
}

// StatusLine renders a single-line text summary with a progress bar.
func (t *Tracker) StatusLine() string {
	s := t.Stats()
	return fmt.Sprintf("[%s] %5.1f%% (%d/%d) %.1f/min elapsed %s ETA %s",
		bar(s.Percent, 20),
		s.Percent,
		s.Done,
		s.Total,
		s.Speed,
		s.Elapsed.Round(time.Second),
		s.ETA.Round(time.Second),
	)
}

func bar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))
	return strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
}
