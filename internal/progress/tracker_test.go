package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock advances a fixed step on every reading.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func TestTrackerStats(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0), step: 0}
	tr := NewTracker(10)
	tr.now = clock.Now
	tr.Start()

	// Each item takes exactly two seconds.
	clock.step = 2 * time.Second
	for i := 0; i < 4; i++ {
		tr.Record()
	}
	clock.step = 0

	s := tr.Stats()
	require.Equal(t, 4, s.Done)
	require.Equal(t, 10, s.Total)
	require.Equal(t, 40.0, s.Percent)
	require.Equal(t, 6*2*time.Second, s.ETA)
	require.Equal(t, 30.0, s.Speed, "items per minute")
}

func TestTrackerWindowBounded(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	tr := NewTracker(1000)
	tr.now = clock.Now
	tr.Start()

	// Old slow samples must age out of the estimate.
	clock.step = time.Minute
	for i := 0; i < 50; i++ {
		tr.Record()
	}
	clock.step = time.Second
	for i := 0; i < windowSize; i++ {
		tr.Record()
	}

	require.Len(t, tr.window, windowSize)
	s := tr.Stats()
	remaining := 1000 - 50 - windowSize
	require.Equal(t, time.Duration(remaining)*time.Second, s.ETA)
}

func TestTrackerSkipDoesNotAffectSpeed(t *testing.T) {
	t.Parallel()

	tr := NewTracker(10)
	tr.Start()
	for i := 0; i < 5; i++ {
		tr.Skip()
	}

	s := tr.Stats()
	require.Equal(t, 5, s.Done)
	require.Zero(t, s.Speed, "skip must not produce an estimate")
	require.Zero(t, s.ETA)
}

func TestStatusLine(t *testing.T) {
	t.Parallel()

	tr := NewTracker(4)
	tr.Start()
	tr.Record()
	tr.Record()

	line := tr.StatusLine()
	require.NotEmpty(t, line)
	require.Contains(t, line, "(2/4)")
	require.Contains(t, line, "50.0%")
}
