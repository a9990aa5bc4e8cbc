package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Consume(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestHubDeliversInOrder(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(nil, sink)

	runID := uuid.New()
	stages := []Stage{StageRunStart, StageEntityDiscovered, StageEntityDetailed, StageRunDone}
	for _, stage := range stages {
		hub.Emit(Event{RunID: runID, TS: time.Now().UTC(), Stage: stage, Mode: "widgets"})
	}
	require.NoError(t, hub.Close(context.Background()))

	got := sink.snapshot()
	require.Len(t, got, len(stages))
	for i, evt := range got {
		require.Equal(t, stages[i], evt.Stage)
		require.Equal(t, runID, evt.RunID)
	}
}

func TestHubRejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(nil, sink)

	hub.Emit(Event{})                                // missing stage and timestamp
	hub.Emit(Event{Stage: StageRunStart})            // missing timestamp
	hub.Emit(Event{TS: time.Now().UTC()})            // missing stage
	require.NoError(t, hub.Close(context.Background()))

	require.Empty(t, sink.snapshot())
}

func TestHubEmitAfterClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(nil, sink)
	require.NoError(t, hub.Close(context.Background()))

	// Must not panic or deliver.
	hub.Emit(Event{TS: time.Now().UTC(), Stage: StageRunDone})
	require.Empty(t, sink.snapshot())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(Event{TS: time.Now().UTC(), Stage: StageRunStart})
	require.NoError(t, hub.Close(context.Background()))
}
