package progress

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBufferSize  = 1024
	defaultSinkTimeout = 5 * time.Second
)

// Hub fans Events out to registered sinks from a background goroutine. Emit
// never blocks the crawl; under backpressure events are dropped and counted.
type Hub struct {
	sinks       []Sink
	events      chan Event
	doneCh      chan struct{}
	sinkTimeout time.Duration
	logger      *zap.Logger
	dropped     atomic.Int64
	closed      atomic.Bool
}

// NewHub starts the fan-out goroutine. The returned Hub accepts events
// immediately.
func NewHub(logger *zap.Logger, sinks ...Sink) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sinks:       append([]Sink(nil), sinks...),
		events:      make(chan Event, defaultBufferSize),
		doneCh:      make(chan struct{}),
		sinkTimeout: defaultSinkTimeout,
		logger:      logger,
	}
	go h.run()
	return h
}

// Emit enqueues an Event. If the buffer is full the event is dropped.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Close stops intake, drains buffered events to the sinks, and waits for the
// background goroutine to exit.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if !h.closed.CompareAndSwap(false, true) {
		<-h.doneCh
		return nil
	}
	close(h.events)
	select {
	case <-h.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if n := h.dropped.Load(); n > 0 {
		h.logger.Warn("progress events dropped due to backpressure", zap.Int64("dropped", n))
	}
	return nil
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for evt := range h.events {
		h.deliver(evt)
	}
}

func (h *Hub) deliver(evt Event) {
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.sinkTimeout)
		if err := sink.Consume(ctx, evt); err != nil {
			h.logger.Warn("progress sink failed",
				zap.String("stage", string(evt.Stage)),
				zap.Error(err),
			)
		}
		cancel()
	}
}
