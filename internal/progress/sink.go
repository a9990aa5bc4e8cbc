package progress

import (
	"context"

	"go.uber.org/zap"

	"github.com/buildsheet/harvester/internal/metrics"
)

// Sink consumes progress events. Implementations must be safe for use from
// the hub goroutine and should return quickly.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Consume(_ context.Context, evt Event) error {
	if s.Logger == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("mode", evt.Mode),
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.Name != "" {
		fields = append(fields, zap.String("name", evt.Name))
	}
	if evt.Count != 0 {
		fields = append(fields, zap.Int("count", evt.Count))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	switch evt.Stage {
	case StageRunError, StageEntityFailed:
		s.Logger.Warn(string(evt.Stage), fields...)
	default:
		s.Logger.Info(string(evt.Stage), fields...)
	}
	return nil
}

// MetricsSink feeds the Prometheus counters from the event stream.
type MetricsSink struct{}

func (MetricsSink) Consume(_ context.Context, evt Event) error {
	switch evt.Stage {
	case StageEntityDiscovered:
		metrics.TotalEntitiesDiscovered.Inc()
	case StageEntityDetailed:
		metrics.TotalEntitiesDetailed.Inc()
	case StageAssociationSkipped:
		metrics.TotalAssociationsSkipped.Inc()
	}
	return nil
}
