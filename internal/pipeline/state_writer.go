package pipeline

import (
	"context"
	"log/slog"
	"time"

	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/store"
)

type StateWriter struct {
	ch    <-chan *domain.TelemetryReading
	redis *store.RedisStore
	log   *slog.Logger
}

func NewStateWriter(
	ch <-chan *domain.TelemetryReading,
	redis *store.RedisStore,
	log *slog.Logger,
) *StateWriter {
	return &StateWriter{ch: ch, redis: redis, log: log}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]*domain.TelemetryReading, 0, 100) // Redis is fast, fixed batch fine
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case reading, ok := <-w.ch:
			if !ok {
				w.flushBatch(ctx, batch)
				return
			}
			batch = append(batch, reading)
			if len(batch) >= 100 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flushBatch(ctx, batch)
			return
		}
	}
}

func (w *StateWriter) flushBatch(ctx context.Context, batch []*domain.TelemetryReading) {
	for _, reading := range batch {
		if err := w.redis.PipelineStateUpdate(ctx, reading); err != nil {
			w.log.Warn("redis state update failed", "vehicle_id", reading.VehicleID, "error", err)
		}
	}
}
