package pipeline

import (
	"context"
	"log/slog"
	"time"

	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/metrics"
	"engine-health/monitor/internal/store"
)

type DBWriter struct {
	ch        <-chan *domain.TelemetryReading
	db        *store.TimescaleStore
	log       *slog.Logger
	batchSize int
	flushMS   int
}

func NewDBWriter(
	ch <-chan *domain.TelemetryReading,
	db *store.TimescaleStore,
	log *slog.Logger,
	batchSize int,
	flushMS int,
) *DBWriter {
	return &DBWriter{
		ch:        ch,
		db:        db,
		log:       log,
		batchSize: batchSize,
		flushMS:   flushMS,
	}
}

func (w *DBWriter) Run(ctx context.Context) {
	batch := make([]*domain.TelemetryReading, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case reading, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(ctx, batch)
				}
				return
			}
			batch = append(batch, reading)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(ctx, batch)
			}
			return
		}
	}
}

func (w *DBWriter) flush(ctx context.Context, batch []*domain.TelemetryReading) {
	err := w.db.BatchInsert(ctx, batch)
	if err != nil {
		w.log.Warn("db write failed, retrying", "batch", len(batch), "error", err)
		time.Sleep(500 * time.Millisecond)
		err = w.db.BatchInsert(ctx, batch)
		if err != nil {
			w.log.Error("db write permanently failed", "batch", len(batch), "error", err)
			metrics.DBWriteFailures.Add(int64(len(batch)))
			return
		}
	}
	metrics.DBWriteSuccess.Add(int64(len(batch)))
}
