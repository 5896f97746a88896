package store

import (
	"context"

	"engine-health/monitor/internal/domain"
)

// CachedSource serves latest readings from the Redis state cache and
// falls back to TimescaleDB when the cache is cold. Vehicle listing
// always comes from the database, which holds the full history.
type CachedSource struct {
	redis *RedisStore
	db    *TimescaleStore
}

func NewCachedSource(redis *RedisStore, db *TimescaleStore) *CachedSource {
	return &CachedSource{redis: redis, db: db}
}

func (s *CachedSource) LatestReading(ctx context.Context, vehicleID string) (*domain.TelemetryReading, error) {
	reading, err := s.redis.LatestState(ctx, vehicleID)
	if err == nil {
		return reading, nil
	}
	// Cold cache and Redis trouble both fall back to the database,
	// which holds the authoritative history.
	return s.db.LatestReading(ctx, vehicleID)
}

func (s *CachedSource) VehicleIDs(ctx context.Context) ([]string, error) {
	return s.db.VehicleIDs(ctx)
}
