package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// PipelineStateUpdate caches the latest reading per vehicle and
// publishes it for live consumers. State expires after 30s so stale
// vehicles fall back to the database.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, reading *domain.TelemetryReading) error {
	stateData := map[string]interface{}{
		"vehicle_id":   reading.VehicleID,
		"gear":         reading.Gear,
		"speed_kmph":   reading.SpeedKmph,
		"rpm":          reading.RPM,
		"engine_temp":  reading.EngineTempC,
		"oil_pressure": reading.OilPressure,
		"vibration":    reading.Vibration,
		"timestamp":    reading.Timestamp.Unix(),
		"received_at":  reading.ReceivedAt.Unix(),
	}

	pubPayload, err := json.Marshal(stateData)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	stateKey := fmt.Sprintf("vehicle:%s:state", reading.VehicleID)
	pubChannel := fmt.Sprintf("vehicle:%s:telemetry", reading.VehicleID)

	pipe := r.client.Pipeline()

	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, 30*time.Second)
	pipe.Publish(ctx, pubChannel, pubPayload)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// LatestState reads back the cached reading for a vehicle. Returns
// domain.ErrInsufficientData when the cache is cold or expired.
func (r *RedisStore) LatestState(ctx context.Context, vehicleID string) (*domain.TelemetryReading, error) {
	key := fmt.Sprintf("vehicle:%s:state", vehicleID)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis state read failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("vehicle %s state: %w", vehicleID, domain.ErrInsufficientData)
	}

	reading := &domain.TelemetryReading{VehicleID: vehicleID}
	gear, err := strconv.Atoi(fields["gear"])
	if err != nil {
		return nil, fmt.Errorf("bad gear in cached state: %w", err)
	}
	reading.Gear = gear

	floats := map[string]*float64{
		"speed_kmph":   &reading.SpeedKmph,
		"rpm":          &reading.RPM,
		"engine_temp":  &reading.EngineTempC,
		"oil_pressure": &reading.OilPressure,
		"vibration":    &reading.Vibration,
	}
	for field, dst := range floats {
		v, err := strconv.ParseFloat(fields[field], 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s in cached state: %w", field, err)
		}
		*dst = v
	}

	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp in cached state: %w", err)
	}
	reading.Timestamp = time.Unix(ts, 0).UTC()

	return reading, nil
}

func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("vehicle:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

// Dedup keys suppress repeat Warning/Critical assessments for the same
// vehicle and status for 5 minutes.

func (r *RedisStore) CheckAssessmentDedup(ctx context.Context, vehicleID string, status domain.HealthStatus) (bool, error) {
	key := fmt.Sprintf("assessment:%s:%s", vehicleID, string(status))
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return count > 0, nil
}

func (r *RedisStore) SetAssessmentDedup(ctx context.Context, vehicleID string, status domain.HealthStatus) error {
	key := fmt.Sprintf("assessment:%s:%s", vehicleID, string(status))
	return r.client.Set(ctx, key, "1", 5*time.Minute).Err()
}

func (r *RedisStore) PublishAssessment(ctx context.Context, vehicleID string, payload []byte) error {
	channel := fmt.Sprintf("engine:%s:health", vehicleID)
	return r.client.Publish(ctx, channel, payload).Err()
}

// SubscribeAssessments opens a pub/sub subscription for one vehicle's
// assessment stream. Caller closes the returned PubSub.
func (r *RedisStore) SubscribeAssessments(ctx context.Context, vehicleID string) *redis.PubSub {
	channel := fmt.Sprintf("engine:%s:health", vehicleID)
	return r.client.Subscribe(ctx, channel)
}
