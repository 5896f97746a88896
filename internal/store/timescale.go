package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/domain"
)

type TimescaleStore struct {
	pool *pgxpool.Pool
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &TimescaleStore{pool: pool}, nil
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var telemetryColumns = []string{
	"timestamp",
	"vehicle_id",
	"gear",
	"speed_kmph",
	"rpm",
	"engine_temp_c",
	"oil_pressure_psi",
	"vibration",
	"raw_payload",
}

func (s *TimescaleStore) BatchInsert(ctx context.Context, readings []*domain.TelemetryReading) error {
	if len(readings) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(readings))
	for i, r := range readings {
		rows[i] = []interface{}{
			r.Timestamp,
			r.VehicleID,
			r.Gear,
			r.SpeedKmph,
			r.RPM,
			r.EngineTempC,
			r.OilPressure,
			r.Vibration,
			string(r.RawPayload),
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"engine_telemetry"},
		telemetryColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(readings), err)
	}

	return nil
}

// LoadHistory reads telemetry ordered by vehicle then time, the order
// batch baseline learning expects. limit caps the total rows pulled at
// startup.
func (s *TimescaleStore) LoadHistory(ctx context.Context, limit int) ([]*domain.TelemetryReading, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, vehicle_id, gear, speed_kmph, rpm,
		       engine_temp_c, oil_pressure_psi, vibration
		FROM engine_telemetry
		ORDER BY vehicle_id, timestamp
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var readings []*domain.TelemetryReading
	for rows.Next() {
		r := &domain.TelemetryReading{}
		err := rows.Scan(
			&r.Timestamp,
			&r.VehicleID,
			&r.Gear,
			&r.SpeedKmph,
			&r.RPM,
			&r.EngineTempC,
			&r.OilPressure,
			&r.Vibration,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return readings, nil
}

// LatestReading returns the most recent reading for a vehicle, or
// domain.ErrInsufficientData when none exists.
func (s *TimescaleStore) LatestReading(ctx context.Context, vehicleID string) (*domain.TelemetryReading, error) {
	r := &domain.TelemetryReading{}
	err := s.pool.QueryRow(ctx, `
		SELECT timestamp, vehicle_id, gear, speed_kmph, rpm,
		       engine_temp_c, oil_pressure_psi, vibration
		FROM engine_telemetry
		WHERE vehicle_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, vehicleID).Scan(
		&r.Timestamp,
		&r.VehicleID,
		&r.Gear,
		&r.SpeedKmph,
		&r.RPM,
		&r.EngineTempC,
		&r.OilPressure,
		&r.Vibration,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, domain.ErrInsufficientData)
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return r, nil
}

func (s *TimescaleStore) VehicleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT vehicle_id FROM engine_telemetry ORDER BY vehicle_id
	`)
	if err != nil {
		return nil, fmt.Errorf("vehicle ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vehicle id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vehicle id rows: %w", err)
	}
	return ids, nil
}

// InsertAssessment writes an audit row for a Warning or Critical
// assessment.
func (s *TimescaleStore) InsertAssessment(
	ctx context.Context,
	vehicleID string,
	gear int,
	score float64,
	status domain.HealthStatus,
) error {
	query := `
		INSERT INTO engine_assessments
			(vehicle_id, gear, safety_score, status, created_at)
		VALUES
			($1, $2, $3, $4, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query, vehicleID, gear, score, string(status))
	return err
}
