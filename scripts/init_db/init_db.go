package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "engine_user"),
		dbGetEnv("DB_PASSWORD", "engine_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "engine_health"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_extensions(ctx, conn)
	step2_telemetry_table(ctx, conn)
	step3_assessments_table(ctx, conn)
	step4_indexes(ctx, conn)
	step5_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2 — engine_telemetry table
// ─────────────────────────────────────────────────────────────
func step2_telemetry_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: engine_telemetry table ──────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS engine_telemetry (

			-- Time column — TimescaleDB partitions data by this
			-- TIMESTAMPTZ always stores in UTC
			timestamp            TIMESTAMPTZ      NOT NULL,

			-- Server receipt time — separate from vehicle clock
			-- Vehicle clocks drift; received_at is always accurate
			received_at          TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- Identity
			vehicle_id           TEXT             NOT NULL,

			-- Drivetrain operating mode; baselines are learned per gear
			gear                 INTEGER          NOT NULL,

			-- Sensor readings (speed is stored but never scored)
			speed_kmph           DOUBLE PRECISION NOT NULL DEFAULT 0,
			rpm                  DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine_temp_c        DOUBLE PRECISION NOT NULL DEFAULT 0,
			oil_pressure_psi     DOUBLE PRECISION NOT NULL DEFAULT 0,
			vibration            DOUBLE PRECISION NOT NULL DEFAULT 0,

			-- Original JSON payload — stored for debugging and replay
			raw_payload          JSONB,

			CONSTRAINT chk_gear CHECK (gear > 0)
		);
	`, "engine_telemetry table created")

	// Convert to TimescaleDB hypertable
	// This partitions data automatically into 7-day chunks
	// Queries on recent data only touch the latest chunk — very fast
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'engine_telemetry',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "engine_telemetry converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — engine_assessments table
// ─────────────────────────────────────────────────────────────
func step3_assessments_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: engine_assessments table ────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS engine_assessments (

			-- Standard primary key — Warning/Critical assessments are
			-- rare enough that a traditional PK is fine here
			id               BIGSERIAL        PRIMARY KEY,

			-- Identity — same values as engine_telemetry
			vehicle_id       TEXT             NOT NULL,
			gear             INTEGER          NOT NULL,

			-- Weighted 0-100 engine safety score at trigger time
			safety_score     DOUBLE PRECISION NOT NULL,

			-- Must exactly match domain.HealthStatus constants:
			-- Normal | Warning | Critical
			status           TEXT             NOT NULL,

			-- Timestamps
			created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- Operator acknowledgment — NULL means not yet acknowledged
			acknowledged_at  TIMESTAMPTZ,
			acknowledged_by  TEXT,

			CONSTRAINT chk_status CHECK (
				status IN ('Normal', 'Warning', 'Critical')
			),

			CONSTRAINT chk_score CHECK (
				safety_score >= 0 AND safety_score <= 100
			)
		);
	`, "engine_assessments table created")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — Indexes
// ─────────────────────────────────────────────────────────────
func step4_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_telemetry_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_time
				  ON engine_telemetry (vehicle_id, timestamp DESC);`,
			why: "query: telemetry history for one vehicle",
		},
		{
			name: "idx_telemetry_vehicle_gear_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_gear_time
				  ON engine_telemetry (vehicle_id, gear, timestamp DESC);`,
			why: "query: per-gear history for baseline learning",
		},
		{
			name: "idx_assessments_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_assessments_vehicle
				  ON engine_assessments (vehicle_id, created_at DESC);`,
			why: "query: assessments for one vehicle",
		},
		{
			name: "idx_assessments_unacknowledged",
			sql: `CREATE INDEX IF NOT EXISTS idx_assessments_unacknowledged
				  ON engine_assessments (vehicle_id, created_at DESC)
				  WHERE acknowledged_at IS NULL;`,
			why: "query: unacknowledged assessments only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step5_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Verification ────────────────────────")

	// Check tables exist
	tables := []string{"engine_telemetry", "engine_assessments"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	// Check hypertable
	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'engine_telemetry'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("engine_telemetry is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)

	// Check indexes
	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('engine_telemetry', 'engine_assessments')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
