package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"engine-health/monitor/internal/domain"
)

type Config struct {
	// HTTP
	HTTPPort string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Pipeline channels
	DBChannelSize     int
	StateChannelSize  int
	HealthChannelSize int

	// Batch writer tuning
	DBBatchSize       int
	DBFlushIntervalMS int

	// Worker counts
	DBWriterWorkers    int
	StateWriterWorkers int
	HealthWorkers      int

	// How much history to load for batch baseline learning at startup
	HistoryLoadLimit int

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string

	// Baseline learning and scoring parameters
	Health HealthConfig
}

// HealthConfig carries every tunable of the baseline/deviation/scoring
// pipeline. Validated once at startup; invalid values are fatal, never
// silently renormalized.
type HealthConfig struct {
	MinSamples int
	// WindowSize bounds the per-(vehicle,gear) history used for baseline
	// recomputation. 0 means unbounded (use all retained samples).
	WindowSize int

	WarningStd  float64
	CriticalStd float64
	WarningPct  float64
	CriticalPct float64

	MetricWeights map[string]float64
}

func Load() *Config {
	return &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8001"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "engine_user"),
		DBPassword:          getEnv("DB_PASSWORD", "engine_password"),
		DBName:              getEnv("DB_NAME", "engine_health"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		DBChannelSize:       getEnvInt("DB_CHANNEL_SIZE", 10000),
		StateChannelSize:    getEnvInt("STATE_CHANNEL_SIZE", 50000),
		HealthChannelSize:   getEnvInt("HEALTH_CHANNEL_SIZE", 10000),
		DBBatchSize:         getEnvInt("DB_BATCH_SIZE", 500),
		DBFlushIntervalMS:   getEnvInt("DB_FLUSH_INTERVAL_MS", 100),
		DBWriterWorkers:     getEnvInt("DB_WRITER_WORKERS", 10),
		StateWriterWorkers:  getEnvInt("STATE_WRITER_WORKERS", 5),
		HealthWorkers:       getEnvInt("HEALTH_WORKERS", 3),
		HistoryLoadLimit:    getEnvInt("HISTORY_LOAD_LIMIT", 100000),
		AuthCacheTTLSeconds: getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:        strings.Split(getEnv("VALID_API_KEYS", ""), ","),
		Health: HealthConfig{
			MinSamples:  getEnvInt("MIN_SAMPLES", 10),
			WindowSize:  getEnvInt("WINDOW_SIZE", 0),
			WarningStd:  getEnvFloat("WARNING_STD", 2.0),
			CriticalStd: getEnvFloat("CRITICAL_STD", 3.5),
			WarningPct:  getEnvFloat("WARNING_PCT", 20.0),
			CriticalPct: getEnvFloat("CRITICAL_PCT", 40.0),
			MetricWeights: map[string]float64{
				domain.MetricRPM:         getEnvFloat("WEIGHT_RPM", 0.25),
				domain.MetricEngineTemp:  getEnvFloat("WEIGHT_ENGINE_TEMP", 0.30),
				domain.MetricOilPressure: getEnvFloat("WEIGHT_OIL_PRESSURE", 0.25),
				domain.MetricVibration:   getEnvFloat("WEIGHT_VIBRATION", 0.20),
			},
		},
	}
}

const weightTolerance = 1e-9

func (h HealthConfig) Validate() error {
	if h.MinSamples < 2 {
		return fmt.Errorf("MIN_SAMPLES must be at least 2, got %d", h.MinSamples)
	}
	if h.WindowSize < 0 {
		return fmt.Errorf("WINDOW_SIZE must not be negative, got %d", h.WindowSize)
	}
	if h.WindowSize > 0 && h.WindowSize < h.MinSamples {
		return fmt.Errorf("WINDOW_SIZE %d is below MIN_SAMPLES %d", h.WindowSize, h.MinSamples)
	}
	if h.WarningStd <= 0 || h.CriticalStd <= 0 || h.WarningPct <= 0 || h.CriticalPct <= 0 {
		return fmt.Errorf("thresholds must be positive")
	}
	if h.WarningStd >= h.CriticalStd {
		return fmt.Errorf("WARNING_STD %.2f must be below CRITICAL_STD %.2f", h.WarningStd, h.CriticalStd)
	}
	if h.WarningPct >= h.CriticalPct {
		return fmt.Errorf("WARNING_PCT %.2f must be below CRITICAL_PCT %.2f", h.WarningPct, h.CriticalPct)
	}
	if len(h.MetricWeights) != len(domain.MetricNames) {
		return fmt.Errorf("expected weights for %d metrics, got %d", len(domain.MetricNames), len(h.MetricWeights))
	}
	var sum float64
	for _, name := range domain.MetricNames {
		w, ok := h.MetricWeights[name]
		if !ok {
			return fmt.Errorf("missing weight for metric %q", name)
		}
		if w < 0 {
			return fmt.Errorf("weight for %q must not be negative, got %f", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("metric weights must sum to 1.0, got %f", sum)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
