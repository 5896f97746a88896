package domain

import (
	"errors"
	"time"
)

// ErrInsufficientData marks the expected no-baseline-yet state for a
// (vehicle, gear) pair. Callers render it as "no status available",
// never as a failure.
var ErrInsufficientData = errors.New("insufficient data for baseline")

// ErrInvariant marks a broken structural invariant, such as a stored
// baseline with non-positive std reaching the analyzer. Always fatal
// to the request; never recovered silently.
var ErrInvariant = errors.New("baseline invariant violation")

type HealthStatus string

const (
	StatusNormal   HealthStatus = "Normal"
	StatusWarning  HealthStatus = "Warning"
	StatusCritical HealthStatus = "Critical"
)

// BaselineStats is the learned profile of one metric for one
// (vehicle, gear). Std is always > 0 after learning: zero empirical
// variance is corrected to 5% of the mean (or a small epsilon) before
// storage. Count is an audit signal only and plays no part in scoring.
type BaselineStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
}

// GearBaseline holds the four metric profiles for one (vehicle, gear).
// Consumers always receive copies; the learner never hands out a live
// pointer into its store.
type GearBaseline struct {
	Gear        int           `json:"gear"`
	RPM         BaselineStats `json:"rpm"`
	EngineTemp  BaselineStats `json:"engine_temp"`
	OilPressure BaselineStats `json:"oil_pressure"`
	Vibration   BaselineStats `json:"vibration"`
}

// Stats returns the profile for a named metric.
func (b GearBaseline) Stats(metric string) (BaselineStats, bool) {
	switch metric {
	case MetricRPM:
		return b.RPM, true
	case MetricEngineTemp:
		return b.EngineTemp, true
	case MetricOilPressure:
		return b.OilPressure, true
	case MetricVibration:
		return b.Vibration, true
	}
	return BaselineStats{}, false
}

// DeviationMetrics is the analysis result for a single metric. Value
// object: computed fresh per query, never mutated afterwards.
type DeviationMetrics struct {
	CurrentValue     float64      `json:"current_value"`
	ExpectedMean     float64      `json:"expected_mean"`
	ExpectedRangeMin float64      `json:"expected_range_min"`
	ExpectedRangeMax float64      `json:"expected_range_max"`
	DeviationPercent float64      `json:"deviation_percent"`
	DeviationStd     float64      `json:"deviation_std"`
	Status           HealthStatus `json:"status"`
}

// SafetyAssessment is the scored outcome across all metrics.
// OverallStatus is derived from OverallScore alone.
type SafetyAssessment struct {
	PerMetricScores map[string]float64 `json:"per_metric_scores"`
	OverallScore    float64            `json:"overall_score"`
	OverallStatus   HealthStatus       `json:"overall_status"`
}

// EngineHealthStatus is the complete per-vehicle result handed to the
// API layer.
type EngineHealthStatus struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
	Gear      int       `json:"gear"`

	CurrentRPM         float64 `json:"current_rpm"`
	CurrentEngineTemp  float64 `json:"current_engine_temp"`
	CurrentOilPressure float64 `json:"current_oil_pressure"`
	CurrentVibration   float64 `json:"current_vibration"`
	CurrentSpeedKmph   float64 `json:"current_speed_kmph"`

	Deviations map[string]DeviationMetrics `json:"deviations"`

	EngineSafetyScore float64      `json:"engine_safety_score"`
	OverallStatus     HealthStatus `json:"overall_status"`

	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

// Severity ordering for tie-breaking: the stricter of two signals wins.
var severityRank = map[HealthStatus]int{
	StatusNormal:   0,
	StatusWarning:  1,
	StatusCritical: 2,
}

// Stricter returns the more severe of two statuses.
func Stricter(a, b HealthStatus) HealthStatus {
	if severityRank[a] >= severityRank[b] {
		return a
	}
	return b
}
