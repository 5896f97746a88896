package risk

import (
	"math"

	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/domain"
)

// Scorer converts deviation severity into bounded 0-100 scores.
// 100 is fully normal, 0 is maximal learned abnormality.
type Scorer struct {
	weights map[string]float64
}

// NewScorer expects weights already validated by config (sum to 1).
func NewScorer(cfg config.HealthConfig) *Scorer {
	w := make(map[string]float64, len(cfg.MetricWeights))
	for name, weight := range cfg.MetricWeights {
		w[name] = weight
	}
	return &Scorer{weights: w}
}

// ScoreMetric maps one metric's deviation to a score, piecewise by the
// status the analyzer already assigned:
//
//	Critical: 70 at 3.5σ falling linearly to 0 at 5σ
//	Warning:  100 at 2σ falling linearly to 70 at 3.5σ
//	Normal:   up to a 5-point penalty as deviation approaches 2σ
//
// Both tier formulas evaluate to 70 at 3.5σ, so the score is continuous
// across the boundary.
func (s *Scorer) ScoreMetric(dev domain.DeviationMetrics) float64 {
	z := dev.DeviationStd

	var score float64
	switch dev.Status {
	case domain.StatusCritical:
		if z >= 5.0 {
			score = 0
		} else {
			score = math.Max(0, 70.0*(1-(z-3.5)/1.5))
		}
	case domain.StatusWarning:
		// A percent-triggered Warning can sit below 2σ; the max keeps
		// the tier floor at 70 either way.
		score = math.Max(70.0, 100.0-30.0*(z-2.0)/1.5)
	default:
		penalty := math.Min(math.Abs(z)/2.0, 1.0) * 5.0
		score = 100.0 - penalty
	}

	return round2(clamp(score, 0, 100))
}

// ScoreOverall combines per-metric scores into the weighted engine
// safety score.
func (s *Scorer) ScoreOverall(devs map[string]domain.DeviationMetrics) (map[string]float64, float64) {
	perMetric := make(map[string]float64, len(devs))
	var total float64
	for name, dev := range devs {
		score := s.ScoreMetric(dev)
		perMetric[name] = score
		total += score * s.weights[name]
	}
	return perMetric, round2(clamp(total, 0, 100))
}

// StatusFromScore is the single authority for overall status. It is
// derived from the numeric score only, never re-derived from the
// per-metric classifications.
func (s *Scorer) StatusFromScore(overall float64) domain.HealthStatus {
	switch {
	case overall >= 85:
		return domain.StatusNormal
	case overall >= 60:
		return domain.StatusWarning
	default:
		return domain.StatusCritical
	}
}

// Assess runs scoring end to end over a deviation set.
func (s *Scorer) Assess(devs map[string]domain.DeviationMetrics) domain.SafetyAssessment {
	perMetric, overall := s.ScoreOverall(devs)
	return domain.SafetyAssessment{
		PerMetricScores: perMetric,
		OverallScore:    overall,
		OverallStatus:   s.StatusFromScore(overall),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
