package deviation

import (
	"fmt"
	"math"

	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/domain"
)

// Analyzer classifies current readings against learned baselines.
// There are no fixed engineering limits here; everything is relative
// to the per-(vehicle, gear) profile.
type Analyzer struct {
	warningStd  float64
	criticalStd float64
	warningPct  float64
	criticalPct float64
}

func NewAnalyzer(cfg config.HealthConfig) *Analyzer {
	return &Analyzer{
		warningStd:  cfg.WarningStd,
		criticalStd: cfg.CriticalStd,
		warningPct:  cfg.WarningPct,
		criticalPct: cfg.CriticalPct,
	}
}

// Analyze compares one current value against one metric's baseline.
// Precondition: stats.Std > 0 (the learner enforces this before
// storing). A non-positive std means the correction was skipped
// upstream; that is reported as an invariant violation, never divided
// through.
func (a *Analyzer) Analyze(current float64, stats domain.BaselineStats) (domain.DeviationMetrics, error) {
	if stats.Std <= 0 {
		return domain.DeviationMetrics{}, fmt.Errorf("%w: std=%g", domain.ErrInvariant, stats.Std)
	}

	deviationStd := math.Abs(current-stats.Mean) / stats.Std

	// Percentage deviation is meaningless at a zero mean; the std-based
	// signal still applies there.
	var deviationPct float64
	if stats.Mean != 0 {
		deviationPct = math.Abs((current-stats.Mean)/stats.Mean) * 100
	}

	// Two independent signals, classified separately; the stricter
	// tier wins. Boundaries inclusive.
	stdStatus := tier(deviationStd, a.warningStd, a.criticalStd)
	pctStatus := tier(deviationPct, a.warningPct, a.criticalPct)
	status := domain.Stricter(stdStatus, pctStatus)

	// Fixed ±2σ visualization band, independent of the classification
	// thresholds. Range floor clamped: physical quantities don't go
	// negative on a dashboard.
	rangeMin := math.Max(0, stats.Mean-2*stats.Std)
	rangeMax := stats.Mean + 2*stats.Std

	return domain.DeviationMetrics{
		CurrentValue:     current,
		ExpectedMean:     stats.Mean,
		ExpectedRangeMin: rangeMin,
		ExpectedRangeMax: rangeMax,
		DeviationPercent: deviationPct,
		DeviationStd:     deviationStd,
		Status:           status,
	}, nil
}

func tier(v, warning, critical float64) domain.HealthStatus {
	switch {
	case v >= critical:
		return domain.StatusCritical
	case v >= warning:
		return domain.StatusWarning
	}
	return domain.StatusNormal
}

// AnalyzeAll runs Analyze per metric. Metrics are treated as
// statistically independent; no cross-metric correlation is modeled.
func (a *Analyzer) AnalyzeAll(current map[string]float64, b domain.GearBaseline) (map[string]domain.DeviationMetrics, error) {
	out := make(map[string]domain.DeviationMetrics, len(domain.MetricNames))
	for _, name := range domain.MetricNames {
		value, ok := current[name]
		if !ok {
			return nil, fmt.Errorf("missing current value for metric %q", name)
		}
		stats, _ := b.Stats(name)
		dm, err := a.Analyze(value, stats)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}
		out[name] = dm
	}
	return out, nil
}
