package health

import (
	"fmt"
	"strings"

	"engine-health/monitor/internal/domain"
)

// Explainer turns structured deviation and scoring output into
// operator-facing prose. Templated assembly only; every number it
// prints comes from the analysis, never from its own computation.
type Explainer struct {
	friendlyNames map[string]string
}

func NewExplainer() *Explainer {
	return &Explainer{
		friendlyNames: map[string]string{
			domain.MetricRPM:         "RPM",
			domain.MetricEngineTemp:  "Engine Temperature",
			domain.MetricOilPressure: "Oil Pressure",
			domain.MetricVibration:   "Vibration",
		},
	}
}

// Explain builds the headline explanation for an assessment.
func (e *Explainer) Explain(devs map[string]domain.DeviationMetrics, gear int, score float64, status domain.HealthStatus) string {
	var parts []string

	switch status {
	case domain.StatusNormal:
		parts = append(parts, fmt.Sprintf(
			"Engine is operating normally for this vehicle in gear %d. "+
				"All metrics are within expected ranges based on learned baseline behavior.", gear))
	case domain.StatusWarning:
		parts = append(parts, fmt.Sprintf(
			"Engine shows warning signs. Some metrics are deviating from normal "+
				"behavior for this vehicle in gear %d.", gear))
	default:
		parts = append(parts, fmt.Sprintf(
			"Engine shows critical deviations from normal behavior for this vehicle "+
				"in gear %d. Immediate attention recommended.", gear))
	}

	abnormal := false
	for _, name := range domain.MetricNames {
		dev, ok := devs[name]
		if !ok || dev.Status == domain.StatusNormal {
			continue
		}
		if !abnormal {
			parts = append(parts, "Specific deviations detected:")
			abnormal = true
		}
		parts = append(parts, e.explainMetric(name, dev, gear))
	}
	if !abnormal {
		parts = append(parts,
			"All metrics (RPM, Temperature, Oil Pressure, Vibration) are within "+
				"expected ranges for this vehicle.")
	}

	switch {
	case score < 60:
		parts = append(parts, fmt.Sprintf("Engine Safety Score: %.1f/100 - Critical risk level.", score))
	case score < 85:
		parts = append(parts, fmt.Sprintf("Engine Safety Score: %.1f/100 - Warning level. Monitor closely.", score))
	default:
		parts = append(parts, fmt.Sprintf("Engine Safety Score: %.1f/100 - Healthy operation.", score))
	}

	return strings.Join(parts, " ")
}

func (e *Explainer) explainMetric(name string, dev domain.DeviationMetrics, gear int) string {
	friendly := e.friendlyNames[name]
	direction := "lower"
	if dev.CurrentValue > dev.ExpectedMean {
		direction = "higher"
	}

	if dev.Status == domain.StatusCritical {
		return fmt.Sprintf(
			"%s is %.1f%% %s than normal for this vehicle in gear %d "+
				"(Expected: %.1f, Current: %.1f). This is a critical deviation.",
			friendly, dev.DeviationPercent, direction, gear, dev.ExpectedMean, dev.CurrentValue)
	}
	return fmt.Sprintf(
		"%s is %.1f%% %s than normal for this vehicle in gear %d "+
			"(Expected: ~%.1f). Monitor for trends.",
		friendly, dev.DeviationPercent, direction, gear, dev.ExpectedMean)
}

// Recommend maps critical metrics to fixed follow-up actions.
func (e *Explainer) Recommend(devs map[string]domain.DeviationMetrics, status domain.HealthStatus) []string {
	if status == domain.StatusNormal {
		return []string{"Continue normal operation and monitoring."}
	}

	var recs []string
	critical := func(name string) bool {
		dev, ok := devs[name]
		return ok && dev.Status == domain.StatusCritical
	}

	if critical(domain.MetricEngineTemp) {
		recs = append(recs,
			"Check engine cooling system. High temperature deviation may indicate "+
				"cooling issues or excessive load.")
	}
	if critical(domain.MetricOilPressure) {
		recs = append(recs,
			"Inspect oil system. Check oil level and pressure regulation. "+
				"Low pressure can cause engine damage.")
	}
	if critical(domain.MetricVibration) {
		recs = append(recs,
			"Investigate vibration sources. Excessive vibration may indicate "+
				"mechanical issues or imbalance.")
	}
	if critical(domain.MetricRPM) {
		recs = append(recs,
			"Monitor RPM patterns. Unusual RPM behavior may indicate transmission "+
				"or engine control issues.")
	}

	if status == domain.StatusWarning {
		recs = append(recs,
			"Continue monitoring. If deviations persist or worsen, consider "+
				"professional inspection.")
	} else {
		recs = append(recs,
			"Immediate professional inspection recommended to prevent potential damage.")
	}
	return recs
}
