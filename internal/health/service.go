package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"engine-health/monitor/internal/baseline"
	"engine-health/monitor/internal/deviation"
	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/risk"
)

// Source supplies the latest telemetry per vehicle and the set of
// known vehicles. Implementations return domain.ErrInsufficientData
// when a vehicle has no readings.
type Source interface {
	LatestReading(ctx context.Context, vehicleID string) (*domain.TelemetryReading, error)
	VehicleIDs(ctx context.Context) ([]string, error)
}

// Service composes learner, analyzer and scorer into the engine-status
// query path.
type Service struct {
	source    Source
	learner   *baseline.Learner
	analyzer  *deviation.Analyzer
	scorer    *risk.Scorer
	explainer *Explainer
	log       *slog.Logger
}

func NewService(
	source Source,
	learner *baseline.Learner,
	analyzer *deviation.Analyzer,
	scorer *risk.Scorer,
	log *slog.Logger,
) *Service {
	return &Service{
		source:    source,
		learner:   learner,
		analyzer:  analyzer,
		scorer:    scorer,
		explainer: NewExplainer(),
		log:       log,
	}
}

// Assess produces the full engine health status for a vehicle's latest
// reading. A vehicle without readings, or without a learned baseline
// for its current gear, yields domain.ErrInsufficientData, an expected
// state the API layer renders as "no status available".
func (s *Service) Assess(ctx context.Context, vehicleID string) (*domain.EngineHealthStatus, error) {
	latest, err := s.source.LatestReading(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return nil, err
		}
		return nil, fmt.Errorf("latest reading for %s: %w", vehicleID, err)
	}

	gearBaseline, ok := s.learner.GetBaseline(vehicleID, latest.Gear)
	if !ok {
		s.log.Warn("no baseline for vehicle",
			"vehicle_id", vehicleID,
			"gear", latest.Gear,
		)
		return nil, fmt.Errorf("vehicle %s gear %d: %w", vehicleID, latest.Gear, domain.ErrInsufficientData)
	}

	devs, err := s.analyzer.AnalyzeAll(latest.MetricValues(), gearBaseline)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", vehicleID, err)
	}

	assessment := s.scorer.Assess(devs)

	return &domain.EngineHealthStatus{
		VehicleID: vehicleID,
		Timestamp: latest.Timestamp,
		Gear:      latest.Gear,

		CurrentRPM:         latest.RPM,
		CurrentEngineTemp:  latest.EngineTempC,
		CurrentOilPressure: latest.OilPressure,
		CurrentVibration:   latest.Vibration,
		CurrentSpeedKmph:   latest.SpeedKmph,

		Deviations: devs,

		EngineSafetyScore: assessment.OverallScore,
		OverallStatus:     assessment.OverallStatus,

		Explanation:     s.explainer.Explain(devs, latest.Gear, assessment.OverallScore, assessment.OverallStatus),
		Recommendations: s.explainer.Recommend(devs, assessment.OverallStatus),
	}, nil
}

// Vehicles lists all known vehicle IDs.
func (s *Service) Vehicles(ctx context.Context) ([]string, error) {
	ids, err := s.source.VehicleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return ids, nil
}
