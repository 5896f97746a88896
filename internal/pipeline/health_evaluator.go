package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"engine-health/monitor/internal/baseline"
	"engine-health/monitor/internal/deviation"
	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/metrics"
	"engine-health/monitor/internal/risk"
	"engine-health/monitor/internal/store"
)

// HealthEvaluator feeds each new reading into incremental baseline
// learning, then scores it against the current baseline. Warning and
// Critical outcomes are deduped, persisted for audit, and published
// for live subscribers. A vehicle without a baseline yet is skipped
// silently; that is the expected warm-up state.
type HealthEvaluator struct {
	ch       <-chan *domain.TelemetryReading
	db       *store.TimescaleStore
	redis    *store.RedisStore
	learner  *baseline.Learner
	analyzer *deviation.Analyzer
	scorer   *risk.Scorer
	log      *slog.Logger
}

func NewHealthEvaluator(
	ch <-chan *domain.TelemetryReading,
	db *store.TimescaleStore,
	redis *store.RedisStore,
	learner *baseline.Learner,
	analyzer *deviation.Analyzer,
	scorer *risk.Scorer,
	log *slog.Logger,
) *HealthEvaluator {
	return &HealthEvaluator{
		ch:       ch,
		db:       db,
		redis:    redis,
		learner:  learner,
		analyzer: analyzer,
		scorer:   scorer,
		log:      log,
	}
}

func (e *HealthEvaluator) Run(ctx context.Context) {
	for {
		select {
		case reading, ok := <-e.ch:
			if !ok {
				return
			}
			e.evaluate(context.Background(), reading)

		case <-ctx.Done():
			return
		}
	}
}

func (e *HealthEvaluator) evaluate(ctx context.Context, reading *domain.TelemetryReading) {
	e.learner.UpdateIncremental(reading.VehicleID, reading.Gear, reading)

	gearBaseline, ok := e.learner.GetBaseline(reading.VehicleID, reading.Gear)
	if !ok {
		return
	}

	devs, err := e.analyzer.AnalyzeAll(reading.MetricValues(), gearBaseline)
	if err != nil {
		// A broken std invariant must surface, not vanish into the queue.
		e.log.Error("deviation analysis failed", "vehicle_id", reading.VehicleID, "gear", reading.Gear, "error", err)
		return
	}

	assessment := e.scorer.Assess(devs)
	if assessment.OverallStatus == domain.StatusNormal {
		return
	}

	isDuplicate, err := e.redis.CheckAssessmentDedup(ctx, reading.VehicleID, assessment.OverallStatus)
	if err != nil {
		e.log.Warn("assessment dedup check failed", "vehicle_id", reading.VehicleID, "error", err)
		return
	}
	if isDuplicate {
		return
	}

	if err := e.db.InsertAssessment(ctx, reading.VehicleID, reading.Gear, assessment.OverallScore, assessment.OverallStatus); err != nil {
		e.log.Warn("assessment insert failed", "vehicle_id", reading.VehicleID, "error", err)
		return
	}

	if err := e.redis.SetAssessmentDedup(ctx, reading.VehicleID, assessment.OverallStatus); err != nil {
		e.log.Warn("assessment dedup set failed", "vehicle_id", reading.VehicleID, "error", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"vehicle_id":        reading.VehicleID,
		"gear":              reading.Gear,
		"safety_score":      assessment.OverallScore,
		"status":            string(assessment.OverallStatus),
		"per_metric_scores": assessment.PerMetricScores,
		"triggered_at":      time.Now().Unix(),
	})
	if err := e.redis.PublishAssessment(ctx, reading.VehicleID, payload); err != nil {
		e.log.Warn("assessment publish failed", "vehicle_id", reading.VehicleID, "error", err)
		return
	}
	metrics.AssessmentsPublished.Add(1)
}
