package baseline

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/domain"
)

// Key addresses one learned baseline.
type Key struct {
	VehicleID string
	Gear      int
}

type sample struct {
	rpm         float64
	engineTemp  float64
	oilPressure float64
	vibration   float64
}

// Learner owns the baseline store. Baselines are learned per
// (vehicle, gear): expected metric ranges differ by gear, so each gear
// gets its own profile. Stored values are replaced whole, never mutated
// in place, so readers always observe a fully-built baseline.
type Learner struct {
	cfg config.HealthConfig
	log *slog.Logger

	mu        sync.RWMutex
	baselines map[Key]*domain.GearBaseline
	history   map[Key][]sample
}

func NewLearner(cfg config.HealthConfig, log *slog.Logger) *Learner {
	return &Learner{
		cfg:       cfg,
		log:       log,
		baselines: make(map[Key]*domain.GearBaseline),
		history:   make(map[Key][]sample),
	}
}

// LearnFromHistory builds baselines from a full historical dataset.
// Readings are partitioned by vehicle then gear; groups below
// MinSamples are skipped and stay queryable as absent. Partitions are
// independent, so statistics are computed in parallel and only the
// final store writes take the lock.
func (l *Learner) LearnFromHistory(ctx context.Context, readings []*domain.TelemetryReading) error {
	groups := make(map[Key][]sample)
	for _, r := range readings {
		k := Key{VehicleID: r.VehicleID, Gear: r.Gear}
		groups[k] = append(groups[k], sample{
			rpm:         r.RPM,
			engineTemp:  r.EngineTempC,
			oilPressure: r.OilPressure,
			vibration:   r.Vibration,
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	learned := 0
	for k, samples := range groups {
		if len(samples) < l.cfg.MinSamples {
			l.log.Warn("skipping baseline: not enough samples",
				"vehicle_id", k.VehicleID,
				"gear", k.Gear,
				"samples", len(samples),
				"min_samples", l.cfg.MinSamples,
			)
			continue
		}
		learned++

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := l.computeBaseline(k, windowed(samples, l.cfg.WindowSize))
			l.mu.Lock()
			l.baselines[k] = &b
			l.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	l.log.Info("baseline learning complete",
		"groups", len(groups),
		"learned", learned,
	)
	return nil
}

// UpdateIncremental feeds one new reading into the bounded history
// buffer for its (vehicle, gear) and, once MinSamples have accumulated,
// recomputes the baseline over the retained window. This is a full
// windowed recompute, not an exponential estimator: it reproduces batch
// learning exactly over whatever the window currently holds.
func (l *Learner) UpdateIncremental(vehicleID string, gear int, r *domain.TelemetryReading) {
	k := Key{VehicleID: vehicleID, Gear: gear}
	s := sample{
		rpm:         r.RPM,
		engineTemp:  r.EngineTempC,
		oilPressure: r.OilPressure,
		vibration:   r.Vibration,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buf := append(l.history[k], s)
	if l.cfg.WindowSize > 0 && len(buf) > l.cfg.WindowSize {
		buf = buf[len(buf)-l.cfg.WindowSize:]
	}
	l.history[k] = buf

	if len(buf) < l.cfg.MinSamples {
		return
	}
	b := l.computeBaseline(k, buf)
	l.baselines[k] = &b
}

// GetBaseline returns a read-only snapshot. The second result is false
// while no baseline exists yet; absence is an expected state, not an
// error.
func (l *Learner) GetBaseline(vehicleID string, gear int) (domain.GearBaseline, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.baselines[Key{VehicleID: vehicleID, Gear: gear}]
	if !ok {
		return domain.GearBaseline{}, false
	}
	return *b, true
}

func (l *Learner) HasBaseline(vehicleID string, gear int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.baselines[Key{VehicleID: vehicleID, Gear: gear}]
	return ok
}

// epsilonStd guards the zero-variance case when the mean is also zero.
const epsilonStd = 1e-6

func (l *Learner) computeBaseline(k Key, samples []sample) domain.GearBaseline {
	values := map[string][]float64{
		domain.MetricRPM:         make([]float64, len(samples)),
		domain.MetricEngineTemp:  make([]float64, len(samples)),
		domain.MetricOilPressure: make([]float64, len(samples)),
		domain.MetricVibration:   make([]float64, len(samples)),
	}
	for i, s := range samples {
		values[domain.MetricRPM][i] = s.rpm
		values[domain.MetricEngineTemp][i] = s.engineTemp
		values[domain.MetricOilPressure][i] = s.oilPressure
		values[domain.MetricVibration][i] = s.vibration
	}

	stats := make(map[string]domain.BaselineStats, len(values))
	for name, vs := range values {
		mean, std := meanStd(vs)
		if std == 0 {
			// All samples identical. Correct to 5% of the mean so the
			// std > 0 invariant holds before storage; divide-by-zero
			// downstream would otherwise be possible.
			std = math.Max(mean*0.05, epsilonStd)
			l.log.Warn("zero variance corrected",
				"vehicle_id", k.VehicleID,
				"gear", k.Gear,
				"metric", name,
				"std", std,
			)
		}
		stats[name] = domain.BaselineStats{Mean: mean, Std: std, Count: len(vs)}
	}

	return domain.GearBaseline{
		Gear:        k.Gear,
		RPM:         stats[domain.MetricRPM],
		EngineTemp:  stats[domain.MetricEngineTemp],
		OilPressure: stats[domain.MetricOilPressure],
		Vibration:   stats[domain.MetricVibration],
	}
}

// meanStd computes the mean and sample standard deviation (n-1).
func meanStd(vs []float64) (float64, float64) {
	n := float64(len(vs))
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / n

	if len(vs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}

func windowed(samples []sample, size int) []sample {
	if size > 0 && len(samples) > size {
		return samples[len(samples)-size:]
	}
	return samples
}
