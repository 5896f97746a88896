package baseline

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/domain"
)

func testConfig(minSamples, windowSize int) config.HealthConfig {
	return config.HealthConfig{
		MinSamples:  minSamples,
		WindowSize:  windowSize,
		WarningStd:  2.0,
		CriticalStd: 3.5,
		WarningPct:  20.0,
		CriticalPct: 40.0,
		MetricWeights: map[string]float64{
			domain.MetricRPM:         0.25,
			domain.MetricEngineTemp:  0.30,
			domain.MetricOilPressure: 0.25,
			domain.MetricVibration:   0.20,
		},
	}
}

func makeReading(vehicleID string, gear int, rpm, temp, oil, vib float64) *domain.TelemetryReading {
	return &domain.TelemetryReading{
		Timestamp:   time.Now(),
		VehicleID:   vehicleID,
		Gear:        gear,
		RPM:         rpm,
		EngineTempC: temp,
		OilPressure: oil,
		Vibration:   vib,
	}
}

func TestLearnFromHistory_ZeroVarianceCorrection(t *testing.T) {
	l := NewLearner(testConfig(10, 0), slog.Default())

	var readings []*domain.TelemetryReading
	for i := 0; i < 10; i++ {
		readings = append(readings, makeReading("VH_01", 3, 1500, 90, 50, 3.0))
	}
	if err := l.LearnFromHistory(context.Background(), readings); err != nil {
		t.Fatalf("LearnFromHistory: %v", err)
	}

	b, ok := l.GetBaseline("VH_01", 3)
	if !ok {
		t.Fatal("expected baseline for VH_01 gear 3")
	}
	// 10 identical rpm readings of 1500: std corrected to 5% of mean.
	if b.RPM.Mean != 1500 {
		t.Errorf("rpm mean = %v, want 1500", b.RPM.Mean)
	}
	if b.RPM.Std != 75.0 {
		t.Errorf("rpm std = %v, want 75.0 (5%% of mean)", b.RPM.Std)
	}
	if b.RPM.Count != 10 {
		t.Errorf("rpm count = %d, want 10", b.RPM.Count)
	}
	// Every metric must satisfy std > 0 post-construction.
	for _, name := range domain.MetricNames {
		stats, _ := b.Stats(name)
		if stats.Std <= 0 {
			t.Errorf("metric %s: std = %v, want > 0", name, stats.Std)
		}
	}
}

func TestLearnFromHistory_ZeroMeanUsesEpsilon(t *testing.T) {
	l := NewLearner(testConfig(10, 0), slog.Default())

	var readings []*domain.TelemetryReading
	for i := 0; i < 10; i++ {
		readings = append(readings, makeReading("VH_01", 1, 1000, 80, 40, 0))
	}
	if err := l.LearnFromHistory(context.Background(), readings); err != nil {
		t.Fatalf("LearnFromHistory: %v", err)
	}

	b, _ := l.GetBaseline("VH_01", 1)
	if b.Vibration.Std <= 0 {
		t.Errorf("vibration std = %v, want small positive epsilon", b.Vibration.Std)
	}
}

func TestLearnFromHistory_BelowMinSamplesIsAbsent(t *testing.T) {
	l := NewLearner(testConfig(10, 0), slog.Default())

	var readings []*domain.TelemetryReading
	for i := 0; i < 5; i++ {
		readings = append(readings, makeReading("VH_02", 2, 2000, 88, 48, 3.0))
	}
	if err := l.LearnFromHistory(context.Background(), readings); err != nil {
		t.Fatalf("LearnFromHistory: %v", err)
	}

	if l.HasBaseline("VH_02", 2) {
		t.Error("baseline should be absent below min samples")
	}
	if _, ok := l.GetBaseline("VH_02", 2); ok {
		t.Error("GetBaseline should report absence, not a degenerate baseline")
	}
}

func TestLearnFromHistory_PartitionsByVehicleAndGear(t *testing.T) {
	l := NewLearner(testConfig(10, 0), slog.Default())

	var readings []*domain.TelemetryReading
	for i := 0; i < 10; i++ {
		readings = append(readings, makeReading("VH_01", 1, 1500, 85, 45, 2.5))
		readings = append(readings, makeReading("VH_01", 2, 2000, 88, 48, 3.0))
		readings = append(readings, makeReading("VH_02", 1, 3000, 95, 55, 4.0))
	}
	if err := l.LearnFromHistory(context.Background(), readings); err != nil {
		t.Fatalf("LearnFromHistory: %v", err)
	}

	b1, ok := l.GetBaseline("VH_01", 1)
	if !ok || b1.RPM.Mean != 1500 {
		t.Errorf("VH_01 gear 1 rpm mean = %v, want 1500", b1.RPM.Mean)
	}
	b2, ok := l.GetBaseline("VH_01", 2)
	if !ok || b2.RPM.Mean != 2000 {
		t.Errorf("VH_01 gear 2 rpm mean = %v, want 2000", b2.RPM.Mean)
	}
	b3, ok := l.GetBaseline("VH_02", 1)
	if !ok || b3.RPM.Mean != 3000 {
		t.Errorf("VH_02 gear 1 rpm mean = %v, want 3000", b3.RPM.Mean)
	}
}

func TestLearnFromHistory_SampleStd(t *testing.T) {
	l := NewLearner(testConfig(2, 0), slog.Default())

	readings := []*domain.TelemetryReading{
		makeReading("VH_01", 1, 1400, 85, 45, 2.5),
		makeReading("VH_01", 1, 1600, 85, 45, 2.5),
	}
	if err := l.LearnFromHistory(context.Background(), readings); err != nil {
		t.Fatalf("LearnFromHistory: %v", err)
	}

	b, _ := l.GetBaseline("VH_01", 1)
	// Sample std of {1400, 1600}: sqrt((100^2 + 100^2)/1) ≈ 141.42
	want := math.Sqrt(20000)
	if math.Abs(b.RPM.Std-want) > 1e-9 {
		t.Errorf("rpm std = %v, want %v", b.RPM.Std, want)
	}
}

func TestUpdateIncremental_BuildsBaselineAtMinSamples(t *testing.T) {
	l := NewLearner(testConfig(3, 0), slog.Default())

	l.UpdateIncremental("VH_01", 2, makeReading("VH_01", 2, 10, 80, 40, 1))
	l.UpdateIncremental("VH_01", 2, makeReading("VH_01", 2, 10, 80, 40, 1))
	if l.HasBaseline("VH_01", 2) {
		t.Fatal("baseline should not exist below min samples")
	}

	l.UpdateIncremental("VH_01", 2, makeReading("VH_01", 2, 10, 80, 40, 1))
	b, ok := l.GetBaseline("VH_01", 2)
	if !ok {
		t.Fatal("baseline should exist at min samples")
	}
	if b.RPM.Mean != 10 {
		t.Errorf("rpm mean = %v, want 10", b.RPM.Mean)
	}
	// Zero variance correction applies to incremental recompute too.
	if b.RPM.Std != 0.5 {
		t.Errorf("rpm std = %v, want 0.5 (5%% of mean)", b.RPM.Std)
	}
}

func TestUpdateIncremental_WindowEvictsOldest(t *testing.T) {
	l := NewLearner(testConfig(3, 5), slog.Default())

	values := []float64{10, 10, 20, 30, 40, 50}
	for _, v := range values {
		l.UpdateIncremental("VH_01", 1, makeReading("VH_01", 1, v, 80, 40, 1))
	}

	b, ok := l.GetBaseline("VH_01", 1)
	if !ok {
		t.Fatal("expected baseline")
	}
	// Window keeps the most recent 5: {10, 20, 30, 40, 50}, mean 30.
	if b.RPM.Mean != 30 {
		t.Errorf("rpm mean = %v, want 30 after FIFO eviction", b.RPM.Mean)
	}
	if b.RPM.Count != 5 {
		t.Errorf("rpm count = %d, want 5", b.RPM.Count)
	}
}

func TestGetBaseline_ReturnsSnapshot(t *testing.T) {
	l := NewLearner(testConfig(3, 0), slog.Default())
	for i := 0; i < 3; i++ {
		l.UpdateIncremental("VH_01", 1, makeReading("VH_01", 1, 100, 80, 40, 1))
	}

	b1, _ := l.GetBaseline("VH_01", 1)
	b1.RPM.Mean = -999 // mutating the copy must not touch the store

	b2, _ := l.GetBaseline("VH_01", 1)
	if b2.RPM.Mean != 100 {
		t.Errorf("stored baseline mutated through snapshot: mean = %v", b2.RPM.Mean)
	}
}

func TestLearnFromHistory_WindowRestrictsToRecent(t *testing.T) {
	l := NewLearner(testConfig(10, 10), slog.Default())

	var readings []*domain.TelemetryReading
	// 10 old readings at 1000 rpm, then 10 recent at 2000 rpm.
	for i := 0; i < 10; i++ {
		readings = append(readings, makeReading("VH_01", 1, 1000, 85, 45, 2.5))
	}
	for i := 0; i < 10; i++ {
		readings = append(readings, makeReading("VH_01", 1, 2000, 85, 45, 2.5))
	}
	if err := l.LearnFromHistory(context.Background(), readings); err != nil {
		t.Fatalf("LearnFromHistory: %v", err)
	}

	b, _ := l.GetBaseline("VH_01", 1)
	if b.RPM.Mean != 2000 {
		t.Errorf("rpm mean = %v, want 2000 (window keeps recent samples)", b.RPM.Mean)
	}
}
