package domain

import (
	"errors"
	"math"
	"time"
)

type TelemetryReading struct {
	ReceivedAt time.Time

	Timestamp time.Time
	VehicleID string
	Gear      int

	SpeedKmph   float64
	RPM         float64
	EngineTempC float64
	OilPressure float64
	Vibration   float64

	RawPayload []byte
}

// Metric names used as map keys throughout the analysis pipeline.
const (
	MetricRPM         = "rpm"
	MetricEngineTemp  = "engine_temp"
	MetricOilPressure = "oil_pressure"
	MetricVibration   = "vibration"
)

// MetricNames lists the four analyzed metrics in canonical order.
// Speed is carried through telemetry but never analyzed.
var MetricNames = []string{MetricRPM, MetricEngineTemp, MetricOilPressure, MetricVibration}

// MetricValues extracts the analyzed metrics keyed by name.
func (r *TelemetryReading) MetricValues() map[string]float64 {
	return map[string]float64{
		MetricRPM:         r.RPM,
		MetricEngineTemp:  r.EngineTempC,
		MetricOilPressure: r.OilPressure,
		MetricVibration:   r.Vibration,
	}
}

// Validate checks the core's input precondition: a stable vehicle key,
// a positive gear, and four finite metric values.
func (r *TelemetryReading) Validate() error {
	if r.VehicleID == "" {
		return errors.New("missing vehicle_id")
	}
	if r.Gear <= 0 {
		return errors.New("gear must be a positive integer")
	}
	for name, v := range r.MetricValues() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite value for " + name)
		}
	}
	return nil
}
