package pipeline

import (
	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/metrics"
)

// Dispatcher fans each accepted reading out to the persistence, state
// and health-evaluation channels. Sends never block; a full channel
// drops the reading for that consumer and counts it.
type Dispatcher struct {
	DBChan     chan *domain.TelemetryReading
	StateChan  chan *domain.TelemetryReading
	HealthChan chan *domain.TelemetryReading
}

func NewDispatcher(dbSize, stateSize, healthSize int) *Dispatcher {
	return &Dispatcher{
		DBChan:     make(chan *domain.TelemetryReading, dbSize),
		StateChan:  make(chan *domain.TelemetryReading, stateSize),
		HealthChan: make(chan *domain.TelemetryReading, healthSize),
	}
}

func (d *Dispatcher) Dispatch(reading *domain.TelemetryReading) {
	select {
	case d.DBChan <- reading:
	default:
		metrics.DBChannelDrops.Add(1)
	}

	select {
	case d.StateChan <- reading:
	default:
		metrics.StateChannelDrops.Add(1)
	}

	select {
	case d.HealthChan <- reading:
	default:
		metrics.HealthChannelDrops.Add(1)
	}
}
