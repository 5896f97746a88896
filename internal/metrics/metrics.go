package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	ReadingsReceived     atomic.Int64
	ReadingsRejected     atomic.Int64
	DBWriteSuccess       atomic.Int64
	DBWriteFailures      atomic.Int64
	DBChannelDrops       atomic.Int64
	StateChannelDrops    atomic.Int64
	HealthChannelDrops   atomic.Int64
	AssessmentsPublished atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "engine_readings_received_total %d\n", ReadingsReceived.Load())
	fmt.Fprintf(w, "engine_readings_rejected_total %d\n", ReadingsRejected.Load())
	fmt.Fprintf(w, "engine_db_write_success_total %d\n", DBWriteSuccess.Load())
	fmt.Fprintf(w, "engine_db_write_failures_total %d\n", DBWriteFailures.Load())
	fmt.Fprintf(w, "engine_db_channel_drops_total %d\n", DBChannelDrops.Load())
	fmt.Fprintf(w, "engine_state_channel_drops_total %d\n", StateChannelDrops.Load())
	fmt.Fprintf(w, "engine_health_channel_drops_total %d\n", HealthChannelDrops.Load())
	fmt.Fprintf(w, "engine_assessments_published_total %d\n", AssessmentsPublished.Load())
}
