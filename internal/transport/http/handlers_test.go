package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engine-health/monitor/internal/auth"
	"engine-health/monitor/internal/baseline"
	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/deviation"
	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/health"
	"engine-health/monitor/internal/pipeline"
	"engine-health/monitor/internal/risk"
)

type stubSource struct {
	readings map[string]*domain.TelemetryReading
	ids      []string
}

func (s *stubSource) LatestReading(ctx context.Context, vehicleID string) (*domain.TelemetryReading, error) {
	r, ok := s.readings[vehicleID]
	if !ok {
		return nil, domain.ErrInsufficientData
	}
	return r, nil
}

func (s *stubSource) VehicleIDs(ctx context.Context) ([]string, error) {
	return s.ids, nil
}

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		MinSamples:  10,
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

// newTestServer wires the handler with a stubbed telemetry source and
// a static API key. Redis and the database are not touched by the
// routes under test.
func newTestServer(t *testing.T, source *stubSource, history []*domain.TelemetryReading) (http.Handler, *pipeline.Dispatcher) {
	t.Helper()
	cfg := testHealthConfig()
	learner := baseline.NewLearner(cfg, slog.Default())
	if history != nil {
		if err := learner.LearnFromHistory(context.Background(), history); err != nil {
			t.Fatalf("LearnFromHistory: %v", err)
		}
	}
	service := health.NewService(source, learner, deviation.NewAnalyzer(cfg), risk.NewScorer(cfg), slog.Default())
	dispatcher := pipeline.NewDispatcher(16, 16, 16)
	handler := NewHandler(service, dispatcher, nil, nil, slog.Default())

	authenticator := auth.NewAuthenticator(&config.Config{
		AuthCacheTTLSeconds: 300,
		ValidAPIKeys:        []string{"test_key"},
	}, nil)
	return handler.Routes(NewAuthMiddleware(authenticator)), dispatcher
}

func steadyHistory(vehicleID string, gear, n int) []*domain.TelemetryReading {
	var readings []*domain.TelemetryReading
	for i := 0; i < n; i++ {
		sign := 1.0
		if i%2 == 1 {
			sign = -1.0
		}
		readings = append(readings, &domain.TelemetryReading{
			Timestamp:   time.Now(),
			VehicleID:   vehicleID,
			Gear:        gear,
			RPM:         1500 + sign*200,
			EngineTempC: 90 + sign,
			OilPressure: 50 + sign,
			Vibration:   3 + sign*0.1,
		})
	}
	return readings
}

func TestEngineStatus_RequiresVehicleID(t *testing.T) {
	srv, _ := newTestServer(t, &stubSource{}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/engine-status", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEngineStatus_InsufficientDataIsNotAnError(t *testing.T) {
	srv, _ := newTestServer(t, &stubSource{readings: map[string]*domain.TelemetryReading{}}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/engine-status?vehicle_id=VH_99", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (absence is not a fault)", rec.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Success {
		t.Error("success should be false for a vehicle without baseline")
	}
	if resp.Message == "" {
		t.Error("expected a human-readable message")
	}
}

func TestEngineStatus_ReturnsAssessment(t *testing.T) {
	reading := &domain.TelemetryReading{
		Timestamp:   time.Now(),
		VehicleID:   "VH_01",
		Gear:        3,
		RPM:         1500,
		EngineTempC: 90,
		OilPressure: 50,
		Vibration:   3,
	}
	source := &stubSource{readings: map[string]*domain.TelemetryReading{"VH_01": reading}}
	srv, _ := newTestServer(t, source, steadyHistory("VH_01", 3, 20))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/engine-status?vehicle_id=VH_01", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Success bool                      `json:"success"`
		Data    domain.EngineHealthStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}
	if resp.Data.OverallStatus != domain.StatusNormal {
		t.Errorf("overall status = %v, want Normal", resp.Data.OverallStatus)
	}
	if len(resp.Data.Deviations) != 4 {
		t.Errorf("got %d deviations, want 4", len(resp.Data.Deviations))
	}
}

func TestBatchEngineStatus_MixesPresentAndAbsent(t *testing.T) {
	reading := &domain.TelemetryReading{
		Timestamp:   time.Now(),
		VehicleID:   "VH_01",
		Gear:        3,
		RPM:         1500,
		EngineTempC: 90,
		OilPressure: 50,
		Vibration:   3,
	}
	source := &stubSource{readings: map[string]*domain.TelemetryReading{"VH_01": reading}}
	srv, _ := newTestServer(t, source, steadyHistory("VH_01", 3, 20))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/engine-status/batch?vehicle_ids=VH_01,VH_99", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Success bool                                  `json:"success"`
		Data    map[string]*domain.EngineHealthStatus `json:"data"`
		Count   int                                   `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	if resp.Data["VH_01"] == nil {
		t.Error("VH_01 should have a status")
	}
	if resp.Data["VH_99"] != nil {
		t.Error("VH_99 should be null (no baseline)")
	}
}

func TestVehicles_ListsAll(t *testing.T) {
	srv, _ := newTestServer(t, &stubSource{ids: []string{"VH_01", "VH_02"}}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/vehicles", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data struct {
			Vehicles []string `json:"vehicles"`
			Count    int      `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Data.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Data.Count)
	}
}

func TestIngest_RequiresAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, &stubSource{}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/ingest", bytes.NewBufferString(`{}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestIngest_AcceptsAndDispatches(t *testing.T) {
	srv, dispatcher := newTestServer(t, &stubSource{}, nil)

	payload := `{
		"vehicle_id": "VH_01",
		"gear": 3,
		"speed_kmph": 62.5,
		"rpm": 1520,
		"engine_temp_c": 91.2,
		"oil_pressure_psi": 49.8,
		"vibration": 3.1
	}`
	req := httptest.NewRequest("POST", "/ingest", bytes.NewBufferString(payload))
	req.Header.Set("X-API-Key", "test_key")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	select {
	case reading := <-dispatcher.HealthChan:
		if reading.VehicleID != "VH_01" || reading.Gear != 3 || reading.RPM != 1520 {
			t.Errorf("dispatched reading mismatch: %+v", reading)
		}
		if reading.Timestamp.IsZero() || reading.ReceivedAt.IsZero() {
			t.Error("timestamps should be stamped on ingest")
		}
	default:
		t.Fatal("reading was not dispatched")
	}
}

func TestIngest_RejectsMissingMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &stubSource{}, nil)

	payload := `{"vehicle_id": "VH_01", "gear": 3, "rpm": 1520}`
	req := httptest.NewRequest("POST", "/ingest", bytes.NewBufferString(payload))
	req.Header.Set("X-API-Key", "test_key")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing metric fields", rec.Code)
	}
}

func TestIngest_RejectsNonPositiveGear(t *testing.T) {
	srv, _ := newTestServer(t, &stubSource{}, nil)

	payload := `{
		"vehicle_id": "VH_01",
		"gear": 0,
		"rpm": 1520,
		"engine_temp_c": 91.2,
		"oil_pressure_psi": 49.8,
		"vibration": 3.1
	}`
	req := httptest.NewRequest("POST", "/ingest", bytes.NewBufferString(payload))
	req.Header.Set("X-API-Key", "test_key")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for non-positive gear", rec.Code)
	}
}
