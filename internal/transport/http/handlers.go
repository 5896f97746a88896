package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"engine-health/monitor/internal/domain"
	"engine-health/monitor/internal/health"
	"engine-health/monitor/internal/metrics"
	"engine-health/monitor/internal/pipeline"
	"engine-health/monitor/internal/store"
)

type Handler struct {
	service    *health.Service
	dispatcher *pipeline.Dispatcher
	redis      *store.RedisStore
	db         *store.TimescaleStore
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(
	service *health.Service,
	dispatcher *pipeline.Dispatcher,
	redis *store.RedisStore,
	db *store.TimescaleStore,
	log *slog.Logger,
) *Handler {
	return &Handler{
		service:    service,
		dispatcher: dispatcher,
		redis:      redis,
		db:         db,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the service mux. Ingest sits behind API-key auth;
// read endpoints are open, matching the original service's surface.
func (h *Handler) Routes(authMW *AuthMiddleware) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /ingest", authMW.Wrap(http.HandlerFunc(h.handleIngest)))
	mux.HandleFunc("GET /engine-status", h.handleEngineStatus)
	mux.HandleFunc("GET /engine-status/batch", h.handleBatchEngineStatus)
	mux.HandleFunc("GET /vehicles", h.handleVehicles)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /metrics", metrics.HandleMetrics)
	mux.HandleFunc("GET /ws/health", h.handleHealthStream)
	return mux
}

type ingestRequest struct {
	Timestamp   *time.Time `json:"timestamp"`
	VehicleID   string     `json:"vehicle_id"`
	Gear        *int       `json:"gear"`
	SpeedKmph   *float64   `json:"speed_kmph"`
	RPM         *float64   `json:"rpm"`
	EngineTempC *float64   `json:"engine_temp_c"`
	OilPressure *float64   `json:"oil_pressure_psi"`
	Vibration   *float64   `json:"vibration"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.ReadingsRejected.Add(1)
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Missing metric fields are an input-validation failure at the
	// boundary; the core's precondition is four present, finite values.
	if req.Gear == nil || req.RPM == nil || req.EngineTempC == nil ||
		req.OilPressure == nil || req.Vibration == nil {
		metrics.ReadingsRejected.Add(1)
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	reading := &domain.TelemetryReading{
		ReceivedAt:  time.Now().UTC(),
		VehicleID:   req.VehicleID,
		Gear:        *req.Gear,
		RPM:         *req.RPM,
		EngineTempC: *req.EngineTempC,
		OilPressure: *req.OilPressure,
		Vibration:   *req.Vibration,
		RawPayload:  body,
	}
	if req.Timestamp != nil {
		reading.Timestamp = req.Timestamp.UTC()
	} else {
		reading.Timestamp = reading.ReceivedAt
	}
	if req.SpeedKmph != nil {
		reading.SpeedKmph = *req.SpeedKmph
	}

	if err := reading.Validate(); err != nil {
		metrics.ReadingsRejected.Add(1)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.ReadingsReceived.Add(1)
	h.dispatcher.Dispatch(reading)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}

func (h *Handler) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicle_id")
	if vehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicle_id query parameter is required")
		return
	}

	status, err := h.service.Assess(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			writeJSON(w, map[string]interface{}{
				"success": false,
				"message": "Vehicle " + vehicleID + " not found or insufficient baseline data",
			})
			return
		}
		h.log.Error("engine status failed", "vehicle_id", vehicleID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"data":    status,
		"message": "Engine status retrieved successfully",
	})
}

func (h *Handler) handleBatchEngineStatus(w http.ResponseWriter, r *http.Request) {
	var vehicleIDs []string
	if raw := r.URL.Query().Get("vehicle_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				vehicleIDs = append(vehicleIDs, id)
			}
		}
	} else {
		ids, err := h.service.Vehicles(r.Context())
		if err != nil {
			h.log.Error("vehicle listing failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		vehicleIDs = ids
	}

	results := make(map[string]*domain.EngineHealthStatus, len(vehicleIDs))
	for _, id := range vehicleIDs {
		status, err := h.service.Assess(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				results[id] = nil
				continue
			}
			h.log.Error("engine status failed", "vehicle_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		results[id] = status
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"data":    results,
		"count":   len(results),
	})
}

func (h *Handler) handleVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.service.Vehicles(r.Context())
	if err != nil {
		h.log.Error("vehicle listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"vehicles": vehicles,
			"count":    len(vehicles),
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := h.db.Ping(r.Context()) == nil
	redisOK := h.redis.Ping(r.Context()) == nil

	status := "healthy"
	code := http.StatusOK
	if !dbOK || !redisOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"db":     dbOK,
		"redis":  redisOK,
	})
}

// handleHealthStream bridges the per-vehicle assessment pub/sub channel
// onto a websocket.
func (h *Handler) handleHealthStream(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicle_id")
	if vehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicle_id query parameter is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.redis.SubscribeAssessments(r.Context(), vehicleID)
	defer sub.Close()

	// Drain client frames so close/ping handling works; the stream is
	// server-to-client only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
