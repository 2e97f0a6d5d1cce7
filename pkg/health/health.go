package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/jeeves-thermolight/pkg/mqtt"
	"github.com/saaga0h/jeeves-thermolight/pkg/redis"
)

// AgentStatus is the view of the agent the detailed check reports on
type AgentStatus interface {
	SessionConnected() bool
	LastCycle() (at time.Time, outcome string, ok bool)
	ConsecutiveFailures() int
}

// Checker provides health check functionality for agents.
// mqtt and redis are nil when the agent runs without them.
type Checker struct {
	agent  AgentStatus
	mqtt   mqtt.Client
	redis  redis.Client
	stale  time.Duration
	logger *slog.Logger
}

// NewChecker creates a new health checker.
// A last cycle older than stale marks the agent degraded.
func NewChecker(agent AgentStatus, mqttClient mqtt.Client, redisClient redis.Client, stale time.Duration, logger *slog.Logger) *Checker {
	return &Checker{
		agent:  agent,
		mqtt:   mqttClient,
		redis:  redisClient,
		stale:  stale,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
	Agent     *Agent    `json:"agent,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Device string `json:"device"`
	Redis  string `json:"redis"`
	MQTT   string `json:"mqtt"`
}

// Agent summarizes the poll loop
type Agent struct {
	LastCycle           string `json:"last_cycle,omitempty"`
	LastOutcome         string `json:"last_outcome,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// HandlerFunc returns an HTTP handler function for health checks.
// Returns 200 if process is alive without checking dependencies.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		h.write(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that reports the device session,
// the poll loop and the optional MQTT/Redis connections
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Device: "unknown",
			Redis:  "disabled",
			MQTT:   "disabled",
		}
		agent := &Agent{}
		degraded := false

		if h.agent != nil {
			if h.agent.SessionConnected() {
				services.Device = "connected"
			} else {
				services.Device = "disconnected"
				degraded = true
			}

			at, outcome, ok := h.agent.LastCycle()
			if ok {
				agent.LastCycle = at.UTC().Format(time.RFC3339)
				agent.LastOutcome = outcome
				if h.stale > 0 && time.Since(at) > h.stale {
					degraded = true
				}
			}
			agent.ConsecutiveFailures = h.agent.ConsecutiveFailures()
			if agent.ConsecutiveFailures > 0 {
				degraded = true
			}
		}

		if h.mqtt != nil {
			if h.mqtt.IsConnected() {
				services.MQTT = "connected"
			} else {
				services.MQTT = "disconnected"
				degraded = true
			}
		}

		// Redis is not pinged here to keep the check fast
		if h.redis != nil {
			services.Redis = "configured"
		}

		status := "healthy"
		statusCode := http.StatusOK
		if degraded {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.write(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
			Agent:     agent,
		})
	}
}

// Mux serves /health, /health/detailed and, when metrics is non-nil, /metrics
func (h *Checker) Mux(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandlerFunc())
	mux.HandleFunc("/health/detailed", h.DetailedHandlerFunc())
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
