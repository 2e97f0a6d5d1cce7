package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-thermolight/pkg/mqtt"
)

type stubAgent struct {
	connected bool
	at        time.Time
	outcome   string
	ran       bool
	failures  int
}

func (s *stubAgent) SessionConnected() bool { return s.connected }
func (s *stubAgent) LastCycle() (time.Time, string, bool) {
	return s.at, s.outcome, s.ran
}
func (s *stubAgent) ConsecutiveFailures() int { return s.failures }

type stubMQTT struct{ connected bool }

func (s *stubMQTT) Connect(ctx context.Context) error { return nil }
func (s *stubMQTT) Disconnect()                       {}
func (s *stubMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return nil
}
func (s *stubMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return nil
}
func (s *stubMQTT) IsConnected() bool { return s.connected }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth_Liveness(t *testing.T) {
	c := NewChecker(&stubAgent{}, nil, nil, time.Minute, testLogger())

	rec, resp := get(t, c.Mux(nil), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Services)
}

func TestHealth_Detailed(t *testing.T) {
	tests := []struct {
		name       string
		agent      *stubAgent
		mqtt       mqtt.Client
		wantCode   int
		wantDevice string
		wantMQTT   string
	}{
		{
			name:       "healthy without services",
			agent:      &stubAgent{connected: true, at: time.Now(), outcome: "success", ran: true},
			wantCode:   http.StatusOK,
			wantDevice: "connected",
			wantMQTT:   "disabled",
		},
		{
			name:       "session down",
			agent:      &stubAgent{connected: false, at: time.Now(), outcome: "recoverable", ran: true, failures: 1},
			wantCode:   http.StatusServiceUnavailable,
			wantDevice: "disconnected",
			wantMQTT:   "disabled",
		},
		{
			name:       "stale cycle",
			agent:      &stubAgent{connected: true, at: time.Now().Add(-time.Hour), outcome: "success", ran: true},
			wantCode:   http.StatusServiceUnavailable,
			wantDevice: "connected",
			wantMQTT:   "disabled",
		},
		{
			name:       "mqtt disconnected",
			agent:      &stubAgent{connected: true, at: time.Now(), outcome: "success", ran: true},
			mqtt:       &stubMQTT{connected: false},
			wantCode:   http.StatusServiceUnavailable,
			wantDevice: "connected",
			wantMQTT:   "disconnected",
		},
		{
			name:       "mqtt connected",
			agent:      &stubAgent{connected: true, at: time.Now(), outcome: "success", ran: true},
			mqtt:       &stubMQTT{connected: true},
			wantCode:   http.StatusOK,
			wantDevice: "connected",
			wantMQTT:   "connected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.agent, tt.mqtt, nil, 5*time.Minute, testLogger())

			rec, resp := get(t, c.Mux(nil), "/health/detailed")
			assert.Equal(t, tt.wantCode, rec.Code)
			require.NotNil(t, resp.Services)
			assert.Equal(t, tt.wantDevice, resp.Services.Device)
			assert.Equal(t, tt.wantMQTT, resp.Services.MQTT)
			assert.Equal(t, "disabled", resp.Services.Redis)
			require.NotNil(t, resp.Agent)
			assert.Equal(t, tt.agent.outcome, resp.Agent.LastOutcome)
		})
	}
}

func TestHealth_MetricsRoute(t *testing.T) {
	c := NewChecker(&stubAgent{}, nil, nil, time.Minute, testLogger())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "thermolight_cycles_total 1\n")
	})

	rec, _ := get(t, c.Mux(metrics), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "thermolight_cycles_total")

	rec, _ = get(t, c.Mux(nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
