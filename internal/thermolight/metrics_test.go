package thermolight

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics("study")

	m.Observe(CycleResult{
		Outcome:        OutcomeSuccess,
		Action:         ActionSetColour,
		Duration:       120 * time.Millisecond,
		Temperature:    21.5,
		HasTemperature: true,
		Color:          Color{0, 102, 127.5},
		HasColor:       true,
	}, SessionConnected, 2, 0)

	assert.Equal(t, 21.5, testutil.ToFloat64(m.temperature))
	assert.Equal(t, 102.0, testutil.ToFloat64(m.colour.WithLabelValues("g")))
	assert.Equal(t, 127.5, testutil.ToFloat64(m.colour.WithLabelValues("b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("success", ActionSetColour)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionConnected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionRebuilds))

	m.Observe(CycleResult{
		Outcome: OutcomeRecoverable,
		Action:  ActionNone,
	}, SessionDisconnected, 3, 1)

	assert.Equal(t, 21.5, testutil.ToFloat64(m.temperature), "a failed read keeps the last value")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("recoverable", ActionNone)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failureStreak))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("study")
	m.Observe(CycleResult{Outcome: OutcomeSuccess, Action: ActionHold}, SessionConnected, 0, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `thermolight_cycles_total{action="hold",location="study",outcome="success"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe(CycleResult{}, SessionConnected, 0, 0)
	})
}
