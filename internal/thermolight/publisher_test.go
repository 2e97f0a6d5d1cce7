package thermolight

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() CycleResult {
	return CycleResult{
		ID:             "c0ffee",
		StartedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:       80 * time.Millisecond,
		Outcome:        OutcomeSuccess,
		Action:         ActionSetColour,
		Reason:         "temperature_mapped",
		Mode:           "colour",
		Temperature:    21.25,
		HasTemperature: true,
		Color:          Color{0, 102, 127.5},
		HasColor:       true,
	}
}

func TestStatusPublisher_PublishesContextAndReading(t *testing.T) {
	mq := newFakeMQTT()
	rd := newFakeRedis()
	p := NewStatusPublisher(mq, rd, "thermolight-agent", "study", 5*time.Minute, discardLogger())

	require.NoError(t, p.Publish(context.Background(), sampleResult(), SessionConnected))

	msgs := mq.byTopic("automation/context/lighting/study")
	require.Len(t, msgs, 1)

	var ctxMsg map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ctxMsg))
	assert.Equal(t, "thermolight-agent", ctxMsg["source"])
	assert.Equal(t, "lighting", ctxMsg["type"])
	assert.Equal(t, "study", ctxMsg["location"])
	assert.Equal(t, ActionSetColour, ctxMsg["state"])
	assert.Equal(t, "success", ctxMsg["outcome"])
	assert.Equal(t, "colour", ctxMsg["mode"])
	assert.Equal(t, 21.25, ctxMsg["temperature"])
	assert.Equal(t, []interface{}{0.0, 102.0, 127.5}, ctxMsg["color"])
	assert.Equal(t, "connected", ctxMsg["session"])
	assert.Nil(t, ctxMsg["error_message"])

	readings := mq.byTopic("automation/sensor/temperature/study")
	require.Len(t, readings, 1)
	var reading map[string]interface{}
	require.NoError(t, json.Unmarshal(readings[0].payload, &reading))
	assert.Equal(t, 21.25, reading["temperature"])

	h := rd.hash("thermolight:state:study")
	require.NotNil(t, h)
	assert.Equal(t, "21.25", h["temperature"])
	assert.Equal(t, "0.0,102.0,127.5", h["color"])
	assert.Equal(t, "connected", h["session"])
	assert.Equal(t, 5*time.Minute, rd.ttls["thermolight:state:study"])
}

func TestStatusPublisher_FailedCycle(t *testing.T) {
	mq := newFakeMQTT()
	p := NewStatusPublisher(mq, nil, "thermolight-agent", "study", time.Minute, discardLogger())

	res := CycleResult{
		ID:        "dead",
		StartedAt: time.Now(),
		Outcome:   OutcomeRecoverable,
		Action:    ActionNone,
		Reason:    "device_unreachable",
		Err:       errors.New("connection refused"),
	}
	require.NoError(t, p.Publish(context.Background(), res, SessionDisconnected))

	msgs := mq.byTopic("automation/context/lighting/study")
	require.Len(t, msgs, 1)
	var ctxMsg map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ctxMsg))
	assert.Equal(t, "connection refused", ctxMsg["error_message"])
	assert.Nil(t, ctxMsg["temperature"])
	assert.Nil(t, ctxMsg["mode"])

	assert.Empty(t, mq.byTopic("automation/sensor/temperature/study"))
}

func TestStatusPublisher_Disabled(t *testing.T) {
	var nilPublisher *StatusPublisher
	assert.NoError(t, nilPublisher.Publish(context.Background(), sampleResult(), SessionConnected))

	p := NewStatusPublisher(nil, nil, "svc", "study", time.Minute, discardLogger())
	assert.NoError(t, p.Publish(context.Background(), sampleResult(), SessionConnected))
}

func TestStatusPublisher_SkipsWhenMQTTDisconnected(t *testing.T) {
	mq := newFakeMQTT()
	mq.connected = false
	p := NewStatusPublisher(mq, nil, "svc", "study", time.Minute, discardLogger())

	require.NoError(t, p.Publish(context.Background(), sampleResult(), SessionConnected))
	assert.Empty(t, mq.messages)
}

func TestStatusPublisher_ReturnsFirstError(t *testing.T) {
	mq := newFakeMQTT()
	mq.publishErr = errors.New("broker gone")
	rd := newFakeRedis()
	p := NewStatusPublisher(mq, rd, "svc", "study", time.Minute, discardLogger())

	err := p.Publish(context.Background(), sampleResult(), SessionConnected)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")

	// Redis is still written
	assert.NotNil(t, rd.hash("thermolight:state:study"))
}
