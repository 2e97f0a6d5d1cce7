package thermolight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/jeeves-thermolight/pkg/mqtt"
	"github.com/saaga0h/jeeves-thermolight/pkg/redis"
)

// StatusPublisher reports cycle results to MQTT and Redis.
// Either client may be nil, in which case that side is skipped.
type StatusPublisher struct {
	mqtt     mqtt.Client
	redis    redis.Client
	service  string
	location string
	ttl      time.Duration
	logger   *slog.Logger
}

// NewStatusPublisher creates a publisher for one light
func NewStatusPublisher(mqttClient mqtt.Client, redisClient redis.Client, service, location string, ttl time.Duration, logger *slog.Logger) *StatusPublisher {
	return &StatusPublisher{
		mqtt:     mqttClient,
		redis:    redisClient,
		service:  service,
		location: location,
		ttl:      ttl,
		logger:   logger,
	}
}

// Publish sends the result of a cycle. Failures are returned but never affect the cycle.
func (p *StatusPublisher) Publish(ctx context.Context, res CycleResult, state SessionState) error {
	if p == nil {
		return nil
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.mqtt != nil && p.mqtt.IsConnected() {
		keep(p.publishContext(res, state))
		if res.HasTemperature {
			keep(p.publishTemperature(res))
		}
	}

	if p.redis != nil {
		keep(p.storeSnapshot(ctx, res, state))
	}

	return firstErr
}

func (p *StatusPublisher) publishContext(res CycleResult, state SessionState) error {
	contextMsg := map[string]interface{}{
		"source":        p.service,
		"type":          "lighting",
		"location":      p.location,
		"cycle_id":      res.ID,
		"state":         res.Action,
		"outcome":       res.Outcome.String(),
		"reason":        res.Reason,
		"mode":          nil,
		"temperature":   nil,
		"color":         nil,
		"off_window":    res.InOffWindow,
		"session":       state.String(),
		"automated":     true,
		"timestamp":     res.StartedAt.Format(time.RFC3339),
		"duration_ms":   res.Duration.Milliseconds(),
		"turned_on":     res.TurnedOn,
		"error_message": nil,
	}

	if res.Mode != "" {
		contextMsg["mode"] = res.Mode
	}
	if res.HasTemperature {
		contextMsg["temperature"] = res.Temperature
	}
	if res.HasColor {
		contextMsg["color"] = []float64{res.Color.R, res.Color.G, res.Color.B}
	}
	if res.Err != nil {
		contextMsg["error_message"] = res.Err.Error()
	}

	payload, err := json.Marshal(contextMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal context message: %w", err)
	}

	topic := mqtt.LightingContextTopic(p.location)
	if err := p.mqtt.Publish(topic, 0, false, payload); err != nil {
		return fmt.Errorf("failed to publish context to %s: %w", topic, err)
	}

	p.logger.Debug("Published lighting context", "topic", topic, "cycle_id", res.ID)
	return nil
}

func (p *StatusPublisher) publishTemperature(res CycleResult) error {
	payload, err := json.Marshal(map[string]interface{}{
		"temperature": res.Temperature,
		"unit":        "°C",
		"timestamp":   res.StartedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal temperature message: %w", err)
	}

	topic := mqtt.ProcessedSensorTopic("temperature", p.location)
	if err := p.mqtt.Publish(topic, 0, false, payload); err != nil {
		return fmt.Errorf("failed to publish temperature to %s: %w", topic, err)
	}
	return nil
}

func (p *StatusPublisher) storeSnapshot(ctx context.Context, res CycleResult, state SessionState) error {
	key := redis.LightStateKey(p.location)

	fields := map[string]interface{}{
		"cycle_id":   res.ID,
		"action":     res.Action,
		"outcome":    res.Outcome.String(),
		"reason":     res.Reason,
		"session":    state.String(),
		"off_window": strconv.FormatBool(res.InOffWindow),
		"updated_at": res.StartedAt.UnixMilli(),
	}
	if res.Mode != "" {
		fields["mode"] = res.Mode
	}
	if res.HasTemperature {
		fields["temperature"] = strconv.FormatFloat(res.Temperature, 'f', 2, 64)
	}
	if res.HasColor {
		fields["color"] = res.Color.String()
	}

	if err := p.redis.HSetAll(ctx, key, fields); err != nil {
		return err
	}
	return p.redis.Expire(ctx, key, p.ttl)
}
