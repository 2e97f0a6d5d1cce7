package thermolight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-thermolight/pkg/config"
	"github.com/saaga0h/jeeves-thermolight/pkg/mqtt"
	"github.com/saaga0h/jeeves-thermolight/pkg/redis"
	"github.com/saaga0h/jeeves-thermolight/pkg/sensor"
)

var (
	// ErrFatalCycle is returned by Start when a cycle reports a fatal outcome
	ErrFatalCycle = errors.New("fatal cycle")
	// ErrTooManyFailures is returned by Start when MAX_CONSECUTIVE_FAILURES is reached
	ErrTooManyFailures = errors.New("too many consecutive failures")
)

// Agent drives the poll loop for one light
type Agent struct {
	cfg       *config.Config
	session   *Session
	cycle     *Cycle
	gate      *ScheduleGate
	overrides *OverrideManager
	publisher *StatusPublisher
	metrics   *Metrics
	mqtt      mqtt.Client
	redis     redis.Client
	logger    *slog.Logger

	mu       sync.RWMutex
	last     CycleResult
	hasLast  bool
	failures int

	stopOnce sync.Once
}

// NewAgent builds the mapper, schedule gate and cycle from the config.
// mqttClient and redisClient may be nil when those services are not configured.
func NewAgent(cfg *config.Config, session *Session, source sensor.TemperatureSource, mqttClient mqtt.Client, redisClient redis.Client, metrics *Metrics, logger *slog.Logger) (*Agent, error) {
	mapper, err := NewColorMapper(cfg.MinTemperature, cfg.MaxTemperature,
		ColorFromTriple(cfg.ColdColor), ColorFromTriple(cfg.MidColor), ColorFromTriple(cfg.HotColor))
	if err != nil {
		return nil, err
	}

	gate := NewScheduleGate(cfg.OnTime, cfg.OffTime, cfg.Latitude, cfg.Longitude, logger)
	overrides := NewOverrideManager()

	return &Agent{
		cfg:       cfg,
		session:   session,
		cycle:     NewCycle(session, source, mapper, gate, overrides, logger),
		gate:      gate,
		overrides: overrides,
		publisher: NewStatusPublisher(mqttClient, redisClient, cfg.ServiceName, cfg.Location, cfg.StatusTTL(), logger),
		metrics:   metrics,
		mqtt:      mqttClient,
		redis:     redisClient,
		logger:    logger,
	}, nil
}

// Start runs the poll loop until ctx is cancelled, a cycle is fatal,
// or the consecutive failure limit is reached
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting thermolight agent",
		"service_name", a.cfg.ServiceName,
		"location", a.cfg.Location,
		"device_id", a.cfg.TuyaDeviceID,
		"address", a.cfg.TuyaAddress,
		"update_interval", a.cfg.UpdateInterval,
		"range", fmt.Sprintf("%.1f..%.1f", a.cfg.MinTemperature, a.cfg.MaxTemperature),
		"schedule", a.gate.Describe(),
		"max_consecutive_failures", a.cfg.MaxConsecutiveFailures)

	if a.mqtt != nil {
		if err := a.mqtt.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}

		topic := mqtt.OverrideTopic(a.cfg.Location)
		if err := a.mqtt.Subscribe(topic, 1, a.handleOverrideMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		a.logger.Info("Subscribed to override commands", "topic", topic)
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping Redis: %w", err)
		}
	}

	a.logInitialStatus(ctx)

	a.logger.Info("Thermolight agent started and ready")

	for {
		res := a.cycle.Run(ctx)
		failures := a.record(ctx, res)

		if res.Outcome == OutcomeFatal {
			return fmt.Errorf("%w: %s: %v", ErrFatalCycle, res.Reason, res.Err)
		}
		if limit := a.cfg.MaxConsecutiveFailures; limit > 0 && failures >= limit {
			return fmt.Errorf("%w: %d in a row, last: %s: %v", ErrTooManyFailures, failures, res.Reason, res.Err)
		}

		timer := time.NewTimer(a.cfg.UpdateInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("Thermolight agent stopping")
			return nil
		case <-timer.C:
		}
	}
}

// logInitialStatus reads the device once before the loop so the starting state shows up in the log
func (a *Agent) logInitialStatus(ctx context.Context) {
	device, err := a.session.Ensure(ctx)
	if err != nil {
		a.logger.Warn("Device not reachable at startup", "error", err)
		return
	}
	status, err := device.Status(ctx)
	if err != nil {
		a.logger.Warn("Failed to read initial device status", "error", err)
		a.session.Invalidate("initial_status_failed", err)
		return
	}
	if status == nil {
		a.logger.Warn("Device returned an empty initial status")
		return
	}
	mode, _ := status.Mode()
	on, _ := status.Switch()
	a.logger.Info("Initial device status",
		"mode", mode,
		"switch", on,
		"dps", status.DPS)
}

// record logs, meters and publishes a finished cycle and returns the current failure streak
func (a *Agent) record(ctx context.Context, res CycleResult) int {
	a.mu.Lock()
	a.last = res
	a.hasLast = true
	if res.Outcome == OutcomeSuccess {
		a.failures = 0
	} else {
		a.failures++
	}
	failures := a.failures
	a.mu.Unlock()

	a.logCycle(res, failures)

	state := a.session.State()
	a.metrics.Observe(res, state, a.session.Rebuilds(), failures)

	if err := a.publisher.Publish(ctx, res, state); err != nil {
		a.logger.Warn("Failed to publish cycle status", "cycle_id", res.ID, "error", err)
	}
	return failures
}

func (a *Agent) logCycle(res CycleResult, failures int) {
	attrs := []any{
		"cycle_id", res.ID,
		"action", res.Action,
		"reason", res.Reason,
		"duration_ms", res.Duration.Milliseconds(),
	}
	if res.HasTemperature {
		attrs = append(attrs, "temperature", res.Temperature)
	}
	if res.HasColor {
		attrs = append(attrs, "color", res.Color.String())
	}
	if res.InOffWindow {
		attrs = append(attrs, "off_window", true)
	}

	switch res.Outcome {
	case OutcomeSuccess:
		a.logger.Info("Cycle complete", attrs...)
	case OutcomeRecoverable:
		attrs = append(attrs, "error", res.Err, "consecutive_failures", failures)
		a.logger.Warn("Cycle failed", attrs...)
	default:
		attrs = append(attrs, "error", res.Err)
		a.logger.Error("Cycle failed fatally", attrs...)
	}
}

// maxOverride caps override commands so the duration cannot overflow
const maxOverride = 24 * time.Hour

type overrideCommand struct {
	Minutes *float64 `json:"minutes"`
	Clear   bool     `json:"clear"`
}

// handleOverrideMessage handles manual override commands.
// An empty payload starts the default override, minutes <= 0 or clear ends it.
// Longer overrides are capped at maxOverride.
func (a *Agent) handleOverrideMessage(msg mqtt.Message) {
	payload := msg.Payload()

	minutes := float64(a.cfg.ManualOverrideMinutes)
	if len(payload) > 0 {
		var cmd overrideCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			a.logger.Warn("Invalid override command", "topic", msg.Topic(), "error", err)
			return
		}
		if cmd.Clear {
			minutes = 0
		} else if cmd.Minutes != nil {
			minutes = *cmd.Minutes
		}
	}

	if minutes <= 0 {
		if a.overrides.Clear() {
			a.logger.Info("Manual override cleared")
		}
		return
	}

	if minutes > maxOverride.Minutes() {
		minutes = maxOverride.Minutes()
	}

	expires := a.overrides.Set(time.Duration(minutes * float64(time.Minute)))
	a.logger.Info("Manual override set",
		"minutes", minutes,
		"expires_at", expires.Format(time.RFC3339))
}

// Stop releases the device, MQTT and Redis connections
func (a *Agent) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.logger.Info("Stopping thermolight agent")

		if closeErr := a.session.Close(); closeErr != nil {
			a.logger.Error("Error closing device session", "error", closeErr)
			err = closeErr
		}

		if a.mqtt != nil {
			a.mqtt.Disconnect()
		}

		if a.redis != nil {
			if closeErr := a.redis.Close(); closeErr != nil {
				a.logger.Error("Error closing Redis connection", "error", closeErr)
				err = closeErr
			}
		}

		a.logger.Info("Thermolight agent stopped")
	})
	return err
}

// LastResult returns the most recent cycle result
func (a *Agent) LastResult() (CycleResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.hasLast
}

// ConsecutiveFailures returns the current run of non-successful cycles
func (a *Agent) ConsecutiveFailures() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failures
}

// SessionConnected reports whether the device session is up (for health check)
func (a *Agent) SessionConnected() bool {
	return a.session.State() == SessionConnected
}

// LastCycle reports when the last cycle ran and its outcome (for health check)
func (a *Agent) LastCycle() (time.Time, string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.hasLast {
		return time.Time{}, "", false
	}
	return a.last.StartedAt, a.last.Outcome.String(), true
}

// OverrideActive reports whether a manual override is in effect
func (a *Agent) OverrideActive() bool {
	return a.overrides.Active()
}
