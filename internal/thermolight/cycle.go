package thermolight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/jeeves-thermolight/pkg/sensor"
	"github.com/saaga0h/jeeves-thermolight/pkg/tuya"
)

// ErrInvalidStatus is returned when the device status lacks dps.21
var ErrInvalidStatus = errors.New("device status has no work mode")

// CycleOutcome tells the driver whether to continue
type CycleOutcome int

const (
	OutcomeSuccess CycleOutcome = iota
	OutcomeRecoverable
	OutcomeFatal
)

func (o CycleOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Actions taken by a cycle
const (
	ActionNone      = "none"
	ActionSetColour = "set_colour"
	ActionHold      = "hold"
	ActionTurnOff   = "turn_off"
	ActionStayOff   = "stay_off"
	ActionOverride  = "manual_override"
)

// CycleResult describes one poll cycle
type CycleResult struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	Outcome CycleOutcome
	Action  string
	Reason  string
	Err     error

	Mode           string
	Temperature    float64
	HasTemperature bool
	Color          Color
	HasColor       bool
	InOffWindow    bool
	TurnedOn       bool
}

// Cycle runs one read → compute → emit pass against the device
type Cycle struct {
	session   *Session
	source    sensor.TemperatureSource
	mapper    *ColorMapper
	gate      *ScheduleGate
	overrides *OverrideManager
	logger    *slog.Logger
	now       func() time.Time

	// scheduledOff is set once the gate turned the light off, so leaving the
	// off-window turns it back on without overriding a manual switch-off
	scheduledOff bool
}

// NewCycle wires the cycle dependencies
func NewCycle(session *Session, source sensor.TemperatureSource, mapper *ColorMapper, gate *ScheduleGate, overrides *OverrideManager, logger *slog.Logger) *Cycle {
	return &Cycle{
		session:   session,
		source:    source,
		mapper:    mapper,
		gate:      gate,
		overrides: overrides,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs a single cycle. It never retries; failures are reported in the result.
func (c *Cycle) Run(ctx context.Context) CycleResult {
	res := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: c.now(),
		Action:    ActionNone,
	}
	c.run(ctx, &res)
	res.Duration = c.now().Sub(res.StartedAt)
	return res
}

func (c *Cycle) run(ctx context.Context, res *CycleResult) {
	if c.overrides != nil && c.overrides.Active() {
		res.succeed(ActionOverride, "manual_override_active")
		return
	}

	device, err := c.session.Ensure(ctx)
	if err != nil {
		res.fail(OutcomeRecoverable, "device_unreachable", err)
		return
	}

	status, err := device.Status(ctx)
	if err != nil {
		if errors.Is(err, tuya.ErrKeyMismatch) {
			c.logger.Error("Device payload cannot be decrypted, check TUYA_LOCAL_KEY", "error", err)
			c.session.Invalidate("key_mismatch", err)
			res.fail(OutcomeRecoverable, "key_mismatch", err)
			return
		}
		c.session.Invalidate("status_failed", err)
		res.fail(OutcomeRecoverable, "status_failed", err)
		return
	}

	mode, ok := status.Mode()
	if !ok {
		c.session.Invalidate("invalid_status", ErrInvalidStatus)
		res.fail(OutcomeRecoverable, "invalid_status", ErrInvalidStatus)
		return
	}
	res.Mode = mode
	switchOn, switchKnown := status.Switch()

	if c.gate.InOffWindow(c.now()) {
		res.InOffWindow = true
		if switchKnown && !switchOn {
			c.scheduledOff = true
			res.succeed(ActionStayOff, "off_window")
			return
		}
		if err := device.TurnOff(ctx); err != nil {
			c.session.Invalidate("turn_off_failed", err)
			res.fail(OutcomeRecoverable, "turn_off_failed", err)
			return
		}
		c.scheduledOff = true
		res.succeed(ActionTurnOff, "off_window")
		return
	}

	if c.scheduledOff {
		if !switchKnown || !switchOn {
			if err := device.TurnOn(ctx); err != nil {
				c.session.Invalidate("turn_on_failed", err)
				res.fail(OutcomeRecoverable, "turn_on_failed", err)
				return
			}
			res.TurnedOn = true
		}
		c.scheduledOff = false
	}

	temp, err := c.source.FetchTemperature(ctx)
	if err != nil {
		res.fail(OutcomeRecoverable, "sensor_failed", err)
		return
	}
	res.Temperature = temp
	res.HasTemperature = true

	if mode != tuya.ModeColour {
		c.logger.Info("Mode isn't colour, not updating color",
			"mode", mode,
			"temperature", temp)
		res.succeed(ActionHold, "mode_not_colour")
		return
	}

	color := c.mapper.Map(temp)
	res.Color = color
	res.HasColor = true

	if err := device.SetColour(ctx, color.R, color.G, color.B); err != nil {
		c.session.Invalidate("set_colour_failed", err)
		res.fail(OutcomeRecoverable, "set_colour_failed", err)
		return
	}

	res.succeed(ActionSetColour, "temperature_mapped")
}

func (r *CycleResult) succeed(action, reason string) {
	r.Outcome = OutcomeSuccess
	r.Action = action
	r.Reason = reason
}

func (r *CycleResult) fail(outcome CycleOutcome, reason string, err error) {
	r.Outcome = outcome
	r.Reason = reason
	r.Err = err
}
