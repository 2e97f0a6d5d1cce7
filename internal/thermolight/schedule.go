package thermolight

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sixdouglas/suncalc"
)

// TimeOfDay is an offset from local midnight, in [0, 24h)
type TimeOfDay time.Duration

// ParseTimeOfDay parses "HH:MM" (24-hour clock)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// TimeOfDayOf returns the wall-clock offset of t in its own location
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond()))
}

// String formats as HH:MM
func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// IsWithinOffWindow reports whether now falls in the off-window that starts at off and ends at on.
// Without wraparound (off <= on) the window is [off, on); otherwise it is [off, 24:00) ∪ [00:00, on].
func IsWithinOffWindow(now, on, off TimeOfDay) bool {
	if off <= on {
		return now >= off && now < on
	}
	return now >= off || now <= on
}

type boundKind int

const (
	boundFixed boundKind = iota
	boundSunrise
	boundSunset
)

type scheduleBound struct {
	kind  boundKind
	fixed TimeOfDay
	raw   string
}

func parseBound(raw string) (scheduleBound, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sunrise":
		return scheduleBound{kind: boundSunrise, raw: raw}, nil
	case "sunset":
		return scheduleBound{kind: boundSunset, raw: raw}, nil
	}
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		return scheduleBound{}, err
	}
	return scheduleBound{kind: boundFixed, fixed: t, raw: raw}, nil
}

// ScheduleGate forces the light off during a daily off-window.
// A gate built from an absent or unparsable bound is disabled and never reports the off-window.
type ScheduleGate struct {
	enabled  bool
	on, off  scheduleBound
	lat, lon float64
}

// NewScheduleGate builds the gate from the raw ON_TIME/OFF_TIME values.
// Problems disable the gate and are logged, they are never fatal.
func NewScheduleGate(onRaw, offRaw string, lat, lon float64, logger *slog.Logger) *ScheduleGate {
	g := &ScheduleGate{lat: lat, lon: lon}

	if strings.TrimSpace(onRaw) == "" || strings.TrimSpace(offRaw) == "" {
		if onRaw != "" || offRaw != "" {
			logger.Warn("Schedule gate disabled, both ON_TIME and OFF_TIME are needed",
				"on_time", onRaw,
				"off_time", offRaw)
		} else {
			logger.Debug("Schedule gate disabled, no ON_TIME/OFF_TIME configured")
		}
		return g
	}

	on, err := parseBound(onRaw)
	if err != nil {
		logger.Warn("Schedule gate disabled, unparsable ON_TIME", "on_time", onRaw, "error", err)
		return g
	}
	off, err := parseBound(offRaw)
	if err != nil {
		logger.Warn("Schedule gate disabled, unparsable OFF_TIME", "off_time", offRaw, "error", err)
		return g
	}

	g.enabled = true
	g.on = on
	g.off = off
	return g
}

// Enabled reports whether the gate is active
func (g *ScheduleGate) Enabled() bool {
	return g != nil && g.enabled
}

// Window resolves the off-window bounds for the day of now.
// ok is false when the gate is disabled or a solar bound does not occur that day (polar day/night).
func (g *ScheduleGate) Window(now time.Time) (off, on TimeOfDay, ok bool) {
	if !g.Enabled() {
		return 0, 0, false
	}

	var sunrise, sunset time.Time
	if g.on.kind != boundFixed || g.off.kind != boundFixed {
		times := suncalc.GetTimes(now, g.lat, g.lon)
		sunrise = times[suncalc.Sunrise].Value
		sunset = times[suncalc.Sunset].Value
	}

	resolve := func(b scheduleBound) (TimeOfDay, bool) {
		if b.kind == boundFixed {
			return b.fixed, true
		}
		event := sunrise
		if b.kind == boundSunset {
			event = sunset
		}
		if event.IsZero() {
			return 0, false
		}
		local := event.In(now.Location())
		// Without a sunrise/sunset suncalc yields times far from the requested day
		if diff := local.Sub(now); diff > 36*time.Hour || diff < -36*time.Hour {
			return 0, false
		}
		return TimeOfDayOf(local), true
	}

	off, okOff := resolve(g.off)
	on, okOn := resolve(g.on)
	if !okOff || !okOn {
		return 0, 0, false
	}
	return off, on, true
}

// InOffWindow reports whether the light should be forced off at now
func (g *ScheduleGate) InOffWindow(now time.Time) bool {
	off, on, ok := g.Window(now)
	if !ok {
		return false
	}
	return IsWithinOffWindow(TimeOfDayOf(now), on, off)
}

// Describe returns the configured bounds for logging
func (g *ScheduleGate) Describe() string {
	if !g.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("off %s until %s", g.off.raw, g.on.raw)
}
