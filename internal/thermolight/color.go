package thermolight

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when the temperature range is empty or inverted
var ErrInvalidRange = errors.New("min temperature must be below max temperature")

// Color is an RGB triple with channels in [0, 255]
type Color struct {
	R, G, B float64
}

// ColorFromTriple converts a config triple into a Color
func ColorFromTriple(t [3]float64) Color {
	return Color{R: t[0], G: t[1], B: t[2]}
}

// String formats the color as r,g,b
func (c Color) String() string {
	return fmt.Sprintf("%.1f,%.1f,%.1f", c.R, c.G, c.B)
}

// lerp interpolates each channel from low to high by frac in [0, 1]
func lerp(low, high Color, frac float64) Color {
	return Color{
		R: low.R + frac*(high.R-low.R),
		G: low.G + frac*(high.G-low.G),
		B: low.B + frac*(high.B-low.B),
	}
}

// ColorMapper maps a temperature onto a three-anchor gradient:
// cold at min, mid halfway, hot at max. Readings outside the range are clamped.
type ColorMapper struct {
	min, max       float64
	cold, mid, hot Color
}

// NewColorMapper creates a mapper; min must be strictly below max
func NewColorMapper(min, max float64, cold, mid, hot Color) (*ColorMapper, error) {
	if !(min < max) {
		return nil, fmt.Errorf("%w: min=%g max=%g", ErrInvalidRange, min, max)
	}
	return &ColorMapper{min: min, max: max, cold: cold, mid: mid, hot: hot}, nil
}

// Map returns the color for a temperature reading
func (m *ColorMapper) Map(temp float64) Color {
	// NaN fails both comparisons and lands on min
	if !(temp > m.min) {
		temp = m.min
	}
	if temp > m.max {
		temp = m.max
	}

	t := (temp - m.min) / (m.max - m.min)
	if t < 0.5 {
		return lerp(m.cold, m.mid, t*2)
	}
	return lerp(m.mid, m.hot, (t-0.5)*2)
}
