package tuya

import (
	"fmt"
	"math"
)

// Data point IDs of a type B colour bulb / LED strip
const (
	DPSwitch     = "20"
	DPMode       = "21"
	DPBrightness = "22"
	DPColourTemp = "23"
	DPColour     = "24"
)

// Work modes reported on DPMode
const (
	ModeWhite  = "white"
	ModeColour = "colour"
	ModeScene  = "scene"
	ModeMusic  = "music"
)

// colourHex encodes an RGB colour (channels 0-255) as the hhhhssssvvvv
// HSV string of dp 24: hue 0-360, saturation and value 0-1000, truncated.
func colourHex(r, g, b float64) (string, error) {
	for _, v := range []float64{r, g, b} {
		if math.IsNaN(v) || v < 0 || v > 255 {
			return "", fmt.Errorf("colour channel %g out of range [0, 255]", v)
		}
	}

	h, s, v := rgbToHSV(r/255, g/255, b/255)
	return fmt.Sprintf("%04x%04x%04x", int(h*360), int(s*1000), int(v*1000)), nil
}

// rgbToHSV converts channels in [0, 1] to hue, saturation and value in [0, 1]
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	v = maxc
	if maxc == minc {
		return 0, 0, v
	}

	delta := maxc - minc
	s = delta / maxc

	rc := (maxc - r) / delta
	gc := (maxc - g) / delta
	bc := (maxc - b) / delta

	switch maxc {
	case r:
		h = bc - gc
	case g:
		h = 2.0 + rc - bc
	default:
		h = 4.0 + gc - rc
	}

	h = math.Mod(h/6.0, 1.0)
	if h < 0 {
		h += 1.0
	}
	return h, s, v
}
