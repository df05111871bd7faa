// Package palette derives a four-slot team color palette from mined CSS
// colors and the pixels of the selected logo.
package palette

import (
	"fmt"
	"math"
	"strings"
)

// rgb is a color point in RGB space.
type rgb struct {
	r, g, b float64
}

func (c rgb) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(c.r), clampByte(c.g), clampByte(c.b))
}

func clampByte(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return n
}

func parseHex(hex string) (rgb, bool) {
	clean := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hex)), "#")
	if len(clean) == 3 {
		clean = string([]byte{clean[0], clean[0], clean[1], clean[1], clean[2], clean[2]})
	}
	if len(clean) != 6 {
		return rgb{}, false
	}
	var r, g, b int
	if _, err := fmt.Sscanf(clean, "%02x%02x%02x", &r, &g, &b); err != nil {
		return rgb{}, false
	}
	return rgb{float64(r), float64(g), float64(b)}, true
}

// distance is the Euclidean distance between two colors in RGB space.
func distance(a, b rgb) float64 {
	return math.Sqrt((a.r-b.r)*(a.r-b.r) + (a.g-b.g)*(a.g-b.g) + (a.b-b.b)*(a.b-b.b))
}

// hexDistance measures two hex strings; unparsable input is maximally far.
func hexDistance(a, b string) float64 {
	ca, okA := parseHex(a)
	cb, okB := parseHex(b)
	if !okA || !okB {
		return math.MaxFloat64
	}
	return distance(ca, cb)
}

// isNeutral reports whether the color is near-grayscale: the spread between
// the largest and smallest channel is below the threshold.
func isNeutral(hex string, spread float64) bool {
	c, ok := parseHex(hex)
	if !ok {
		return false
	}
	max := math.Max(c.r, math.Max(c.g, c.b))
	min := math.Min(c.r, math.Min(c.g, c.b))
	return max-min < spread
}

// lighten blends the color toward white by the given factor.
func lighten(hex string, factor float64) string {
	c, ok := parseHex(hex)
	if !ok {
		return hex
	}
	blend := func(v float64) float64 { return v + (255-v)*factor }
	return rgb{blend(c.r), blend(c.g), blend(c.b)}.hex()
}

// hslToRGB converts hue [0,360), saturation and lightness [0,1].
func hslToRGB(h, s, l float64) rgb {
	h = math.Mod(math.Mod(h, 360)+360, 360)
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return rgb{(r + m) * 255, (g + m) * 255, (b + m) * 255}
}
