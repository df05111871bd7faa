package palette

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/berginj/glovebrand/internal/branding"
)

var (
	customPropPattern = regexp.MustCompile(`--([\w-]+)\s*:\s*(#(?:[0-9a-fA-F]{3}){1,2}|rgba?\([^)]+\)|hsla?\([^)]+\))`)
	literalPattern    = regexp.MustCompile(`#(?:[0-9a-fA-F]{3}){1,2}|rgba?\([^)]+\)|hsla?\([^)]+\)`)
	rgbPattern        = regexp.MustCompile(`(?i)rgba?\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)
	hslPattern        = regexp.MustCompile(`(?i)hsla?\(\s*([\d.]+)(?:deg)?\s*,\s*([\d.]+)%\s*,\s*([\d.]+)%`)
)

// mineCSS extracts weighted colors from one chunk of CSS text. Custom
// property declarations carry more weight than bare literals; each
// occurrence is emitted individually and deduplicated by the merge step.
func (e *Extractor) mineCSS(text, sourceTag string) []branding.PaletteColor {
	var colors []branding.PaletteColor

	propSpans := make(map[int]struct{})
	for _, match := range customPropPattern.FindAllStringSubmatchIndex(text, maxColorsPerSource) {
		name := text[match[2]:match[3]]
		value := text[match[4]:match[5]]
		hex := normalizeColor(value)
		if hex == "" {
			continue
		}
		for i := match[4]; i < match[5]; i++ {
			propSpans[i] = struct{}{}
		}
		colors = append(colors, branding.PaletteColor{
			Hex:        hex,
			Confidence: e.cfg.CustomPropWeight,
			Evidence:   []string{sourceTag, "var:--" + name},
		})
	}

	count := 0
	for _, match := range literalPattern.FindAllStringIndex(text, -1) {
		if count >= maxColorsPerSource {
			break
		}
		if _, claimed := propSpans[match[0]]; claimed {
			continue
		}
		hex := normalizeColor(text[match[0]:match[1]])
		if hex == "" {
			continue
		}
		colors = append(colors, branding.PaletteColor{
			Hex:        hex,
			Confidence: e.cfg.LiteralWeight,
			Evidence:   []string{sourceTag},
		})
		count++
	}
	return colors
}

// normalizeColor converts a CSS color literal to lowercase six-digit hex,
// returning "" when the value is unsupported.
func normalizeColor(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "#") {
		c, ok := parseHex(value)
		if !ok {
			return ""
		}
		return c.hex()
	}
	if m := rgbPattern.FindStringSubmatch(value); m != nil {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		if r > 255 || g > 255 || b > 255 {
			return ""
		}
		return rgb{float64(r), float64(g), float64(b)}.hex()
	}
	if m := hslPattern.FindStringSubmatch(value); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		s, _ := strconv.ParseFloat(m[2], 64)
		l, _ := strconv.ParseFloat(m[3], 64)
		return hslToRGB(h, s/100, l/100).hex()
	}
	return ""
}
