package wizard

import (
	"fmt"
	"math"
	"strings"

	"github.com/berginj/glovebrand/internal/branding"
)

// SelectField is one <select> element discovered on the wizard page. Index
// is the element's position among all selects, used to address it when
// filling.
type SelectField struct {
	Index   int      `json:"index"`
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Options []string `json:"options"`
}

// FieldPlan is the resolved autofill action for one color field.
type FieldPlan struct {
	Field      SelectField   `json:"field"`
	Slot       branding.Slot `json:"slot"`
	Hex        string        `json:"hex"`
	ColorName  string        `json:"color_name"`
	Confidence float64       `json:"confidence"`
}

// colorKeywords gate which select fields are considered for autofill at all.
var colorKeywords = []string{
	"color", "palm", "back", "web", "lace", "stitch", "binding", "wrist",
	"accent", "primary", "secondary",
}

// slotRules map field keywords to palette slots. First match wins, checked
// in declaration order so the more specific component names take priority.
var slotRules = []struct {
	keywords []string
	slot     branding.Slot
}{
	{[]string{"primary", "palm", "back"}, branding.SlotPrimary},
	{[]string{"secondary", "web"}, branding.SlotSecondary},
	{[]string{"accent", "stitch"}, branding.SlotAccent},
	{[]string{"lace", "binding", "wrist", "neutral"}, branding.SlotNeutral},
}

type namedColor struct {
	name string
	r    int
	g    int
	b    int
}

// namedColors is the fixed vocabulary the wizard's dropdowns speak. Palette
// hexes are snapped to the nearest entry before filling.
var namedColors = []namedColor{
	{"black", 0x1c, 0x1c, 0x1c},
	{"white", 0xf5, 0xf5, 0xf5},
	{"gray", 0x8e, 0x8e, 0x8e},
	{"navy", 0x1f, 0x2f, 0x56},
	{"royal", 0x20, 0x48, 0xb0},
	{"columbia blue", 0x73, 0xa6, 0xd4},
	{"red", 0xc8, 0x10, 0x2e},
	{"scarlet", 0x9d, 0x1b, 0x32},
	{"maroon", 0x6a, 0x1a, 0x29},
	{"orange", 0xe8, 0x61, 0x00},
	{"gold", 0xc9, 0xa2, 0x27},
	{"yellow", 0xff, 0xd1, 0x00},
	{"kelly green", 0x2d, 0x8a, 0x46},
	{"forest green", 0x1d, 0x4d, 0x2e},
	{"purple", 0x4b, 0x2e, 0x83},
	{"brown", 0x6b, 0x4a, 0x2f},
	{"tan", 0xc9, 0xa8, 0x7b},
	{"pink", 0xe7, 0x7f, 0xb2},
	{"cream", 0xec, 0xe2, 0xc8},
}

// isColorField reports whether the field's label or name matches a color
// keyword.
func isColorField(f SelectField) bool {
	haystack := strings.ToLower(f.Label + " " + f.Name)
	for _, kw := range colorKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// slotFor maps a color field to the palette slot that should fill it.
func slotFor(f SelectField) branding.Slot {
	haystack := strings.ToLower(f.Label + " " + f.Name)
	for _, rule := range slotRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.slot
			}
		}
	}
	return branding.SlotPrimary
}

// nearestNamedColor snaps a hex to the closest table entry by Euclidean RGB
// distance, returning the name and the distance.
func nearestNamedColor(hex string) (string, float64) {
	r, g, b, ok := hexChannels(hex)
	if !ok {
		return namedColors[0].name, math.MaxFloat64
	}
	best := namedColors[0]
	bestDist := math.MaxFloat64
	for _, nc := range namedColors {
		dr := float64(r - nc.r)
		dg := float64(g - nc.g)
		db := float64(b - nc.b)
		dist := math.Sqrt(dr*dr + dg*dg + db*db)
		if dist < bestDist {
			best = nc
			bestDist = dist
		}
	}
	return best.name, bestDist
}

// mappingConfidence converts a snap distance to a per-field confidence with
// a floor of 0.4.
func mappingConfidence(distance float64) float64 {
	if distance == math.MaxFloat64 {
		return 0.4
	}
	return math.Max(0.4, 1-distance/200)
}

// PlanFields filters the page's select fields to color fields and resolves
// each to a named color from the palette. The second return value is the
// average confidence across planned fields (0 when none matched).
func PlanFields(fields []SelectField, palette branding.Palette) ([]FieldPlan, float64) {
	var plans []FieldPlan
	var total float64
	for _, f := range fields {
		if !isColorField(f) {
			continue
		}
		slot := slotFor(f)
		hex := palette.Color(slot).Hex
		name, dist := nearestNamedColor(hex)
		conf := mappingConfidence(dist)
		plans = append(plans, FieldPlan{
			Field:      f,
			Slot:       slot,
			Hex:        hex,
			ColorName:  name,
			Confidence: conf,
		})
		total += conf
	}
	if len(plans) == 0 {
		return nil, 0
	}
	return plans, total / float64(len(plans))
}

// ManualSteps renders the fallback instructions an operator can follow when
// autofill is aborted or blocked.
func ManualSteps(targetURL string, palette branding.Palette, plans []FieldPlan) []string {
	steps := []string{fmt.Sprintf("Open %s in a browser.", targetURL)}
	if len(plans) > 0 {
		for _, p := range plans {
			label := p.Field.Label
			if label == "" {
				label = p.Field.Name
			}
			steps = append(steps, fmt.Sprintf("Set %q to %s (%s).", label, p.ColorName, p.Hex))
		}
	} else {
		steps = append(steps,
			fmt.Sprintf("Choose a primary color close to %s.", palette.Primary.Hex),
			fmt.Sprintf("Choose a secondary color close to %s.", palette.Secondary.Hex),
			fmt.Sprintf("Choose an accent color close to %s.", palette.Accent.Hex),
			fmt.Sprintf("Choose laces and binding close to %s.", palette.Neutral.Hex),
		)
	}
	steps = append(steps,
		"Upload the team logo where the wizard accepts artwork.",
		"Review the configured glove and submit the order.",
	)
	return steps
}

func hexChannels(hex string) (int, int, int, bool) {
	hex = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hex)), "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0, false
	}
	return r, g, b, true
}
