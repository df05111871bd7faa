// Package design turns a palette into three deterministic glove colorway
// variants with contrast-repaired component assignments.
package design

import (
	"fmt"
	"math"
	"strconv"

	"github.com/berginj/glovebrand/internal/branding"
)

// MinContrast is the floor for the checked component pairs. Pairs below it
// have their accent-role member replaced with the neutral color.
const MinContrast = 2.2

// contrastPairs lists base/accent component pairs checked per variant. The
// second member of each pair is the accent role that gets substituted.
var contrastPairs = []struct {
	base, accent, label string
}{
	{"palm", "web", "palm/web"},
	{"back", "web", "back/web"},
	{"palm", "laces", "palm/laces"},
	{"back", "binding", "back/binding"},
	{"palm", "stitching", "palm/stitching"},
	{"back", "wrist", "back/wrist"},
}

// Generate is a pure function: the same palette always yields identical
// variants and notes.
func Generate(jobID, teamURL, logoURL, logoBlobPath string, palette branding.Palette) branding.Design {
	variants := []branding.DesignVariant{
		{
			ID: "A",
			Components: map[string]string{
				"palm":          palette.Primary.Hex,
				"back":          palette.Secondary.Hex,
				"web":           palette.Secondary.Hex,
				"laces":         palette.Neutral.Hex,
				"stitching":     palette.Accent.Hex,
				"binding":       palette.Secondary.Hex,
				"wrist":         palette.Primary.Hex,
				"logoPlacement": palette.Accent.Hex,
			},
			Notes: []string{"Classic layout with primary palm and secondary web."},
		},
		{
			ID: "B",
			Components: map[string]string{
				"palm":          palette.Secondary.Hex,
				"back":          palette.Primary.Hex,
				"web":           palette.Primary.Hex,
				"laces":         palette.Neutral.Hex,
				"stitching":     palette.Accent.Hex,
				"binding":       palette.Primary.Hex,
				"wrist":         palette.Secondary.Hex,
				"logoPlacement": palette.Primary.Hex,
			},
			Notes: []string{"Inverted contrast with bold web and back."},
		},
		{
			ID: "C",
			Components: map[string]string{
				"palm":          palette.Neutral.Hex,
				"back":          palette.Neutral.Hex,
				"web":           palette.Primary.Hex,
				"laces":         palette.Primary.Hex,
				"stitching":     palette.Accent.Hex,
				"binding":       palette.Secondary.Hex,
				"wrist":         palette.Secondary.Hex,
				"logoPlacement": palette.Primary.Hex,
			},
			Notes: []string{"Minimal neutral base with strong web and accents."},
		},
	}

	for i := range variants {
		repairContrast(&variants[i], palette.Neutral.Hex)
	}

	return branding.Design{
		JobID:    jobID,
		TeamURL:  teamURL,
		LogoURL:  logoURL,
		LogoPath: logoBlobPath,
		Palette:  palette,
		Variants: variants,
	}
}

func repairContrast(variant *branding.DesignVariant, neutralHex string) {
	for _, pair := range contrastPairs {
		base := variant.Components[pair.base]
		accent := variant.Components[pair.accent]
		if base == "" || accent == "" {
			continue
		}
		ratio := ContrastRatio(base, accent)
		if ratio < MinContrast {
			variant.Components[pair.accent] = neutralHex
			variant.Notes = append(variant.Notes,
				fmt.Sprintf("Adjusted %s to neutral for contrast (%.2f).", pair.label, ratio))
		}
	}
}

// ContrastRatio computes the WCAG relative-luminance contrast ratio,
// (L_lighter + 0.05) / (L_darker + 0.05).
func ContrastRatio(hexA, hexB string) float64 {
	lA := luminance(hexA)
	lB := luminance(hexB)
	lighter := math.Max(lA, lB)
	darker := math.Min(lA, lB)
	return (lighter + 0.05) / (darker + 0.05)
}

func luminance(hex string) float64 {
	r, g, b := hexChannels(hex)
	return 0.2126*linearize(r) + 0.7152*linearize(g) + 0.0722*linearize(b)
}

func linearize(channel float64) float64 {
	c := channel / 255
	if c <= 0.03928 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func hexChannels(hex string) (float64, float64, float64) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return float64((v >> 16) & 0xff), float64((v >> 8) & 0xff), float64(v & 0xff)
}
