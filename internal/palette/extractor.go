package palette

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/fetch"
)

const maxColorsPerSource = 20

// Config holds the extraction thresholds. They are configuration, not
// inline constants, so tests can tighten or relax them.
type Config struct {
	CustomPropWeight float64
	LiteralWeight    float64
	LogoWeight       float64
	LogoFloor        float64
	Clusters         int
	Iterations       int
	SampleSide       int
	MergeDistance    float64
	NeutralSpread    float64
	MaxStylesheets   int
	MaxSheetBytes    int64
}

// DefaultConfig mirrors the production thresholds.
func DefaultConfig() Config {
	return Config{
		CustomPropWeight: 0.5,
		LiteralWeight:    0.35,
		LogoWeight:       0.7,
		LogoFloor:        0.15,
		Clusters:         8,
		Iterations:       6,
		SampleSide:       200,
		MergeDistance:    25,
		NeutralSpread:    20,
		MaxStylesheets:   3,
		MaxSheetBytes:    300 << 10,
	}
}

// Input carries everything one extraction needs. LogoBytes, when set,
// skips the logo fetch (the caller already holds the stored artifact).
type Input struct {
	LogoURL      string
	LogoBytes    []byte
	CSSURLs      []string
	InlineStyles []string
}

// Extractor mines colors from CSS and logo pixels and ranks them into the
// four palette slots.
type Extractor struct {
	fetcher *fetch.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Extractor.
func New(fetcher *fetch.Fetcher, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Extract builds the palette. Inline styles are mined first, then external
// stylesheets up to the cap, then the logo pixels. Every failure path
// degrades (CSS-only, or derived fallback colors) rather than erroring.
func (e *Extractor) Extract(ctx context.Context, input Input, budget *fetch.Budget) branding.Palette {
	var pool []branding.PaletteColor

	for _, style := range input.InlineStyles {
		pool = append(pool, e.mineCSS(style, "inline-style")...)
	}

	sheets := input.CSSURLs
	if len(sheets) > e.cfg.MaxStylesheets {
		sheets = sheets[:e.cfg.MaxStylesheets]
	}
	for _, cssURL := range sheets {
		result, err := e.fetcher.Get(ctx, cssURL, fetch.Options{
			MaxBytes: e.cfg.MaxSheetBytes,
			Budget:   budget,
		})
		if err != nil {
			e.logger.Debug("stylesheet fetch failed", zap.String("url", cssURL), zap.Error(err))
			continue
		}
		pool = append(pool, e.mineCSS(string(result.Body), "css")...)
	}

	logoBytes := input.LogoBytes
	if logoBytes == nil && input.LogoURL != "" {
		result, err := e.fetcher.Get(ctx, input.LogoURL, fetch.Options{Budget: budget})
		if err != nil {
			e.logger.Debug("logo fetch failed, CSS-only extraction", zap.String("url", input.LogoURL), zap.Error(err))
		} else {
			logoBytes = result.Body
		}
	}
	if logoBytes != nil {
		pool = append(pool, e.logoColors(logoBytes)...)
	}

	merged := e.MergeColors(pool)
	return e.rank(merged)
}

// MergeColors folds together colors within the merge distance, combining
// confidence (never below either input, capped at 1) and unioning evidence.
// Idempotent: merging its own output changes nothing.
func (e *Extractor) MergeColors(colors []branding.PaletteColor) []branding.PaletteColor {
	var merged []branding.PaletteColor
	for _, color := range colors {
		idx := -1
		for i := range merged {
			if hexDistance(merged[i].Hex, color.Hex) < e.cfg.MergeDistance {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, branding.PaletteColor{
				Hex:        color.Hex,
				Confidence: color.Confidence,
				Evidence:   append([]string(nil), color.Evidence...),
			})
			continue
		}
		combined := merged[idx].Confidence + color.Confidence*0.5
		// A weak representative must not drag a strong incoming color down.
		if combined < color.Confidence {
			combined = color.Confidence
		}
		if combined > 1 {
			combined = 1
		}
		merged[idx].Confidence = combined
		merged[idx].Evidence = unionEvidence(merged[idx].Evidence, color.Evidence)
	}
	return merged
}

// rank sorts the merged pool and assigns the four slots.
func (e *Extractor) rank(colors []branding.PaletteColor) branding.Palette {
	sorted := make([]branding.PaletteColor, len(colors))
	copy(sorted, colors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	taken := make([]string, 0, 3)
	distinct := func(hex string) bool {
		for _, prev := range taken {
			if hexDistance(prev, hex) < e.cfg.MergeDistance {
				return false
			}
		}
		return true
	}
	pickNonNeutral := func() (branding.PaletteColor, bool) {
		for _, c := range sorted {
			if !isNeutral(c.Hex, e.cfg.NeutralSpread) && distinct(c.Hex) {
				taken = append(taken, c.Hex)
				return c, true
			}
		}
		return branding.PaletteColor{}, false
	}
	pickAny := func() (branding.PaletteColor, bool) {
		for _, c := range sorted {
			if distinct(c.Hex) {
				taken = append(taken, c.Hex)
				return c, true
			}
		}
		return branding.PaletteColor{}, false
	}

	primary, ok := pickNonNeutral()
	if !ok {
		primary, ok = pickAny()
	}
	if !ok {
		primary = derived("#1b1b1b")
		taken = append(taken, primary.Hex)
	}
	secondary, ok := pickNonNeutral()
	if !ok {
		secondary = derived(lighten(primary.Hex, 0.2))
	}
	accent, ok := pickAny()
	if !ok {
		accent = derived(lighten(primary.Hex, 0.4))
	}

	neutral := branding.PaletteColor{}
	foundNeutral := false
	for _, c := range sorted {
		if isNeutral(c.Hex, e.cfg.NeutralSpread) {
			neutral = c
			foundNeutral = true
			break
		}
	}
	if !foundNeutral {
		neutral = derived(lighten(primary.Hex, 0.8))
	}

	return branding.Palette{
		Primary:   primary,
		Secondary: secondary,
		Accent:    accent,
		Neutral:   neutral,
		Raw:       sorted,
	}
}

func derived(hex string) branding.PaletteColor {
	return branding.PaletteColor{Hex: hex, Confidence: 0.2, Evidence: []string{"derived"}}
}

func unionEvidence(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string(nil), a...)
	for _, e := range a {
		seen[e] = struct{}{}
	}
	for _, e := range b {
		if _, ok := seen[e]; !ok {
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
