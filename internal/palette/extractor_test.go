package palette

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/fetch"
	"github.com/berginj/glovebrand/internal/safeurl"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	v := safeurl.New(nil, safeurl.Config{AllowPrivate: true})
	f := fetch.New(v, fetch.Config{MaxRetries: 0, RetryBackoff: 1}, nil)
	return New(f, DefaultConfig(), nil)
}

// twoTonePNG is three quarters dark blue, one quarter red.
func twoTonePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if x < 20 && y < 20 {
				img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 20, G: 30, B: 120, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtract_CustomPropertyAppearsInRawPool(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.Extract(context.Background(), Input{
		InlineStyles: []string{":root { --team-primary: #112233; --team-accent: #ffcc00; }"},
	}, fetch.NewBudget(1<<20))

	hexes := rawHexes(palette)
	require.Contains(t, hexes, "#112233")
	require.Contains(t, hexes, "#ffcc00")

	for _, c := range palette.Raw {
		if c.Hex == "#112233" {
			require.Equal(t, DefaultConfig().CustomPropWeight, c.Confidence)
			require.Contains(t, c.Evidence, "var:--team-primary")
		}
	}
}

func TestExtract_CustomPropWeighedAboveLiteral(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.Extract(context.Background(), Input{
		InlineStyles: []string{"--brand: #aa1122; .btn { color: #2299dd; }"},
	}, fetch.NewBudget(1<<20))

	require.Equal(t, "#aa1122", palette.Primary.Hex)
}

func TestExtract_StylesheetsMinedUpToCap(t *testing.T) {
	t.Parallel()

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte(".x { color: #445566; }"))
	}))
	defer server.Close()

	e := newTestExtractor(t)
	urls := []string{
		server.URL + "/a.css",
		server.URL + "/b.css",
		server.URL + "/c.css",
		server.URL + "/d.css",
		server.URL + "/e.css",
	}
	palette := e.Extract(context.Background(), Input{CSSURLs: urls}, fetch.NewBudget(1<<20))

	require.Equal(t, DefaultConfig().MaxStylesheets, hits)
	require.Contains(t, rawHexes(palette), "#445566")
}

func TestExtract_LogoPixelsClustered(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.Extract(context.Background(), Input{LogoBytes: twoTonePNG(t)}, fetch.NewBudget(1<<20))

	foundBlue := false
	foundRed := false
	for _, c := range palette.Raw {
		if hexDistance(c.Hex, "#141e78") < 30 {
			foundBlue = true
		}
		if hexDistance(c.Hex, "#c81e1e") < 30 {
			foundRed = true
		}
	}
	require.True(t, foundBlue, "dominant blue cluster expected")
	require.True(t, foundRed, "red cluster expected")
}

func TestExtract_UndecodableLogoDegradesToCSSOnly(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.Extract(context.Background(), Input{
		LogoBytes:    []byte("<svg/>"),
		InlineStyles: []string{"--brand: #336699;"},
	}, fetch.NewBudget(1<<20))

	require.Equal(t, "#336699", palette.Primary.Hex)
}

func TestMergeColors_Idempotent(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	input := []branding.PaletteColor{
		{Hex: "#112233", Confidence: 0.5, Evidence: []string{"css"}},
		{Hex: "#112235", Confidence: 0.4, Evidence: []string{"logo"}},
		{Hex: "#ffffff", Confidence: 0.3, Evidence: []string{"css"}},
	}
	once := e.MergeColors(input)
	twice := e.MergeColors(once)
	require.Equal(t, once, twice)
}

func TestMergeColors_ConfidenceNeverDecreases(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	merged := e.MergeColors([]branding.PaletteColor{
		{Hex: "#112233", Confidence: 0.5, Evidence: []string{"css"}},
		{Hex: "#112235", Confidence: 0.4, Evidence: []string{"logo"}},
	})
	require.Len(t, merged, 1)
	require.GreaterOrEqual(t, merged[0].Confidence, 0.5)
	require.GreaterOrEqual(t, merged[0].Confidence, 0.4)
	require.ElementsMatch(t, []string{"css", "logo"}, merged[0].Evidence)

	// Weak representative first: a 0.15 logo-floor color absorbing a 0.63
	// color must not land below 0.63.
	merged = e.MergeColors([]branding.PaletteColor{
		{Hex: "#101010", Confidence: 0.15, Evidence: []string{"logo"}},
		{Hex: "#121212", Confidence: 0.63, Evidence: []string{"css"}},
	})
	require.Len(t, merged, 1)
	require.GreaterOrEqual(t, merged[0].Confidence, 0.63)
}

func TestMergeColors_ConfidenceCappedAtOne(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	merged := e.MergeColors([]branding.PaletteColor{
		{Hex: "#112233", Confidence: 0.9, Evidence: []string{"css"}},
		{Hex: "#112233", Confidence: 0.9, Evidence: []string{"css"}},
		{Hex: "#112233", Confidence: 0.9, Evidence: []string{"css"}},
	})
	require.Len(t, merged, 1)
	require.Equal(t, 1.0, merged[0].Confidence)
}

func TestRank_NeutralFallbackIsLightenedPrimary(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.rank([]branding.PaletteColor{
		{Hex: "#cc0000", Confidence: 0.8, Evidence: []string{"css"}},
		{Hex: "#0000cc", Confidence: 0.6, Evidence: []string{"css"}},
	})
	require.Equal(t, "#cc0000", palette.Primary.Hex)
	require.Equal(t, "#0000cc", palette.Secondary.Hex)
	require.Contains(t, palette.Neutral.Evidence, "derived")
	require.Equal(t, lighten("#cc0000", 0.8), palette.Neutral.Hex)
}

func TestRank_NeutralSlotPrefersGrayscalePoolColor(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.rank([]branding.PaletteColor{
		{Hex: "#cc0000", Confidence: 0.8, Evidence: []string{"css"}},
		{Hex: "#f4f4f6", Confidence: 0.3, Evidence: []string{"css"}},
	})
	require.Equal(t, "#f4f4f6", palette.Neutral.Hex)
	require.Equal(t, "#cc0000", palette.Primary.Hex)
}

func TestRank_EmptyPoolYieldsDerivedPalette(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	palette := e.rank(nil)
	require.NotEmpty(t, palette.Primary.Hex)
	require.NotEmpty(t, palette.Secondary.Hex)
	require.NotEmpty(t, palette.Accent.Hex)
	require.NotEmpty(t, palette.Neutral.Hex)
}

func TestNormalizeColor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "#aabbcc", normalizeColor("#abc"))
	require.Equal(t, "#112233", normalizeColor("#112233"))
	require.Equal(t, "#ff0000", normalizeColor("rgb(255, 0, 0)"))
	require.Equal(t, "#ff0000", normalizeColor("rgba(255, 0, 0, 0.5)"))
	require.Equal(t, "#ffffff", normalizeColor("hsl(0, 0%, 100%)"))
	require.Equal(t, "#ff0000", normalizeColor("hsl(0, 100%, 50%)"))
	require.Equal(t, "", normalizeColor("rgb(999, 0, 0)"))
	require.Equal(t, "", normalizeColor("currentColor"))
}

func rawHexes(p branding.Palette) []string {
	hexes := make([]string, 0, len(p.Raw))
	for _, c := range p.Raw {
		hexes = append(hexes, c.Hex)
	}
	return hexes
}
