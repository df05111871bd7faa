package logo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
)

func TestScoreCandidates_HeaderSVGLogoOutranksHeroBanner(t *testing.T) {
	t.Parallel()

	candidates := []branding.ImageCandidate{
		{
			URL:          "https://hawks.example.com/img/hero-banner.jpg",
			Context:      "main",
			AltText:      "stadium at dusk",
			FileNameHint: "hero-banner.jpg",
			Width:        1920,
			Height:       400,
		},
		{
			URL:          "https://hawks.example.com/img/team-logo.svg",
			Context:      "header",
			AltText:      "Hawks logo",
			FileNameHint: "team-logo.svg",
			Hints:        []string{"logo"},
			Width:        200,
			Height:       180,
		},
	}

	ranked := rankScores(ScoreCandidates(candidates))
	require.Equal(t, "https://hawks.example.com/img/team-logo.svg", ranked[0].URL)
	require.Greater(t, ranked[0].Score, ranked[1].Score)
	require.Contains(t, ranked[0].Reasons, "Found in header/nav")
	require.Contains(t, ranked[0].Reasons, "SVG preferred")
	require.Contains(t, ranked[1].Reasons, "Likely photo/banner: hero")
	require.Contains(t, ranked[1].Reasons, "Extreme aspect ratio")
}

func TestScoreCandidates_Bonuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		candidate branding.ImageCandidate
		reason    string
		positive  bool
	}{
		{
			name:      "footer placement penalized",
			candidate: branding.ImageCandidate{URL: "https://x.test/a.png", Context: "footer"},
			reason:    "Footer placement",
		},
		{
			name:      "og image bonus",
			candidate: branding.ImageCandidate{URL: "https://x.test/share.png", Hints: []string{"og:image"}},
			reason:    "OpenGraph image",
			positive:  true,
		},
		{
			name:      "tiny image penalized",
			candidate: branding.ImageCandidate{URL: "https://x.test/i.gif", Width: 16, Height: 16},
			reason:    "Very small image",
		},
		{
			name:      "reasonable size rewarded",
			candidate: branding.ImageCandidate{URL: "https://x.test/i.gif", Width: 256, Height: 256},
			reason:    "Reasonable logo size",
			positive:  true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			scores := ScoreCandidates([]branding.ImageCandidate{tc.candidate})
			require.Len(t, scores, 1)
			require.Contains(t, scores[0].Reasons, tc.reason)
		})
	}
}

func TestScoreCandidates_SinglePositiveHintCounted(t *testing.T) {
	t.Parallel()

	// Multiple matching hints must not stack.
	one := ScoreCandidates([]branding.ImageCandidate{{URL: "https://x.test/logo.gif", AltText: "logo"}})
	many := ScoreCandidates([]branding.ImageCandidate{{URL: "https://x.test/team-club-logo-brand.gif"}})
	require.InDelta(t, one[0].Score, many[0].Score, 0.001)
}

func TestApplyAnalysis_PhotoLikeMeasurementsPenalize(t *testing.T) {
	t.Parallel()

	base := branding.LogoScore{URL: "https://x.test/a.png", Score: 20}
	adjusted := applyAnalysis(base, branding.LogoAnalysis{
		Entropy:     6.5,
		EdgeDensity: 0.3,
		AspectRatio: 4.8,
	})
	require.Equal(t, 20.0-6-4-3, adjusted.Score)
	require.Contains(t, adjusted.Reasons, "High entropy suggests photo")
	require.Contains(t, adjusted.Reasons, "High edge density suggests photo")
	require.Contains(t, adjusted.Reasons, "Aspect ratio suggests banner")
	require.NotNil(t, adjusted.Analysis)
}

func TestApplyAnalysis_TransparencyAndSquareRatioReward(t *testing.T) {
	t.Parallel()

	base := branding.LogoScore{URL: "https://x.test/a.png", Score: 10}
	adjusted := applyAnalysis(base, branding.LogoAnalysis{
		Entropy:     2.0,
		EdgeDensity: 0.05,
		AlphaRatio:  0.3,
		AspectRatio: 1.1,
	})
	require.Equal(t, 10.0+4+2, adjusted.Score)
}

func TestRankScores_TiesKeepOriginalOrder(t *testing.T) {
	t.Parallel()

	scores := []branding.LogoScore{
		{URL: "first", Score: 5},
		{URL: "second", Score: 5},
		{URL: "third", Score: 9},
	}
	ranked := rankScores(scores)
	require.Equal(t, "third", ranked[0].URL)
	require.Equal(t, "first", ranked[1].URL)
	require.Equal(t, "second", ranked[2].URL)
}
