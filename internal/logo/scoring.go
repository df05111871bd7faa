// Package logo ranks crawled image candidates and picks the one most
// likely to be the team's logo. Scoring runs in two stages: a cheap
// heuristic pass over every candidate, then a pixel-analysis pass over the
// top few that fetches and decodes the actual bytes.
package logo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/berginj/glovebrand/internal/branding"
)

var positiveHints = []string{"logo", "mark", "crest", "emblem", "wordmark", "brand", "club", "team"}

var negativeHints = []string{"hero", "banner", "background", "slide", "slideshow", "photo", "sponsor", "ad", "roster"}

// ScoreCandidates runs the heuristic pass. Order of the result matches the
// input; callers sort separately so the original ranking stays available
// for tie-breaking.
func ScoreCandidates(candidates []branding.ImageCandidate) []branding.LogoScore {
	scores := make([]branding.LogoScore, 0, len(candidates))
	for _, candidate := range candidates {
		scores = append(scores, scoreCandidate(candidate))
	}
	return scores
}

func scoreCandidate(candidate branding.ImageCandidate) branding.LogoScore {
	var score float64
	var reasons []string

	switch {
	case candidate.Context == "header" || candidate.Context == "nav":
		score += 15
		reasons = append(reasons, "Found in header/nav")
	case strings.Contains(candidate.Context, "footer"):
		score -= 3
		reasons = append(reasons, "Footer placement")
	}

	urlLower := strings.ToLower(candidate.URL)
	altLower := strings.ToLower(candidate.AltText)
	fileLower := strings.ToLower(candidate.FileNameHint)
	for _, hint := range positiveHints {
		if strings.Contains(urlLower, hint) || strings.Contains(altLower, hint) || strings.Contains(fileLower, hint) {
			score += 10
			reasons = append(reasons, fmt.Sprintf("Hint match: %s", hint))
			break
		}
	}
	for _, hint := range negativeHints {
		if strings.Contains(urlLower, hint) || strings.Contains(altLower, hint) || strings.Contains(fileLower, hint) {
			score -= 8
			reasons = append(reasons, fmt.Sprintf("Likely photo/banner: %s", hint))
			break
		}
	}

	for _, hint := range candidate.Hints {
		if hint == "logo" {
			score += 6
			reasons = append(reasons, "Semantic logo hint")
			break
		}
	}
	for _, hint := range candidate.Hints {
		if strings.Contains(hint, "og:image") {
			score += 3
			reasons = append(reasons, "OpenGraph image")
			break
		}
	}

	if candidate.Width > 0 && candidate.Height > 0 {
		ratio := float64(candidate.Width) / float64(candidate.Height)
		if ratio > 0.6 && ratio < 2.2 {
			score += 4
			reasons = append(reasons, "Logo-like aspect ratio")
		} else if ratio > 3 || ratio < 0.3 {
			score -= 6
			reasons = append(reasons, "Extreme aspect ratio")
		}
		maxSide := candidate.Width
		if candidate.Height > maxSide {
			maxSide = candidate.Height
		}
		switch {
		case maxSide < 50:
			score -= 4
			reasons = append(reasons, "Very small image")
		case maxSide > 800:
			score -= 3
			reasons = append(reasons, "Very large image")
		case maxSide >= 120 && maxSide <= 500:
			score += 4
			reasons = append(reasons, "Reasonable logo size")
		}
	}

	if strings.HasSuffix(urlLower, ".svg") {
		score += 8
		reasons = append(reasons, "SVG preferred")
	} else if strings.HasSuffix(urlLower, ".png") {
		score += 4
		reasons = append(reasons, "PNG preferred")
	}

	return branding.LogoScore{URL: candidate.URL, Score: score, Reasons: reasons}
}

// rankScores sorts by score descending, preserving the candidates'
// original order on ties.
func rankScores(scores []branding.LogoScore) []branding.LogoScore {
	ranked := make([]branding.LogoScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// applyAnalysis folds the pixel measurements into a heuristic score.
func applyAnalysis(score branding.LogoScore, analysis branding.LogoAnalysis) branding.LogoScore {
	adjusted := score.Score
	reasons := append([]string(nil), score.Reasons...)

	if analysis.Entropy > 5.2 {
		adjusted -= 6
		reasons = append(reasons, "High entropy suggests photo")
	}
	if analysis.EdgeDensity > 0.18 {
		adjusted -= 4
		reasons = append(reasons, "High edge density suggests photo")
	}
	if analysis.AlphaRatio > 0.05 {
		adjusted += 4
		reasons = append(reasons, "Transparency suggests logo")
	}
	if analysis.AspectRatio > 0 {
		if analysis.AspectRatio > 0.6 && analysis.AspectRatio < 2.2 {
			adjusted += 2
			reasons = append(reasons, "Aspect ratio reinforced by analysis")
		} else if analysis.AspectRatio > 3 || analysis.AspectRatio < 0.3 {
			adjusted -= 3
			reasons = append(reasons, "Aspect ratio suggests banner")
		}
	}

	a := analysis
	return branding.LogoScore{
		URL:      score.URL,
		Score:    adjusted,
		Reasons:  reasons,
		BlobPath: score.BlobPath,
		BlobURL:  score.BlobURL,
		Analysis: &a,
	}
}
