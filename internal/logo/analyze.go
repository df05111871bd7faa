package logo

import (
	"bytes"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/berginj/glovebrand/internal/branding"
)

const (
	analysisSide   = 96
	edgeThreshold  = 18
	alphaThreshold = 0.7
)

// fallbackAnalysis is used when the image cannot be decoded (SVG and other
// vector formats). The values are deliberately mid-range so the heuristic
// score carries the decision.
func fallbackAnalysis() branding.LogoAnalysis {
	return branding.LogoAnalysis{Entropy: 0.3, EdgeDensity: 0.3, AlphaRatio: 0.5}
}

// Analyze decodes the image, downsamples it to at most 96x96 and measures
// entropy, edge density and transparency. A decode failure yields the
// neutral fallback, never an error.
func Analyze(data []byte) branding.LogoAnalysis {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fallbackAnalysis()
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return fallbackAnalysis()
	}

	sampleW, sampleH := fitInside(width, height, analysisSide)
	gray := make([]int, sampleW*sampleH)
	alpha := make([]float64, sampleW*sampleH)
	for y := 0; y < sampleH; y++ {
		for x := 0; x < sampleW; x++ {
			srcX := bounds.Min.X + x*width/sampleW
			srcY := bounds.Min.Y + y*height/sampleH
			r, g, b, a := img.At(srcX, srcY).RGBA()
			gray[y*sampleW+x] = int(math.Round(0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)))
			alpha[y*sampleW+x] = float64(a) / 0xffff
		}
	}

	histogram := make([]int, 256)
	edgeCount := 0
	totalEdges := 0
	transparent := 0
	total := 0
	for y := 0; y < sampleH; y++ {
		for x := 0; x < sampleW; x++ {
			idx := y*sampleW + x
			if alpha[idx] < alphaThreshold {
				transparent++
			}
			histogram[gray[idx]]++
			total++
			if x < sampleW-1 && y < sampleH-1 {
				totalEdges += 2
				if abs(gray[idx+1]-gray[idx]) > edgeThreshold {
					edgeCount++
				}
				if abs(gray[idx+sampleW]-gray[idx]) > edgeThreshold {
					edgeCount++
				}
			}
		}
	}

	entropy := 0.0
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	edgeDensity := 0.0
	if totalEdges > 0 {
		edgeDensity = float64(edgeCount) / float64(totalEdges)
	}
	alphaRatio := 0.0
	if total > 0 {
		alphaRatio = float64(transparent) / float64(total)
	}

	return branding.LogoAnalysis{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Entropy:     entropy,
		EdgeDensity: edgeDensity,
		AlphaRatio:  alphaRatio,
	}
}

// fitInside shrinks (w, h) proportionally so the longer side is at most
// maxSide, never scaling up.
func fitInside(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		scaled := h * maxSide / w
		if scaled < 1 {
			scaled = 1
		}
		return maxSide, scaled
	}
	scaled := w * maxSide / h
	if scaled < 1 {
		scaled = 1
	}
	return scaled, maxSide
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
