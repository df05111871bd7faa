package palette

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/berginj/glovebrand/internal/branding"
)

const minClusterAlpha = 0.2

// logoColors decodes the logo, downsamples it and clusters the opaque
// pixels in RGB space. Cluster confidence scales with the cluster's pixel
// share, floored so small clusters still contribute. Undecodable input
// (SVG) yields nil and the extraction degrades to CSS-only.
func (e *Extractor) logoColors(data []byte) []branding.PaletteColor {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	pixels := samplePixels(img, e.cfg.SampleSide)
	if len(pixels) == 0 {
		return nil
	}

	k := e.cfg.Clusters
	if k > len(pixels) {
		k = len(pixels)
	}
	centroids := make([]rgb, k)
	copy(centroids, pixels[:k])

	assignment := make([]int, len(pixels))
	for iter := 0; iter < e.cfg.Iterations; iter++ {
		for i, p := range pixels {
			assignment[i] = nearestCentroid(p, centroids)
		}
		sums := make([]rgb, k)
		counts := make([]int, k)
		for i, p := range pixels {
			c := assignment[i]
			sums[c].r += p.r
			sums[c].g += p.g
			sums[c].b += p.b
			counts[c]++
		}
		for i := range centroids {
			if counts[i] == 0 {
				continue
			}
			centroids[i] = rgb{
				sums[i].r / float64(counts[i]),
				sums[i].g / float64(counts[i]),
				sums[i].b / float64(counts[i]),
			}
		}
	}

	counts := make([]int, k)
	for i, p := range pixels {
		assignment[i] = nearestCentroid(p, centroids)
		counts[assignment[i]]++
	}

	var colors []branding.PaletteColor
	for i, centroid := range centroids {
		if counts[i] == 0 {
			continue
		}
		share := float64(counts[i]) / float64(len(pixels))
		confidence := e.cfg.LogoWeight * share
		if confidence < e.cfg.LogoFloor {
			confidence = e.cfg.LogoFloor
		}
		colors = append(colors, branding.PaletteColor{
			Hex:        centroid.hex(),
			Confidence: confidence,
			Evidence:   []string{"logo"},
		})
	}
	return colors
}

// samplePixels downsamples to at most side x side with nearest-neighbor,
// discarding near-fully-transparent pixels.
func samplePixels(img image.Image, side int) []rgb {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil
	}
	sampleW, sampleH := width, height
	if width > side || height > side {
		if width >= height {
			sampleW = side
			sampleH = height * side / width
		} else {
			sampleH = side
			sampleW = width * side / height
		}
		if sampleW < 1 {
			sampleW = 1
		}
		if sampleH < 1 {
			sampleH = 1
		}
	}
	pixels := make([]rgb, 0, sampleW*sampleH)
	for y := 0; y < sampleH; y++ {
		for x := 0; x < sampleW; x++ {
			r, g, b, a := img.At(bounds.Min.X+x*width/sampleW, bounds.Min.Y+y*height/sampleH).RGBA()
			if float64(a)/0xffff < minClusterAlpha {
				continue
			}
			pixels = append(pixels, rgb{float64(r >> 8), float64(g >> 8), float64(b >> 8)})
		}
	}
	return pixels
}

func nearestCentroid(p rgb, centroids []rgb) int {
	best := 0
	bestDist := distance(p, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := distance(p, centroids[i]); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
