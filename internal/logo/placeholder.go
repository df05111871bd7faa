package logo

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"net/url"
)

const placeholderSide = 256

// Placeholder synthesizes a deterministic PNG from the team URL's hostname
// so a job with no usable image candidates still produces a logo artifact.
// The same hostname always yields identical bytes.
func Placeholder(teamURL string) ([]byte, error) {
	host := teamURL
	if u, err := url.Parse(teamURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	seed := h.Sum32()

	base := color.NRGBA{
		R: uint8(seed >> 16),
		G: uint8(seed >> 8),
		B: uint8(seed),
		A: 255,
	}
	band := color.NRGBA{
		R: lift(base.R),
		G: lift(base.G),
		B: lift(base.B),
		A: 255,
	}
	bandWidth := int(seed%5) + 2

	img := image.NewNRGBA(image.Rect(0, 0, placeholderSide, placeholderSide))
	for y := 0; y < placeholderSide; y++ {
		for x := 0; x < placeholderSide; x++ {
			if ((x+y)/16)%bandWidth == 0 {
				img.SetNRGBA(x, y, band)
			} else {
				img.SetNRGBA(x, y, base)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func lift(v uint8) uint8 {
	return uint8(uint16(v)/2 + 128)
}
