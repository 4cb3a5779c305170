package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Preview formats
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Encoder shrinks and compresses canvas pictures for the dashboard preview.
type Encoder struct {
	Format   string
	MaxWidth int // 0 keeps the original size
	Quality  int // 1-100
}

// DefaultEncoder returns a 640 px wide JPEG encoder.
func DefaultEncoder() Encoder {
	return Encoder{Format: FormatJPEG, MaxWidth: 640, Quality: 75}
}

// Encode resizes img to fit MaxWidth and encodes it.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode preview: nil image")
	}

	b := img.Bounds()
	if e.MaxWidth > 0 && b.Dx() > e.MaxWidth {
		height := b.Dy() * e.MaxWidth / b.Dx()
		img = imaging.Fit(img, e.MaxWidth, height, imaging.Linear)
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = 75
	}

	var buf bytes.Buffer
	switch e.Format {
	case FormatJPEG, "":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown preview format %q", e.Format)
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type of the encoder output.
func (e Encoder) ContentType() string {
	if e.Format == FormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}
