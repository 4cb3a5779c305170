// Package detection provides object detection backends and the per-frame
// relevance filter and selection policy applied to their predictions.
package detection

import (
	"context"
	"image"
	"math"

	"github.com/teslashibe/go-piar/pkg/camera"
)

// Box is an axis-aligned bounding box in frame pixel coordinates.
type Box struct {
	X, Y float64 // Top-left corner
	W, H float64 // Width and height
}

// Rect returns the box as an integer rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H))
}

// Area returns the area of the box in square pixels
func (b Box) Area() float64 {
	return b.W * b.H
}

// Detection is one object instance predicted for a single frame.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"` // 0-1
	Box        Box     `json:"box"`
}

// Percent returns the confidence as an integer percentage.
func (d Detection) Percent() int {
	return Percent(d.Confidence)
}

// Percent converts a 0-1 confidence to an integer percentage, rounding half
// away from zero and clamping to 0..100.
func Percent(confidence float64) int {
	p := int(math.Round(confidence * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Detector is the interface for object detection backends
type Detector interface {
	// Detect returns raw predictions for the frame, in backend order
	Detect(ctx context.Context, frame camera.Frame) ([]Detection, error)

	// Close releases resources
	Close() error
}
