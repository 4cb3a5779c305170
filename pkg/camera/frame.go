package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// Sentinel errors for frame acquisition.
var (
	// ErrNoFrame is returned when the source has not produced a frame yet.
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrClosed is returned when capturing from a closed source.
	ErrClosed = errors.New("camera: source closed")
)

// Frame is one decoded video frame.
// JPEG is always populated; Image is populated when the source has it at hand.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	JPEG       []byte
	Image      image.Image
}

// Decoded returns the frame as an image, decoding the JPEG when needed.
func (f Frame) Decoded() (image.Image, error) {
	if f.Image != nil {
		return f.Image, nil
	}
	if len(f.JPEG) == 0 {
		return nil, ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(f.JPEG))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", f.Seq, err)
	}
	return img, nil
}

// Bounds returns the frame rectangle in pixel coordinates.
func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Source yields the most recent video frame on each call.
// Sources never queue frames: a slow caller simply sees fewer of them.
type Source interface {
	Capture(ctx context.Context) (Frame, error)
	Close() error
}

// FrameFromJPEG builds a frame from encoded bytes, reading only the header for its size.
func FrameFromJPEG(seq uint64, data []byte, at time.Time) (Frame, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("jpeg header: %w", err)
	}
	return Frame{
		Seq:        seq,
		CapturedAt: at,
		Width:      cfg.Width,
		Height:     cfg.Height,
		JPEG:       data,
	}, nil
}
