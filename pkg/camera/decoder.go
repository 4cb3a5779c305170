package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"sync"
	"time"
)

// minJPEGSize filters out truncated ffmpeg output.
const minJPEGSize = 1000

// Decoder turns an Annex-B H264 group of pictures into one JPEG using a
// short-lived ffmpeg process over pipes.
type Decoder struct {
	// Binary is the ffmpeg executable, "ffmpeg" by default.
	Binary string
	// Timeout bounds a single decode.
	Timeout time.Duration

	mu          sync.Mutex
	lastDecode  time.Time
	minInterval time.Duration
}

// NewDecoder creates a decoder that decodes at most once per interval.
func NewDecoder(interval time.Duration) *Decoder {
	return &Decoder{
		Binary:      "ffmpeg",
		Timeout:     300 * time.Millisecond,
		minInterval: interval,
	}
}

// Due reports whether enough time has passed for another decode.
func (d *Decoder) Due(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return now.Sub(d.lastDecode) >= d.minInterval
}

// Decode returns a JPEG of the first picture in the stream, or nil when the
// stream did not contain a usable picture.
func (d *Decoder) Decode(ctx context.Context, annexB []byte) ([]byte, error) {
	if len(annexB) < 100 {
		return nil, nil
	}

	d.mu.Lock()
	d.lastDecode = time.Now()
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(annexB)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		// Not enough data for a picture is normal right after a keyframe boundary
		if stdout.Len() == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}

	out := stdout.Bytes()
	if len(out) < minJPEGSize || isGrayJPEG(out) {
		return nil, nil
	}
	return out, nil
}

// isGrayJPEG detects the flat gray pictures a decoder emits before the first keyframe.
func isGrayJPEG(data []byte) bool {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return true
	}
	return isGrayImage(img)
}

func isGrayImage(img image.Image) bool {
	bounds := img.Bounds()
	if bounds.Dx() < 10 || bounds.Dy() < 10 {
		return true
	}

	var rSum, gSum, bSum, samples int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += bounds.Dy() / 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += bounds.Dx() / 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(b >> 8)
			samples++
		}
	}

	avgR, avgG, avgB := rSum/samples, gSum/samples, bSum/samples

	// Black
	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}

	// Uniform mid gray
	diff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return diff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
