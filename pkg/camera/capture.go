package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// V4L2 encodes auto exposure as a menu; OpenCV maps it to these magic values.
const (
	v4l2ExposureManual = 0.25
	v4l2ExposureAuto   = 0.75
)

// CaptureSource reads frames from a local camera through OpenCV.
type CaptureSource struct {
	device string

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	config Config
	seq    uint64
	closed bool
}

// OpenCapture opens a camera by index ("0") or by device path / URL.
func OpenCapture(device string, cfg Config) (*CaptureSource, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}

	var target interface{} = device
	if idx, err := strconv.Atoi(device); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %s: device not available", device)
	}

	s := &CaptureSource{
		device: device,
		vc:     vc,
		mat:    gocv.NewMat(),
	}

	// Keep only the newest frame in the driver queue
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	s.applyLocked(cfg)

	return s, nil
}

// Apply pushes a new configuration to the driver. Suitable as a Manager.OnConfigChange.
func (s *CaptureSource) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.applyLocked(cfg)
	return nil
}

func (s *CaptureSource) applyLocked(cfg Config) {
	s.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	s.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	s.vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	// Driver brightness is 0-255 on most UVC cameras
	s.vc.Set(gocv.VideoCaptureBrightness, 128+cfg.Brightness*127)

	if cfg.Gain > 0 {
		s.vc.Set(gocv.VideoCaptureGain, cfg.Gain)
	}
	if cfg.Exposure > 0 {
		s.vc.Set(gocv.VideoCaptureAutoExposure, v4l2ExposureManual)
		s.vc.Set(gocv.VideoCaptureExposure, float64(cfg.Exposure))
	} else {
		s.vc.Set(gocv.VideoCaptureAutoExposure, v4l2ExposureAuto)
	}
	s.vc.Set(gocv.VideoCaptureZoom, cfg.Zoom)

	af := 0.0
	if cfg.AutoFocus {
		af = 1.0
	}
	s.vc.Set(gocv.VideoCaptureAutoFocus, af)

	s.config = cfg
}

// Capture grabs the current frame and encodes it as JPEG.
func (s *CaptureSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrClosed
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return Frame{}, fmt.Errorf("read camera %s: %w", s.device, ErrNoFrame)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("convert frame: %w", err)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.mat, []int{gocv.IMWriteJpegQuality, s.config.Quality})
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	s.seq++
	return Frame{
		Seq:        s.seq,
		CapturedAt: time.Now(),
		Width:      s.mat.Cols(),
		Height:     s.mat.Rows(),
		JPEG:       data,
		Image:      img,
	}, nil
}

// Close releases the camera.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
