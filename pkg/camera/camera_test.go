package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func TestDefaultConfig_VGA(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("DefaultConfig: got %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("DefaultConfig should validate: %v", errs)
	}
}

func TestPresets_AllValid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("preset %q missing", name)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("4k") != nil {
		t.Error("unknown preset should return nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errors int
	}{
		{"valid", func(c *Config) {}, 0},
		{"tiny width", func(c *Config) { c.Width = 100 }, 1},
		{"bad quality", func(c *Config) { c.Quality = 0 }, 1},
		{"manual gain out of range", func(c *Config) { c.Gain = 0.5 }, 1},
		{"auto gain", func(c *Config) { c.Gain = 0 }, 0},
		{"zoom and brightness", func(c *Config) { c.Zoom = 8; c.Brightness = 2 }, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if got := len(cfg.Validate()); got != tc.errors {
				t.Errorf("Validate: got %d errors, want %d (%v)", got, tc.errors, cfg.Validate())
			}
		})
	}
}

func TestManager_UpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied []Config
	m.OnConfigChange = func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	}

	if err := m.UpdateConfig(map[string]interface{}{"preset": PresetLow, "quality": float64(90)}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	got := m.GetConfig()
	if got.Width != 320 || got.Height != 240 {
		t.Errorf("preset not applied: %dx%d", got.Width, got.Height)
	}
	if got.Quality != 90 {
		t.Errorf("override not applied: quality=%d", got.Quality)
	}
	if len(applied) != 1 {
		t.Errorf("OnConfigChange calls: got %d, want 1", len(applied))
	}
}

func TestManager_RejectsInvalid(t *testing.T) {
	m := NewManager(DefaultConfig())

	if err := m.UpdateConfig(map[string]interface{}{"width": 10}); err == nil {
		t.Error("expected validation error")
	}
	if m.GetConfig().Width != 640 {
		t.Error("invalid update must not be stored")
	}
	if err := m.UpdateConfig(map[string]interface{}{"preset": "nope"}); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestManager_CallbackError(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.OnConfigChange = func(Config) error { return errors.New("driver busy") }

	if err := m.SetConfig(LowConfig()); err == nil {
		t.Error("expected callback error to surface")
	}
}

func TestFrame_Decoded(t *testing.T) {
	data := solidJPEG(64, 48, color.RGBA{200, 10, 10, 255})

	frame, err := FrameFromJPEG(7, data, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("FrameFromJPEG: %v", err)
	}
	if frame.Width != 64 || frame.Height != 48 {
		t.Errorf("size: got %dx%d, want 64x48", frame.Width, frame.Height)
	}
	if frame.Bounds() != image.Rect(0, 0, 64, 48) {
		t.Errorf("Bounds: got %v", frame.Bounds())
	}

	img, err := frame.Decoded()
	if err != nil {
		t.Fatalf("Decoded: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("decoded width: got %d", img.Bounds().Dx())
	}

	if _, err := (Frame{}).Decoded(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty frame: got %v, want ErrNoFrame", err)
	}
}

func TestIsGrayImage(t *testing.T) {
	tests := []struct {
		name string
		c    color.RGBA
		want bool
	}{
		{"black", color.RGBA{0, 0, 0, 255}, true},
		{"mid gray", color.RGBA{128, 128, 128, 255}, true},
		{"green", color.RGBA{20, 200, 40, 255}, false},
		{"white", color.RGBA{255, 255, 255, 255}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isGrayImage(solidImage(100, 100, tc.c)); got != tc.want {
				t.Errorf("isGrayImage: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNalTypes(t *testing.T) {
	stream := []byte{
		0, 0, 0, 1, 0x67, 0xAA, // SPS
		0, 0, 0, 1, 0x68, 0xBB, // PPS
		0, 0, 1, 0x65, 0xCC, 0xDD, // IDR with 3-byte start code
	}

	types := nalTypes(stream)
	for _, want := range []byte{nalSPS, 8, nalIDR} {
		if !types[want] {
			t.Errorf("missing NAL type %d in %v", want, types)
		}
	}
	if types[1] {
		t.Error("unexpected non-IDR slice")
	}
}

func TestDecoder_ShortInput(t *testing.T) {
	d := NewDecoder(10 * time.Millisecond)
	out, err := d.Decode(context.Background(), []byte{0, 0, 0, 1, 0x67})
	if err != nil || out != nil {
		t.Errorf("short input: got (%v, %v), want (nil, nil)", out, err)
	}
	if !d.Due(time.Now()) {
		t.Error("decoder should be due when nothing was decoded")
	}
}

func TestWebRTCSource_CaptureBeforeFrame(t *testing.T) {
	s := NewWebRTCSource("ws://127.0.0.1:1")

	if _, err := s.Capture(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Capture before first frame: got %v, want ErrNoFrame", err)
	}

	s.storeFrame(solidJPEG(32, 24, color.RGBA{0, 120, 0, 255}))
	frame, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if frame.Seq != 1 || frame.Width != 32 {
		t.Errorf("frame: seq=%d width=%d", frame.Seq, frame.Width)
	}

	s.Close()
	if _, err := s.Capture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Capture after Close: got %v, want ErrClosed", err)
	}
}

// Helper functions

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func solidJPEG(width, height int, c color.Color) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solidImage(width, height, c), nil)
	return buf.Bytes()
}
