// Package config provides configuration for the go-piar commands.
// Flag parsing is done in cmd/piar/main.go; this package is data plus env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultCameraDevice   = "0"
	DefaultModelPath      = "models/yolov8n.onnx"
	DefaultOllamaHost     = "http://127.0.0.1:11434"
	DefaultOllamaModel    = "qwen2.5vl:3b"
	DefaultSerialBaud     = 115200
	DefaultWebPort        = "8080"
	DefaultFrameRate      = 15
	DefaultPreviewWidth   = 640
	DefaultPreviewFormat  = "jpeg"
	DefaultReportWindow   = time.Second
	DefaultSignallingPort = 8443
)

// Camera sources.
const (
	SourceLocal  = "local"
	SourceWebRTC = "webrtc"
)

// Detector backends.
const (
	DetectorYOLO   = "yolo"
	DetectorOllama = "ollama"
)

// Selection policies.
const (
	SelectFirst = "first"
	SelectBest  = "best"
)

// Config holds all configuration for the perception loop.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// Debug enables per-frame debug logging.
	Debug bool

	// Camera.
	CameraSource string // "local" or "webrtc"
	CameraDevice string // device index or path for local capture
	RobotIP      string // robot address for the WebRTC source
	FrameRate    int    // loop ticks per second

	// Detector.
	Detector    string // "yolo" or "ollama"
	ModelPath   string
	OllamaHost  string
	OllamaModel string

	// Selection policy, "first" (default) or "best".
	Select string

	// ReportWindow is the minimum spacing between two transport sends.
	ReportWindow time.Duration

	// Transport. An empty SerialPort means dry-run (reports are logged only).
	SerialPort string
	SerialBaud int

	// Dashboard.
	WebPort       string
	WebStaticDir  string
	PreviewWidth  int
	PreviewFormat string // "jpeg" or "webp"

	// KeepGoing reschedules the loop after a per-frame failure instead of halting.
	KeepGoing bool
}

// DefaultConfig returns sensible defaults for a 640x480 camera on a low-end board.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		CameraSource:  SourceLocal,
		CameraDevice:  DefaultCameraDevice,
		FrameRate:     DefaultFrameRate,
		Detector:      DetectorYOLO,
		ModelPath:     DefaultModelPath,
		OllamaHost:    DefaultOllamaHost,
		OllamaModel:   DefaultOllamaModel,
		Select:        SelectFirst,
		ReportWindow:  DefaultReportWindow,
		SerialBaud:    DefaultSerialBaud,
		WebPort:       DefaultWebPort,
		WebStaticDir:  "./web",
		PreviewWidth:  DefaultPreviewWidth,
		PreviewFormat: DefaultPreviewFormat,
	}
}

// LoadEnv applies environment overrides. Call it before applying flags so
// explicit flags win.
func (c *Config) LoadEnv() {
	c.LogLevel = envString("PIAR_LOG_LEVEL", c.LogLevel)
	c.CameraSource = envString("PIAR_CAMERA_SOURCE", c.CameraSource)
	c.CameraDevice = envString("PIAR_CAMERA", c.CameraDevice)
	c.RobotIP = envString("ROBOT_IP", c.RobotIP)
	c.FrameRate = envInt("PIAR_FPS", c.FrameRate)
	c.Detector = envString("PIAR_DETECTOR", c.Detector)
	c.ModelPath = envString("PIAR_MODEL", c.ModelPath)
	c.OllamaHost = envString("OLLAMA_HOST", c.OllamaHost)
	c.OllamaModel = envString("PIAR_OLLAMA_MODEL", c.OllamaModel)
	c.Select = envString("PIAR_SELECT", c.Select)
	c.SerialPort = envString("PIAR_SERIAL_PORT", c.SerialPort)
	c.SerialBaud = envInt("PIAR_SERIAL_BAUD", c.SerialBaud)
	c.WebPort = envString("PIAR_WEB_PORT", c.WebPort)
	c.PreviewFormat = envString("PIAR_PREVIEW_FORMAT", c.PreviewFormat)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.CameraSource {
	case SourceLocal:
	case SourceWebRTC:
		if c.RobotIP == "" {
			return &ConfigError{Field: "RobotIP", Message: "ROBOT_IP is required for the webrtc camera source"}
		}
	default:
		return &ConfigError{Field: "CameraSource", Message: fmt.Sprintf("unknown camera source %q", c.CameraSource)}
	}

	switch c.Detector {
	case DetectorYOLO:
		if c.ModelPath == "" {
			return &ConfigError{Field: "ModelPath", Message: "model path is required for the yolo detector"}
		}
	case DetectorOllama:
		if c.OllamaModel == "" {
			return &ConfigError{Field: "OllamaModel", Message: "PIAR_OLLAMA_MODEL is required for the ollama detector"}
		}
	default:
		return &ConfigError{Field: "Detector", Message: fmt.Sprintf("unknown detector %q", c.Detector)}
	}

	if c.Select != SelectFirst && c.Select != SelectBest {
		return &ConfigError{Field: "Select", Message: fmt.Sprintf("select must be %q or %q", SelectFirst, SelectBest)}
	}
	if c.FrameRate < 1 || c.FrameRate > 60 {
		return &ConfigError{Field: "FrameRate", Message: "frame rate must be between 1 and 60"}
	}
	if c.ReportWindow <= 0 {
		return &ConfigError{Field: "ReportWindow", Message: "report window must be positive"}
	}
	if c.SerialPort != "" && c.SerialBaud <= 0 {
		return &ConfigError{Field: "SerialBaud", Message: "serial baud rate must be positive"}
	}
	if f := strings.ToLower(c.PreviewFormat); f != "jpeg" && f != "webp" {
		return &ConfigError{Field: "PreviewFormat", Message: "preview format must be jpeg or webp"}
	}
	return nil
}

// FrameInterval returns the scheduler tick for the configured frame rate.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return time.Second / DefaultFrameRate
	}
	return time.Second / time.Duration(c.FrameRate)
}

// SignallingURL returns the robot's WebRTC signalling endpoint.
func (c *Config) SignallingURL() string {
	return fmt.Sprintf("ws://%s:%d", c.RobotIP, DefaultSignallingPort)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
